package domain

// InboundMessage is a text message received by the bot.
type InboundMessage struct {
	ChannelIdentityID string // Telegram user id of the sender
	Address           string // chat id to reply to
	Text              string
}
