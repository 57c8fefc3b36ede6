package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/go-telegram-otp/internal/config"
	"github.com/go-telegram-otp/internal/domain"
)

// pollTimeout is the long-polling timeout in seconds.
const pollTimeout = 60

// botAPI is the subset of *tgbotapi.BotAPI the channel uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// InboundHandler receives every text message addressed to the bot.
type InboundHandler func(ctx context.Context, msg domain.InboundMessage)

// Channel delivers text messages through the Telegram Bot API and
// receives inbound messages via webhook or long polling.
type Channel struct {
	bot      botAPI
	username string
}

func NewChannel(cfg *config.Config) (*Channel, error) {
	if cfg.TelegramBotToken == "" {
		return nil, errors.New("telegram: TELEGRAM_BOT_TOKEN is not set")
	}
	var (
		bot *tgbotapi.BotAPI
		err error
	)
	if cfg.TelegramAPIEndpoint != "" {
		bot, err = tgbotapi.NewBotAPIWithAPIEndpoint(cfg.TelegramBotToken, cfg.TelegramAPIEndpoint)
	} else {
		bot, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	}
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Channel{bot: bot, username: bot.Self.UserName}, nil
}

// Username is the bot's @username as reported by getMe.
func (c *Channel) Username() string { return c.username }

// SendText sends text to the chat identified by address.
// A 403 from Telegram means the user blocked the bot and maps to
// domain.ErrChannelBlocked.
func (c *Channel) SendText(ctx context.Context, address, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: chat id %q: %w", address, domain.ErrBadRequest)
	}
	if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
			return fmt.Errorf("telegram: %s: %w", apiErr.Message, domain.ErrChannelBlocked)
		}
		return fmt.Errorf("telegram send: %w: %w", domain.ErrChannelTransport, err)
	}
	return nil
}

// SetWebhook registers url as the bot's webhook.
func (c *Channel) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("telegram webhook: %w", err)
	}
	if _, err := c.bot.Request(wh); err != nil {
		return fmt.Errorf("telegram webhook: %w", err)
	}
	return nil
}

// DeleteWebhook clears any webhook so getUpdates can be used.
func (c *Channel) DeleteWebhook() error {
	if _, err := c.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram delete webhook: %w", err)
	}
	return nil
}

// Listen long-polls for updates until ctx is cancelled.
func (c *Channel) Listen(ctx context.Context, handle InboundHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := c.bot.GetUpdatesChan(u)
	slog.Info("telegram long polling started", "bot", c.username)
	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			slog.Info("telegram long polling stopped")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if msg, ok := toInbound(upd); ok {
				handle(ctx, msg)
			}
		}
	}
}

// ParseWebhook decodes a webhook request. ok is false for updates that
// carry no text message from a user.
func (c *Channel) ParseWebhook(r *http.Request) (msg domain.InboundMessage, ok bool, err error) {
	upd, err := c.bot.HandleUpdate(r)
	if err != nil {
		return domain.InboundMessage{}, false, err
	}
	msg, ok = toInbound(*upd)
	return msg, ok, nil
}

func toInbound(upd tgbotapi.Update) (domain.InboundMessage, bool) {
	m := upd.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		ChannelIdentityID: strconv.FormatInt(m.From.ID, 10),
		Address:           strconv.FormatInt(m.Chat.ID, 10),
		Text:              m.Text,
	}, true
}
