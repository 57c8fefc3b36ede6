package http

import (
	"github.com/go-telegram-otp/internal/application/linking"
	"github.com/go-telegram-otp/internal/application/linktoken"
	"github.com/go-telegram-otp/internal/application/otp"
	jwtinfra "github.com/go-telegram-otp/internal/infrastructure/jwt"
	"github.com/go-telegram-otp/internal/transport/http/handler"
)

// Deps holds the services and adapters the router wires into handlers.
type Deps struct {
	LinkTokens linktoken.Service
	Linking    linking.Service
	OTP        otp.Service
	// Webhook decodes Telegram updates; nil when updates are long-polled.
	Webhook     handler.WebhookParser
	BotUsername string
	// JWTProvider guards the admin routes; nil leaves them unmounted.
	JWTProvider *jwtinfra.Provider
}
