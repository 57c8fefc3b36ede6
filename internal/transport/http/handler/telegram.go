package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-telegram-otp/internal/application/linking"
	"github.com/go-telegram-otp/internal/domain"
)

// WebhookParser decodes a Telegram webhook request into an inbound message.
type WebhookParser interface {
	ParseWebhook(r *http.Request) (domain.InboundMessage, bool, error)
}

// TelegramHandler receives Telegram webhook updates.
type TelegramHandler struct {
	parser  WebhookParser
	linking linking.Service
}

func NewTelegramHandler(parser WebhookParser, linkingSvc linking.Service) *TelegramHandler {
	return &TelegramHandler{parser: parser, linking: linkingSvc}
}

// Webhook always answers 200 so Telegram does not redeliver; failures are logged.
func (h *TelegramHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	msg, ok, err := h.parser.ParseWebhook(r)
	if err != nil {
		slog.Warn("bad telegram update", "err", err)
	}
	if ok {
		Dispatch(h.linking)(r.Context(), msg)
	}
	w.WriteHeader(http.StatusOK)
}

// Dispatch adapts the linking service to the shape the long-polling
// listener expects.
func Dispatch(svc linking.Service) func(context.Context, domain.InboundMessage) {
	return func(ctx context.Context, msg domain.InboundMessage) {
		if _, err := svc.HandleInbound(ctx, msg); err != nil {
			slog.Error("inbound telegram message failed", "channel_identity_id", msg.ChannelIdentityID, "err", err)
		}
	}
}
