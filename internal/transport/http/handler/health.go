package handler

import (
	"net/http"
	"time"
)

// HealthEnvelope wraps GET /health responses.
type HealthEnvelope struct {
	Status            string    `json:"status"`
	Time              time.Time `json:"time"`
	Bot               string    `json:"bot,omitempty"`
	WebhookConfigured bool      `json:"webhook_configured"`
}

// HealthHandler reports liveness and how Telegram updates are received.
type HealthHandler struct {
	botUsername string
	webhook     bool
}

func NewHealthHandler(botUsername string, webhook bool) *HealthHandler {
	return &HealthHandler{botUsername: botUsername, webhook: webhook}
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthEnvelope{
		Status:            "ok",
		Time:              time.Now().UTC(),
		Bot:               h.botUsername,
		WebhookConfigured: h.webhook,
	})
}
