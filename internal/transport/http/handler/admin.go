package handler

import (
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-telegram-otp/internal/application/linking"
	"github.com/go-telegram-otp/internal/application/linktoken"
)

// AdminHandler exposes links and pending tokens to operators.
type AdminHandler struct {
	tokens  linktoken.Service
	linking linking.Service
}

func NewAdminHandler(tokens linktoken.Service, linkingSvc linking.Service) *AdminHandler {
	return &AdminHandler{tokens: tokens, linking: linkingSvc}
}

// Data lists every identity link and every pending token with minutes left.
func (h *AdminHandler) Data(w http.ResponseWriter, r *http.Request) {
	links, err := h.linking.List(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	active, err := h.tokens.ListActive(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	pending := make([]AdminToken, len(active))
	for i, t := range active {
		pending[i] = AdminToken{
			Token:       t.Token,
			UserID:      t.UserID,
			ExpiresAt:   t.ExpiresAt,
			MinutesLeft: int(math.Ceil(t.Remaining.Minutes())),
		}
	}
	writeJSON(w, http.StatusOK, AdminDataEnvelope{Links: links, PendingTokens: pending})
}

func (h *AdminHandler) UnlinkUser(w http.ResponseWriter, r *http.Request) {
	unlinkUser(w, r, h.linking, chi.URLParam(r, "userID"))
}

func (h *AdminHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Revoke(r.Context(), chi.URLParam(r, "token")); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "token revoked"})
}
