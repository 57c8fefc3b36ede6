package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram-otp/internal/domain"
	"github.com/go-telegram-otp/internal/pkg/validate"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OTPRequestEnvelope wraps POST /otp/request responses.
type OTPRequestEnvelope struct {
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RepairLink string     `json:"repair_link,omitempty"`
}

// VerifyEnvelope wraps POST /otp/verify responses.
type VerifyEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// LinkedEnvelope wraps GET /otp/linked/{userID} responses.
type LinkedEnvelope struct {
	UserID string `json:"user_id"`
	Linked bool   `json:"linked"`
}

// AdminToken is a pending link as shown to operators.
type AdminToken struct {
	Token       string    `json:"token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	MinutesLeft int       `json:"minutes_left"`
}

// AdminDataEnvelope wraps GET /admin/links responses.
type AdminDataEnvelope struct {
	Links         []domain.IdentityLink `json:"links"`
	PendingTokens []AdminToken          `json:"pending_tokens"`
}

type userRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

type verifyRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	OTP    string `json:"otp" validate:"required,otp"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// maxBodyBytes bounds request bodies on the public routes.
const maxBodyBytes = 1 << 16

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

// httpError maps a service error to a status code. Store and transport
// details are logged, not returned.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrChannelTransport):
		slog.Error("telegram delivery failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadGateway, "telegram delivery failed")
	default:
		slog.Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
