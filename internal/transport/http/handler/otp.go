package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-telegram-otp/internal/application/linking"
	"github.com/go-telegram-otp/internal/application/linktoken"
	"github.com/go-telegram-otp/internal/application/otp"
)

// OTPHandler serves the client-facing link and passcode endpoints.
type OTPHandler struct {
	tokens  linktoken.Service
	linking linking.Service
	otp     otp.Service
}

func NewOTPHandler(tokens linktoken.Service, linkingSvc linking.Service, otpSvc otp.Service) *OTPHandler {
	return &OTPHandler{tokens: tokens, linking: linkingSvc, otp: otpSvc}
}

// LinkToken issues (or reuses) a deep link that binds user_id to Telegram.
func (h *OTPHandler) LinkToken(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.tokens.Issue(r.Context(), req.UserID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OTPHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.otp.Request(r.Context(), req.UserID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	switch res.Status {
	case otp.Sent:
		writeJSON(w, http.StatusOK, OTPRequestEnvelope{Message: "OTP sent via Telegram", ExpiresAt: &res.ExpiresAt})
	case otp.RateLimited:
		writeJSON(w, http.StatusTooManyRequests, OTPRequestEnvelope{Error: "too many OTP requests, try again later"})
	case otp.NotLinked:
		writeJSON(w, http.StatusNotFound, OTPRequestEnvelope{Error: "telegram is not linked for this user"})
	case otp.ChannelBlocked:
		writeJSON(w, http.StatusForbidden, OTPRequestEnvelope{
			Error:      "the bot is blocked in Telegram; open the repair link to reconnect",
			RepairLink: res.RepairLink,
		})
	default:
		httpError(w, r, fmt.Errorf("unknown otp request status %q", res.Status))
	}
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	ok, err := h.otp.Verify(r.Context(), req.UserID, req.OTP)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, VerifyEnvelope{Error: "invalid or expired OTP"})
		return
	}
	writeJSON(w, http.StatusOK, VerifyEnvelope{Success: true})
}

func (h *OTPHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	unlinkUser(w, r, h.linking, req.UserID)
}

func (h *OTPHandler) Linked(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	linked, err := h.linking.IsLinked(r.Context(), userID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LinkedEnvelope{UserID: userID, Linked: linked})
}

func unlinkUser(w http.ResponseWriter, r *http.Request, svc linking.Service, userID string) {
	removed, err := svc.Unlink(r.Context(), userID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "telegram is not linked for this user")
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "telegram unlinked"})
}
