package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrTokenNotFound covers unknown, expired and already consumed link tokens.
	ErrTokenNotFound        = errors.New("link token not found")
	ErrUserAlreadyLinked    = errors.New("user already linked to another channel identity")
	ErrChannelAlreadyLinked = errors.New("channel identity already linked to another user")

	// ErrChannelBlocked means the recipient blocked the bot; re-linking repairs it.
	ErrChannelBlocked   = errors.New("channel blocked by recipient")
	ErrChannelTransport = errors.New("channel transport failure")
	ErrStore            = errors.New("store failure")
)
