// Package linking binds application users to Telegram identities.
package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram-otp/internal/domain"
	"github.com/go-telegram-otp/internal/pkg/id"
)

// ActivationResult is the outcome of an activation attempt. Business
// outcomes are results, not errors; errors are reserved for store failures.
type ActivationResult string

const (
	LinkedNew                    ActivationResult = "linked_new"
	AlreadyLinkedSameChannel     ActivationResult = "already_linked_same_channel"
	ConflictAppUserAlreadyLinked ActivationResult = "conflict_app_user_already_linked"
	ConflictChannelAlreadyLinked ActivationResult = "conflict_channel_already_linked"
	InvalidToken                 ActivationResult = "invalid_token"
	Ignored                      ActivationResult = "ignored"
)

// Replies sent to the Telegram user for each outcome.
const (
	MsgInvalidToken    = "❌ Invalid or expired link token."
	MsgLinked          = "✅ Telegram linked successfully. You can now request an OTP."
	MsgRestored        = "✅ Telegram connection restored. You can now request an OTP."
	MsgUserConflict    = "⚠️ This account is already linked to another Telegram user."
	MsgChannelConflict = "⚠️ This Telegram account is already linked to another user."
)

const startCommand = "/start"

// Store persists identity links. Implemented by dynamo.IdentityLinkRepo.
type Store interface {
	GetByUser(ctx context.Context, userID string) (*domain.IdentityLink, error)
	GetByChannelIdentity(ctx context.Context, channelIdentityID string) (*domain.IdentityLink, error)
	Link(ctx context.Context, l *domain.IdentityLink, token string) error
	UpdateAddress(ctx context.Context, userID, address string) error
	Delete(ctx context.Context, userID string) (bool, error)
	List(ctx context.Context) ([]domain.IdentityLink, error)
}

// Tokens is the part of linktoken.Service activation needs.
type Tokens interface {
	Resolve(ctx context.Context, token string) (*domain.PendingLink, error)
	Consume(ctx context.Context, token string) (bool, error)
}

// Sender delivers a text message to a channel address.
type Sender interface {
	SendText(ctx context.Context, address, text string) error
}

// OTPPurger removes a user's outstanding passcode.
type OTPPurger interface {
	Delete(ctx context.Context, userID string) error
}

type Service interface {
	Activate(ctx context.Context, token, channelIdentityID, channelAddress string) (ActivationResult, error)
	HandleInbound(ctx context.Context, msg domain.InboundMessage) (ActivationResult, error)
	Unlink(ctx context.Context, userID string) (bool, error)
	IsLinked(ctx context.Context, userID string) (bool, error)
	List(ctx context.Context) ([]domain.IdentityLink, error)
}

type Deps struct {
	Store  Store
	Tokens Tokens
	Sender Sender
	OTPs   OTPPurger
	Now    func() time.Time
}

type service struct {
	store  Store
	tokens Tokens
	sender Sender
	otps   OTPPurger
	now    func() time.Time
}

func NewService(d Deps) Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &service{
		store:  d.Store,
		tokens: d.Tokens,
		sender: d.Sender,
		otps:   d.OTPs,
		now:    d.Now,
	}
}

// Activate redeems token on behalf of the Telegram identity channelIdentityID,
// replying at channelAddress with the outcome. Every outcome consumes a valid
// token; InvalidToken never mutates anything.
func (s *service) Activate(ctx context.Context, token, channelIdentityID, channelAddress string) (ActivationResult, error) {
	res, err := s.activate(ctx, token, channelIdentityID, channelAddress, true)
	if err != nil {
		slog.Error("activation failed", "channel_identity_id", channelIdentityID, "err", err)
		return "", err
	}
	s.reply(ctx, channelAddress, replyFor(res))
	slog.Info("activation", "channel_identity_id", channelIdentityID, "result", string(res))
	return res, nil
}

func (s *service) activate(ctx context.Context, token, channelIdentityID, channelAddress string, retry bool) (ActivationResult, error) {
	p, err := s.tokens.Resolve(ctx, token)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return InvalidToken, nil
	}
	if err != nil {
		return "", err
	}

	existing, err := s.store.GetByUser(ctx, p.UserID)
	switch {
	case err == nil && existing.ChannelIdentityID == channelIdentityID:
		return s.consumeThen(ctx, token, AlreadyLinkedSameChannel, func() error {
			return s.store.UpdateAddress(ctx, p.UserID, channelAddress)
		})
	case err == nil:
		return s.consumeThen(ctx, token, ConflictAppUserAlreadyLinked, nil)
	case !errors.Is(err, domain.ErrNotFound):
		return "", err
	}

	_, err = s.store.GetByChannelIdentity(ctx, channelIdentityID)
	switch {
	case err == nil:
		return s.consumeThen(ctx, token, ConflictChannelAlreadyLinked, nil)
	case !errors.Is(err, domain.ErrNotFound):
		return "", err
	}

	now := s.now().UTC()
	err = s.store.Link(ctx, &domain.IdentityLink{
		LinkID:            id.NewAt(now),
		UserID:            p.UserID,
		ChannelIdentityID: channelIdentityID,
		ChannelAddress:    channelAddress,
		LinkedAt:          now,
		UpdatedAt:         now,
	}, token)
	switch {
	case err == nil:
		return LinkedNew, nil
	case errors.Is(err, domain.ErrTokenNotFound):
		return InvalidToken, nil
	case retry && (errors.Is(err, domain.ErrUserAlreadyLinked) || errors.Is(err, domain.ErrChannelAlreadyLinked)):
		// A link appeared between the reads and the commit; the token is
		// still there, so classify again against the new state.
		return s.activate(ctx, token, channelIdentityID, channelAddress, false)
	case errors.Is(err, domain.ErrUserAlreadyLinked):
		return s.consumeThen(ctx, token, ConflictAppUserAlreadyLinked, nil)
	case errors.Is(err, domain.ErrChannelAlreadyLinked):
		return s.consumeThen(ctx, token, ConflictChannelAlreadyLinked, nil)
	default:
		return "", err
	}
}

// consumeThen consumes token and runs then. If another activation consumed
// the token first the outcome is InvalidToken.
func (s *service) consumeThen(ctx context.Context, token string, res ActivationResult, then func() error) (ActivationResult, error) {
	removed, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return "", err
	}
	if !removed {
		return InvalidToken, nil
	}
	if then != nil {
		if err := then(); err != nil {
			return "", err
		}
	}
	return res, nil
}

// HandleInbound activates on "/start <token>" and ignores everything else.
func (s *service) HandleInbound(ctx context.Context, msg domain.InboundMessage) (ActivationResult, error) {
	token, ok := parseStart(msg.Text)
	if !ok {
		return Ignored, nil
	}
	return s.Activate(ctx, token, msg.ChannelIdentityID, msg.Address)
}

// Unlink removes the user's link and any outstanding passcode.
func (s *service) Unlink(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("user_id is required: %w", domain.ErrBadRequest)
	}
	removed, err := s.store.Delete(ctx, userID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	if s.otps != nil {
		if err := s.otps.Delete(ctx, userID); err != nil {
			slog.Warn("could not purge otp after unlink", "user_id", userID, "err", err)
		}
	}
	slog.Info("identity unlinked", "user_id", userID)
	return true, nil
}

func (s *service) IsLinked(ctx context.Context, userID string) (bool, error) {
	_, err := s.store.GetByUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) List(ctx context.Context) ([]domain.IdentityLink, error) {
	return s.store.List(ctx)
}

// reply sends text; delivery failures are logged and dropped.
func (s *service) reply(ctx context.Context, address, text string) {
	if text == "" {
		return
	}
	if err := s.sender.SendText(ctx, address, text); err != nil {
		slog.Warn("activation reply not delivered", "err", err)
	}
}

func replyFor(res ActivationResult) string {
	switch res {
	case LinkedNew:
		return MsgLinked
	case AlreadyLinkedSameChannel:
		return MsgRestored
	case ConflictAppUserAlreadyLinked:
		return MsgUserConflict
	case ConflictChannelAlreadyLinked:
		return MsgChannelConflict
	case InvalidToken:
		return MsgInvalidToken
	}
	return ""
}

// parseStart extracts the token from "/start <token>" or "/start@Bot <token>".
func parseStart(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", false
	}
	cmd := fields[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd != startCommand {
		return "", false
	}
	return fields[1], true
}
