package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram-otp/internal/application/linktoken"
	"github.com/go-telegram-otp/internal/domain"
	"github.com/go-telegram-otp/internal/pkg/otpcode"
	"github.com/go-telegram-otp/internal/pkg/ratelimit"
)

const messageTemplate = "Your verification code is: %s"

type RequestStatus string

const (
	Sent           RequestStatus = "sent"
	RateLimited    RequestStatus = "rate_limited"
	NotLinked      RequestStatus = "not_linked"
	ChannelBlocked RequestStatus = "channel_blocked"
)

type RequestResult struct {
	Status    RequestStatus
	ExpiresAt time.Time // set when Status is Sent
	// RepairLink is a fresh deep link to re-link Telegram, set when Status is ChannelBlocked.
	RepairLink string
}

// Store persists passcodes. Implemented by dynamo.OTPRepo.
type Store interface {
	Put(ctx context.Context, o *domain.OTPRecord) error
	Get(ctx context.Context, userID string) (*domain.OTPRecord, error)
	Consume(ctx context.Context, userID, hashedCode string) (bool, error)
	IncrementAttempts(ctx context.Context, userID, hashedCode string) (int, error)
}

type LinkLookup interface {
	GetByUser(ctx context.Context, userID string) (*domain.IdentityLink, error)
}

type Sender interface {
	SendText(ctx context.Context, address, text string) error
}

// LinkIssuer hands out a deep link so a user who blocked the bot can re-link.
type LinkIssuer interface {
	Issue(ctx context.Context, userID string) (*linktoken.IssueResult, error)
}

type Service interface {
	Request(ctx context.Context, userID string) (*RequestResult, error)
	Verify(ctx context.Context, userID, code string) (bool, error)
}

type Deps struct {
	Store       Store
	Links       LinkLookup
	Limiter     ratelimit.Limiter
	Sender      Sender
	Tokens      LinkIssuer
	TTL         time.Duration
	MaxAttempts int // wrong guesses before the code is discarded; 0 disables
	Now         func() time.Time
}

type service struct {
	store       Store
	links       LinkLookup
	limiter     ratelimit.Limiter
	sender      Sender
	tokens      LinkIssuer
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewService(d Deps) Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &service{
		store:       d.Store,
		links:       d.Links,
		limiter:     d.Limiter,
		sender:      d.Sender,
		tokens:      d.Tokens,
		ttl:         d.TTL,
		maxAttempts: d.MaxAttempts,
		now:         d.Now,
	}
}

// Request generates a new code for userID, replacing any previous one, and
// sends it to the user's linked Telegram chat.
func (s *service) Request(ctx context.Context, userID string) (*RequestResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required: %w", domain.ErrBadRequest)
	}
	if !s.limiter.Allow(ctx, userID) {
		slog.Info("otp request rate limited", "user_id", userID)
		return &RequestResult{Status: RateLimited}, nil
	}

	link, err := s.links.GetByUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &RequestResult{Status: NotLinked}, nil
	}
	if err != nil {
		return nil, err
	}

	code, err := otpcode.Generate()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rec := &domain.OTPRecord{
		UserID:     userID,
		HashedCode: otpcode.Hash(code),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl).Unix(),
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}

	err = s.sender.SendText(ctx, link.ChannelAddress, fmt.Sprintf(messageTemplate, code))
	if errors.Is(err, domain.ErrChannelBlocked) {
		slog.Warn("otp not delivered: bot blocked", "user_id", userID)
		res := &RequestResult{Status: ChannelBlocked}
		repair, ierr := s.tokens.Issue(ctx, userID)
		if ierr != nil {
			slog.Error("could not issue repair link", "user_id", userID, "err", ierr)
			return res, nil
		}
		res.RepairLink = repair.DeepLink
		return res, nil
	}
	if err != nil {
		slog.Error("otp delivery failed", "user_id", userID, "err", err)
		return nil, err
	}

	slog.Info("otp sent", "user_id", userID)
	return &RequestResult{Status: Sent, ExpiresAt: time.Unix(rec.ExpiresAt, 0).UTC()}, nil
}

// Verify checks code against the user's outstanding passcode. A match
// consumes the passcode; so does expiry and, when capped, too many misses.
func (s *service) Verify(ctx context.Context, userID, code string) (bool, error) {
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if rec.Expired(s.now()) || s.exhausted(rec.Attempts) {
		return false, s.discard(ctx, rec)
	}

	if otpcode.Match(code, rec.HashedCode) {
		ok, err := s.store.Consume(ctx, userID, rec.HashedCode)
		if err != nil {
			return false, err
		}
		if ok {
			slog.Info("otp verified", "user_id", userID)
		}
		return ok, nil
	}

	if s.maxAttempts <= 0 {
		return false, nil
	}
	attempts, err := s.store.IncrementAttempts(ctx, userID, rec.HashedCode)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.exhausted(attempts) {
		slog.Warn("otp discarded after too many wrong guesses", "user_id", userID, "attempts", attempts)
		return false, s.discard(ctx, rec)
	}
	return false, nil
}

// discard removes rec only while it is still the user's current code; a
// record written by a newer Request in the meantime is left alone.
func (s *service) discard(ctx context.Context, rec *domain.OTPRecord) error {
	_, err := s.store.Consume(ctx, rec.UserID, rec.HashedCode)
	return err
}

func (s *service) exhausted(attempts int) bool {
	return s.maxAttempts > 0 && attempts >= s.maxAttempts
}
