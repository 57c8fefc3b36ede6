package linktoken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram-otp/internal/domain"
	"github.com/go-telegram-otp/internal/pkg/token"
)

// createAttempts bounds retries on the (practically impossible) token collision.
const createAttempts = 3

// Store persists pending links. Implemented by dynamo.LinkTokenRepo.
type Store interface {
	Create(ctx context.Context, p *domain.PendingLink) error
	Get(ctx context.Context, token string) (*domain.PendingLink, error)
	ActiveForUser(ctx context.Context, userID string, now time.Time) (*domain.PendingLink, error)
	Delete(ctx context.Context, token string) (bool, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.PendingLink, error)
}

type IssueResult struct {
	Token     string    `json:"token"`
	DeepLink  string    `json:"deep_link"`
	ExpiresAt time.Time `json:"expires_at"`
	Reused    bool      `json:"reused"`
}

// ActiveToken is a pending link with its remaining lifetime.
type ActiveToken struct {
	Token     string        `json:"token"`
	UserID    string        `json:"user_id"`
	ExpiresAt time.Time     `json:"expires_at"`
	Remaining time.Duration `json:"-"`
}

type Service interface {
	Issue(ctx context.Context, userID string) (*IssueResult, error)
	Resolve(ctx context.Context, token string) (*domain.PendingLink, error)
	Consume(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string) error
	ListActive(ctx context.Context) ([]ActiveToken, error)
	DeepLink(token string) string
}

type Deps struct {
	Store        Store
	TTL          time.Duration
	DeepLinkBase string // e.g. https://t.me/my_bot
	Now          func() time.Time
}

type service struct {
	store        Store
	ttl          time.Duration
	deepLinkBase string
	now          func() time.Time
}

func NewService(d Deps) Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &service{
		store:        d.Store,
		ttl:          d.TTL,
		deepLinkBase: d.DeepLinkBase,
		now:          d.Now,
	}
}

// Issue returns the user's active token if there is one, otherwise a fresh one.
func (s *service) Issue(ctx context.Context, userID string) (*IssueResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required: %w", domain.ErrBadRequest)
	}
	now := s.now().UTC()

	existing, err := s.store.ActiveForUser(ctx, userID, now)
	switch {
	case err == nil && !existing.Expired(now):
		return s.result(existing, true), nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	for i := 0; i < createAttempts; i++ {
		tok, err := token.NewLinkToken()
		if err != nil {
			return nil, err
		}
		p := &domain.PendingLink{
			Token:     tok,
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl).Unix(),
		}
		err = s.store.Create(ctx, p)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		slog.Info("link token issued", "user_id", userID, "expires_at", p.ExpiresAt)
		return s.result(p, false), nil
	}
	return nil, fmt.Errorf("issue link token: %w", domain.ErrConflict)
}

func (s *service) Resolve(ctx context.Context, tok string) (*domain.PendingLink, error) {
	p, err := s.store.Get(ctx, tok)
	if err != nil {
		return nil, err
	}
	if p.Expired(s.now()) {
		return nil, fmt.Errorf("link token expired: %w", domain.ErrTokenNotFound)
	}
	return p, nil
}

// Consume deletes the token and reports whether this call removed it.
func (s *service) Consume(ctx context.Context, tok string) (bool, error) {
	return s.store.Delete(ctx, tok)
}

func (s *service) Revoke(ctx context.Context, tok string) error {
	removed, err := s.store.Delete(ctx, tok)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("link token: %w", domain.ErrNotFound)
	}
	slog.Info("link token revoked")
	return nil
}

func (s *service) ListActive(ctx context.Context) ([]ActiveToken, error) {
	now := s.now()
	links, err := s.store.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]ActiveToken, 0, len(links))
	for _, p := range links {
		if p.Expired(now) {
			continue
		}
		exp := time.Unix(p.ExpiresAt, 0).UTC()
		out = append(out, ActiveToken{
			Token:     p.Token,
			UserID:    p.UserID,
			ExpiresAt: exp,
			Remaining: exp.Sub(now),
		})
	}
	return out, nil
}

func (s *service) DeepLink(tok string) string {
	return s.deepLinkBase + "?start=" + tok
}

func (s *service) result(p *domain.PendingLink, reused bool) *IssueResult {
	return &IssueResult{
		Token:     p.Token,
		DeepLink:  s.DeepLink(p.Token),
		ExpiresAt: time.Unix(p.ExpiresAt, 0).UTC(),
		Reused:    reused,
	}
}
