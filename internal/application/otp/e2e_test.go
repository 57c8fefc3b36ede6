package otp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram-otp/internal/application/linking"
	"github.com/go-telegram-otp/internal/application/linktoken"
	"github.com/go-telegram-otp/internal/domain"
	"github.com/go-telegram-otp/internal/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDB backs all three stores in memory with the conditional semantics of
// the DynamoDB repos.
type memDB struct {
	mu        sync.Mutex
	tokens    map[string]domain.PendingLink
	links     map[string]domain.IdentityLink
	claims    map[string]string
	passcodes map[string]domain.OTPRecord
}

func newMemDB() *memDB {
	return &memDB{
		tokens:    map[string]domain.PendingLink{},
		links:     map[string]domain.IdentityLink{},
		claims:    map[string]string{},
		passcodes: map[string]domain.OTPRecord{},
	}
}

type memTokens struct{ *memDB }

func (m memTokens) Create(_ context.Context, p *domain.PendingLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[p.Token]; ok {
		return domain.ErrConflict
	}
	m.tokens[p.Token] = *p
	return nil
}

func (m memTokens) Get(_ context.Context, tok string) (*domain.PendingLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.tokens[tok]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return &p, nil
}

func (m memTokens) ActiveForUser(_ context.Context, userID string, now time.Time) (*domain.PendingLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.tokens {
		if p.UserID == userID && !p.Expired(now) {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m memTokens) Delete(_ context.Context, tok string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[tok]
	delete(m.tokens, tok)
	return ok, nil
}

func (m memTokens) ListActive(_ context.Context, now time.Time) ([]domain.PendingLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PendingLink
	for _, p := range m.tokens {
		if !p.Expired(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

type memLinks struct{ *memDB }

func (m memLinks) GetByUser(_ context.Context, userID string) (*domain.IdentityLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

func (m memLinks) GetByChannelIdentity(ctx context.Context, cid string) (*domain.IdentityLink, error) {
	m.mu.Lock()
	uid, ok := m.claims[cid]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.GetByUser(ctx, uid)
}

func (m memLinks) Link(_ context.Context, l *domain.IdentityLink, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.tokens[tok]
	switch {
	case !ok || p.Expired(l.LinkedAt) || p.UserID != l.UserID:
		return domain.ErrTokenNotFound
	case m.links[l.UserID].UserID != "":
		return domain.ErrUserAlreadyLinked
	case m.claims[l.ChannelIdentityID] != "":
		return domain.ErrChannelAlreadyLinked
	}
	delete(m.tokens, tok)
	m.links[l.UserID] = *l
	m.claims[l.ChannelIdentityID] = l.UserID
	return nil
}

func (m memLinks) UpdateAddress(_ context.Context, userID, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[userID]
	if !ok {
		return domain.ErrNotFound
	}
	l.ChannelAddress = address
	m.links[userID] = l
	return nil
}

func (m memLinks) Delete(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[userID]
	if !ok {
		return false, nil
	}
	delete(m.links, userID)
	delete(m.claims, l.ChannelIdentityID)
	return true, nil
}

func (m memLinks) List(context.Context) ([]domain.IdentityLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.IdentityLink
	for _, l := range m.links {
		out = append(out, l)
	}
	return out, nil
}

type memPasscodes struct{ *memDB }

func (m memPasscodes) Put(_ context.Context, o *domain.OTPRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passcodes[o.UserID] = *o
	return nil
}

func (m memPasscodes) Get(_ context.Context, userID string) (*domain.OTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.passcodes[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

func (m memPasscodes) Consume(_ context.Context, userID, hashed string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.passcodes[userID]
	if !ok || o.HashedCode != hashed {
		return false, nil
	}
	delete(m.passcodes, userID)
	return true, nil
}

func (m memPasscodes) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.passcodes, userID)
	return nil
}

func (m memPasscodes) IncrementAttempts(_ context.Context, userID, hashed string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.passcodes[userID]
	if !ok || o.HashedCode != hashed {
		return 0, domain.ErrNotFound
	}
	o.Attempts++
	m.passcodes[userID] = o
	return o.Attempts, nil
}

// chatLog records outgoing Telegram messages per chat.
type chatLog struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func (c *chatLog) SendText(_ context.Context, address, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msgs == nil {
		c.msgs = map[string][]string{}
	}
	c.msgs[address] = append(c.msgs[address], text)
	return nil
}

func (c *chatLog) last(address string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.msgs[address]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type system struct {
	db      *memDB
	chat    *chatLog
	tokens  linktoken.Service
	linking linking.Service
	otp     Service
}

func newSystem(t *testing.T) *system {
	t.Helper()
	db := newMemDB()
	chat := &chatLog{}
	lim := ratelimit.NewFixedWindow(5, time.Minute, 0)
	t.Cleanup(lim.Close)

	tokens := linktoken.NewService(linktoken.Deps{
		Store:        memTokens{db},
		TTL:          20 * time.Minute,
		DeepLinkBase: "https://t.me/otp_bot",
	})
	return &system{
		db:      db,
		chat:    chat,
		tokens:  tokens,
		linking: linking.NewService(linking.Deps{Store: memLinks{db}, Tokens: tokens, Sender: chat, OTPs: memPasscodes{db}}),
		otp: NewService(Deps{
			Store:       memPasscodes{db},
			Links:       memLinks{db},
			Limiter:     lim,
			Sender:      chat,
			Tokens:      tokens,
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
		}),
	}
}

func TestEndToEnd_LinkRequestVerify(t *testing.T) {
	ctx := context.Background()
	sys := newSystem(t)

	issued, err := sys.tokens.Issue(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/otp_bot?start="+issued.Token, issued.DeepLink)

	res, err := sys.linking.HandleInbound(ctx, domain.InboundMessage{
		ChannelIdentityID: "99", Address: "chat-99", Text: "/start " + issued.Token,
	})
	require.NoError(t, err)
	assert.Equal(t, linking.LinkedNew, res)
	assert.Equal(t, linking.MsgLinked, sys.chat.last("chat-99"))

	req, err := sys.otp.Request(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, Sent, req.Status)

	m := codeMessage.FindStringSubmatch(sys.chat.last("chat-99"))
	require.Len(t, m, 2)
	code := m[1]

	ok, err := sys.otp.Verify(ctx, "alice", code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sys.otp.Verify(ctx, "alice", code)
	require.NoError(t, err)
	assert.False(t, ok, "codes are single-use")
}

func TestEndToEnd_NewRequestReplacesOldCode(t *testing.T) {
	ctx := context.Background()
	sys := newSystem(t)
	issued, err := sys.tokens.Issue(ctx, "alice")
	require.NoError(t, err)
	_, err = sys.linking.Activate(ctx, issued.Token, "99", "chat-99")
	require.NoError(t, err)

	_, err = sys.otp.Request(ctx, "alice")
	require.NoError(t, err)
	first := codeMessage.FindStringSubmatch(sys.chat.last("chat-99"))[1]
	_, err = sys.otp.Request(ctx, "alice")
	require.NoError(t, err)
	second := codeMessage.FindStringSubmatch(sys.chat.last("chat-99"))[1]

	if first != second {
		ok, err := sys.otp.Verify(ctx, "alice", first)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	ok, err := sys.otp.Verify(ctx, "alice", second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEndToEnd_UnlinkPurgesCode(t *testing.T) {
	ctx := context.Background()
	sys := newSystem(t)
	issued, err := sys.tokens.Issue(ctx, "alice")
	require.NoError(t, err)
	_, err = sys.linking.Activate(ctx, issued.Token, "99", "chat-99")
	require.NoError(t, err)
	_, err = sys.otp.Request(ctx, "alice")
	require.NoError(t, err)
	code := codeMessage.FindStringSubmatch(sys.chat.last("chat-99"))[1]

	removed, err := sys.linking.Unlink(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, removed)

	ok, err := sys.otp.Verify(ctx, "alice", code)
	require.NoError(t, err)
	assert.False(t, ok)

	req, err := sys.otp.Request(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, NotLinked, req.Status)
}

func TestEndToEnd_IssueReusesActiveToken(t *testing.T) {
	ctx := context.Background()
	sys := newSystem(t)

	a, err := sys.tokens.Issue(ctx, "alice")
	require.NoError(t, err)
	b, err := sys.tokens.Issue(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, a.Token, b.Token)
	assert.True(t, b.Reused)
	assert.Len(t, sys.db.tokens, 1)
}
