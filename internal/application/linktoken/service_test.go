package linktoken

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram-otp/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct{ mock.Mock }

func (m *mockStore) Create(ctx context.Context, p *domain.PendingLink) error {
	return m.Called(ctx, p).Error(0)
}
func (m *mockStore) Get(ctx context.Context, token string) (*domain.PendingLink, error) {
	args := m.Called(ctx, token)
	if p, _ := args.Get(0).(*domain.PendingLink); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) ActiveForUser(ctx context.Context, userID string, now time.Time) (*domain.PendingLink, error) {
	args := m.Called(ctx, userID, now)
	if p, _ := args.Get(0).(*domain.PendingLink); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) Delete(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}
func (m *mockStore) ListActive(ctx context.Context, now time.Time) ([]domain.PendingLink, error) {
	args := m.Called(ctx, now)
	links, _ := args.Get(0).([]domain.PendingLink)
	return links, args.Error(1)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(st Store) Service {
	return NewService(Deps{
		Store:        st,
		TTL:          20 * time.Minute,
		DeepLinkBase: "https://t.me/otp_bot",
		Now:          func() time.Time { return fixedNow },
	})
}

// --- Issue ---

func TestIssue_NewToken(t *testing.T) {
	st := &mockStore{}
	st.On("ActiveForUser", mock.Anything, "alice", fixedNow).Return(nil, domain.ErrNotFound)
	st.On("Create", mock.Anything, mock.MatchedBy(func(p *domain.PendingLink) bool {
		return p.UserID == "alice" && len(p.Token) == 32 && p.ExpiresAt == fixedNow.Add(20*time.Minute).Unix()
	})).Return(nil)

	res, err := newTestService(st).Issue(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Len(t, res.Token, 32)
	assert.Equal(t, "https://t.me/otp_bot?start="+res.Token, res.DeepLink)
	assert.Equal(t, fixedNow.Add(20*time.Minute), res.ExpiresAt)
	st.AssertExpectations(t)
}

func TestIssue_ReusesActiveToken(t *testing.T) {
	st := &mockStore{}
	st.On("ActiveForUser", mock.Anything, "alice", fixedNow).Return(&domain.PendingLink{
		Token: "abc", UserID: "alice", ExpiresAt: fixedNow.Add(5 * time.Minute).Unix(),
	}, nil)

	res, err := newTestService(st).Issue(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, res.Reused)
	assert.Equal(t, "abc", res.Token)
	st.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIssue_IgnoresExpiredActiveToken(t *testing.T) {
	st := &mockStore{}
	st.On("ActiveForUser", mock.Anything, "alice", fixedNow).Return(&domain.PendingLink{
		Token: "old", UserID: "alice", ExpiresAt: fixedNow.Unix(),
	}, nil)
	st.On("Create", mock.Anything, mock.Anything).Return(nil)

	res, err := newTestService(st).Issue(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.NotEqual(t, "old", res.Token)
}

func TestIssue_RetriesOnCollision(t *testing.T) {
	st := &mockStore{}
	st.On("ActiveForUser", mock.Anything, "alice", fixedNow).Return(nil, domain.ErrNotFound)
	st.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict).Once()
	st.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := newTestService(st).Issue(context.Background(), "alice")
	require.NoError(t, err)
	st.AssertNumberOfCalls(t, "Create", 2)
}

func TestIssue_EmptyUser(t *testing.T) {
	_, err := newTestService(&mockStore{}).Issue(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestIssue_StoreFailure(t *testing.T) {
	st := &mockStore{}
	st.On("ActiveForUser", mock.Anything, "alice", fixedNow).Return(nil, domain.ErrStore)

	_, err := newTestService(st).Issue(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrStore)
}

// --- Resolve / Consume / Revoke ---

func TestResolve_Expired(t *testing.T) {
	st := &mockStore{}
	st.On("Get", mock.Anything, "t1").Return(&domain.PendingLink{Token: "t1", ExpiresAt: fixedNow.Unix()}, nil)

	_, err := newTestService(st).Resolve(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestResolve_Valid(t *testing.T) {
	st := &mockStore{}
	st.On("Get", mock.Anything, "t1").Return(&domain.PendingLink{Token: "t1", UserID: "alice", ExpiresAt: fixedNow.Unix() + 1}, nil)

	p, err := newTestService(st).Resolve(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UserID)
}

func TestConsume_MissingIsNotAnError(t *testing.T) {
	st := &mockStore{}
	st.On("Delete", mock.Anything, "gone").Return(false, nil)

	removed, err := newTestService(st).Consume(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRevoke(t *testing.T) {
	st := &mockStore{}
	st.On("Delete", mock.Anything, "t1").Return(true, nil).Once()
	st.On("Delete", mock.Anything, "t1").Return(false, nil).Once()

	svc := newTestService(st)
	require.NoError(t, svc.Revoke(context.Background(), "t1"))
	assert.ErrorIs(t, svc.Revoke(context.Background(), "t1"), domain.ErrNotFound)
}

func TestListActive_ComputesRemaining(t *testing.T) {
	st := &mockStore{}
	st.On("ListActive", mock.Anything, fixedNow).Return([]domain.PendingLink{
		{Token: "a", UserID: "alice", ExpiresAt: fixedNow.Add(7 * time.Minute).Unix()},
		{Token: "b", UserID: "bob", ExpiresAt: fixedNow.Add(-time.Second).Unix()},
	}, nil)

	active, err := newTestService(st).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].Token)
	assert.Equal(t, 7*time.Minute, active[0].Remaining)
}

func TestListActive_StoreFailure(t *testing.T) {
	st := &mockStore{}
	st.On("ListActive", mock.Anything, fixedNow).Return(nil, errors.New("boom"))

	_, err := newTestService(st).ListActive(context.Background())
	assert.Error(t, err)
}
