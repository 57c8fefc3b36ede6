package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-telegram-otp/internal/application/linking"
	"github.com/go-telegram-otp/internal/application/linktoken"
	"github.com/go-telegram-otp/internal/application/otp"
	"github.com/go-telegram-otp/internal/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockTokenSvc struct{ mock.Mock }

func (m *mockTokenSvc) Issue(ctx context.Context, userID string) (*linktoken.IssueResult, error) {
	args := m.Called(ctx, userID)
	if r, _ := args.Get(0).(*linktoken.IssueResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTokenSvc) Resolve(ctx context.Context, token string) (*domain.PendingLink, error) {
	args := m.Called(ctx, token)
	if p, _ := args.Get(0).(*domain.PendingLink); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTokenSvc) Consume(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}
func (m *mockTokenSvc) Revoke(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}
func (m *mockTokenSvc) ListActive(ctx context.Context) ([]linktoken.ActiveToken, error) {
	args := m.Called(ctx)
	t, _ := args.Get(0).([]linktoken.ActiveToken)
	return t, args.Error(1)
}
func (m *mockTokenSvc) DeepLink(token string) string {
	return m.Called(token).String(0)
}

type mockLinkingSvc struct{ mock.Mock }

func (m *mockLinkingSvc) Activate(ctx context.Context, token, cid, addr string) (linking.ActivationResult, error) {
	args := m.Called(ctx, token, cid, addr)
	return args.Get(0).(linking.ActivationResult), args.Error(1)
}
func (m *mockLinkingSvc) HandleInbound(ctx context.Context, msg domain.InboundMessage) (linking.ActivationResult, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(linking.ActivationResult), args.Error(1)
}
func (m *mockLinkingSvc) Unlink(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}
func (m *mockLinkingSvc) IsLinked(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}
func (m *mockLinkingSvc) List(ctx context.Context) ([]domain.IdentityLink, error) {
	args := m.Called(ctx)
	l, _ := args.Get(0).([]domain.IdentityLink)
	return l, args.Error(1)
}

type mockOTPSvc struct{ mock.Mock }

func (m *mockOTPSvc) Request(ctx context.Context, userID string) (*otp.RequestResult, error) {
	args := m.Called(ctx, userID)
	if r, _ := args.Get(0).(*otp.RequestResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockOTPSvc) Verify(ctx context.Context, userID, code string) (bool, error) {
	args := m.Called(ctx, userID, code)
	return args.Bool(0), args.Error(1)
}

// --- helpers ---

func jsonReq(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(method, target, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withURLParam injects a chi URL parameter into the request context.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(dst))
}
