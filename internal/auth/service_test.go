package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trailmeet/backend/internal/middleware"
	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/internal/store"
	"github.com/trailmeet/backend/internal/store/memory"
)

var demo = Identity{Email: "demo@example.com", Name: "Demo User", Picture: "https://example.com/p.jpg"}

func newTestService(t *testing.T, now time.Time) (*Service, *store.Store) {
	t.Helper()
	st := memory.New()
	svc := NewService(st.Users, NewTokenIssuer("test-secret"), demo, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc, st
}

func TestEndOfDay(t *testing.T) {
	got := EndOfDay(time.Date(2026, 10, 18, 1, 30, 0, 0, time.FixedZone("CEST", 2*3600)))
	assert.Equal(t, time.Date(2026, 10, 17, 23, 59, 59, 0, time.UTC), got)
}

func TestCreateSessionNewUser(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	svc, st := newTestService(t, now)
	ctx := context.Background()

	u, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	require.True(t, u.HasSession())
	assert.Equal(t, demo.Email, u.Email)
	assert.Equal(t, demo.Name, u.Name)
	assert.Equal(t, demo.Picture, u.Picture)
	assert.Equal(t, time.Date(2026, 10, 18, 23, 59, 59, 0, time.UTC), *u.SessionExpires)

	stored, err := st.Users.GetByEmail(ctx, demo.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)
	assert.Equal(t, *u.SessionToken, *stored.SessionToken)
}

func TestCreateSessionExistingUserRotatesToken(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	second, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, *first.SessionToken, *second.SessionToken)

	_, err = svc.Resolve(ctx, *first.SessionToken)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
	got, err := svc.Resolve(ctx, *second.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestResolveErrors(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	ctx := context.Background()
	u, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	_, err = svc.Resolve(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	forged, err := NewTokenIssuer("other-secret").Issue(u.ID, now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, forged)
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	unknown, err := svc.tokens.Issue(u.ID, now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, unknown)
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	svc.now = func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }
	_, err = svc.Resolve(ctx, *u.SessionToken)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestLogout(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	u, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, u))
	_, err = svc.Resolve(ctx, *u.SessionToken)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestLogoutOfRemovedUser(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	err := svc.Logout(context.Background(), &models.User{ID: "gone"})
	assert.ErrorIs(t, err, models.ErrInvalidToken)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("k")
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	a, err := issuer.Issue("u1", now, now.Add(-time.Hour))
	require.NoError(t, err)
	b, err := issuer.Issue("u1", now, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	claims, err := issuer.Verify(a)
	require.NoError(t, err, "expired claims are not checked here")
	assert.Equal(t, "u1", claims.UserID)

	_, err = issuer.Verify(a + "x")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestHandlerFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t, time.Now())
	h := NewHandler(svc, zap.NewNop())

	r := gin.New()
	r.POST("/auth/session", h.CreateSession)
	authed := r.Group("", middleware.Session(svc, zap.NewNop()))
	authed.GET("/auth/me", h.Me)
	authed.POST("/auth/logout", h.Logout)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/session", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var u models.User
	require.NoError(t, jsonDecode(w, &u))
	require.NotNil(t, u.SessionToken)

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+*u.SessionToken)
		r.ServeHTTP(w, req)
		return w
	}

	w = do(http.MethodGet, "/auth/me")
	require.Equal(t, http.StatusOK, w.Code)
	var me models.User
	require.NoError(t, jsonDecode(w, &me))
	assert.Equal(t, u.ID, me.ID)

	w = do(http.MethodPost, "/auth/logout")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, w.Body.String())

	w = do(http.MethodGet, "/auth/me")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"detail":"Invalid authentication token"}`, w.Body.String())
}
