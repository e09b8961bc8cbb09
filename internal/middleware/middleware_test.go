package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trailmeet/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type resolverFunc func(ctx context.Context, token string) (*models.User, error)

func (f resolverFunc) Resolve(ctx context.Context, token string) (*models.User, error) {
	return f(ctx, token)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func sessionRouter(resolver SessionResolver) *gin.Engine {
	r := gin.New()
	r.GET("/me", Session(resolver, zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentUser(c).ID})
	})
	return r
}

func TestSession(t *testing.T) {
	r := sessionRouter(resolverFunc(func(_ context.Context, token string) (*models.User, error) {
		switch token {
		case "good":
			return &models.User{ID: "u1"}, nil
		case "old":
			return nil, models.ErrSessionExpired
		}
		return nil, models.ErrInvalidToken
	}))

	tests := []struct {
		header string
		code   int
		body   string
	}{
		{"", http.StatusUnauthorized, `{"detail":"Authentication required"}`},
		{"Token good", http.StatusUnauthorized, `{"detail":"Authentication required"}`},
		{"Bearer nope", http.StatusUnauthorized, `{"detail":"Invalid authentication token"}`},
		{"Bearer old", http.StatusUnauthorized, `{"detail":"Session expired"}`},
		{"Bearer good", http.StatusOK, `{"id":"u1"}`},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, tt.code, w.Code, tt.header)
		assert.JSONEq(t, tt.body, w.Body.String(), tt.header)
	}
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitKeysOnPeerUnlessProxyTrusted(t *testing.T) {
	send := func(r *gin.Engine, xff string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", xff)
		r.ServeHTTP(w, req)
		return w.Code
	}

	rl := NewRateLimiter(1, 1)
	r := gin.New()
	require.NoError(t, r.SetTrustedProxies(nil))
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 20; i++ {
		code := send(r, fmt.Sprintf("203.0.113.%d", i))
		if i == 0 {
			assert.Equal(t, http.StatusOK, code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, code)
		}
	}
	rl.mu.Lock()
	assert.Len(t, rl.visitors, 1)
	rl.mu.Unlock()

	rl = NewRateLimiter(1, 1)
	r = gin.New()
	require.NoError(t, r.SetTrustedProxies([]string{"10.0.0.1"}))
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, send(r, "203.0.113.1"))
	assert.Equal(t, http.StatusOK, send(r, "203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, send(r, "203.0.113.1"))
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(60, 5)
	rl.now = func() time.Time { return now }
	rl.Limiter("a")
	now = now.Add(11 * time.Minute)
	rl.Limiter("b")
	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "a")
	assert.Contains(t, rl.visitors, "b")
}

func TestUnlimitedRate(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	l := rl.Limiter("x")
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow())
	}
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://localhost:3000, https://trailmeet.app"))
	r.POST("/api/events", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	req.Header.Set("Origin", "https://trailmeet.app")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://trailmeet.app", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/events", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORSAllowAll(t *testing.T) {
	r := gin.New()
	r.Use(CORS("*"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://anything.test")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://anything.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, p := range []string{"/ok", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "/boom", entries[1].ContextMap()["path"])
}
