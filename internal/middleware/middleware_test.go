package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitPerIP(t *testing.T) {
	r := newRouter(RateLimitMiddleware(NewIPRateLimiter(rate.Every(time.Hour), 2), NewDailyQuota(100)))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1234").Code)

	w := get(r, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too many requests. Please wait a moment and try again.","code":"RATE_LIMITED"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.2:1234").Code, "limits are per client")
}

func TestIPRateLimiterReusesAndSweeps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(rate.Every(time.Second), 1)
	l.now = func() time.Time { return now }

	first := l.GetLimiter("10.0.0.1")
	assert.Same(t, first, l.GetLimiter("10.0.0.1"))

	now = now.Add(5 * time.Minute)
	l.GetLimiter("10.0.0.2")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, l.Sweep(10*time.Minute))
	assert.Same(t, l.GetLimiter("10.0.0.2"), l.GetLimiter("10.0.0.2"))
	assert.NotSame(t, first, l.GetLimiter("10.0.0.1"), "swept clients start with a fresh limiter")
}

func TestRateLimitDailyQuota(t *testing.T) {
	quota := NewDailyQuota(1)
	r := newRouter(RateLimitMiddleware(NewIPRateLimiter(rate.Inf, 1), quota))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1").Code)
	w := get(r, "10.0.0.2:1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "DAILY_QUOTA_EXCEEDED")
	assert.Equal(t, int64(0), quota.Remaining())
}

func TestDailyQuotaResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := &DailyQuota{limit: 1, now: func() time.Time { return now }}
	q.resetAt = q.nextMidnight()

	require.True(t, q.Allow())
	require.False(t, q.Allow())
	assert.Positive(t, q.RetryAfter())

	now = now.Add(25 * time.Hour)
	assert.True(t, q.Allow())
	assert.Equal(t, int64(1), q.Count())
}

func TestSecurityHeaders(t *testing.T) {
	r := newRouter(SecurityHeaders())

	w := get(r, "10.0.0.1:1")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "frame-ancestors 'none'", w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")
}
