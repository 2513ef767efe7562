package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	logx "bookgpt/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPRateLimiter manages per-IP rate limiting
type IPRateLimiter struct {
	limiters sync.Map // ip -> *clientLimiter
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		rate:  r,
		burst: burst,
		now:   time.Now,
	}
}

// GetLimiter returns the rate limiter for a given IP
func (l *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	now := l.now().UnixNano()
	if v, ok := l.limiters.Load(ip); ok {
		c := v.(*clientLimiter)
		c.lastSeen.Store(now)
		return c.limiter
	}
	c := &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
	c.lastSeen.Store(now)
	v, _ := l.limiters.LoadOrStore(ip, c)
	return v.(*clientLimiter).limiter
}

// Sweep forgets clients not seen within idle and returns how many were removed.
func (l *IPRateLimiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle).UnixNano()
	removed := 0
	l.limiters.Range(func(key, v any) bool {
		if v.(*clientLimiter).lastSeen.Load() < cutoff {
			l.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// StartCleanup sweeps idle clients every interval until ctx is done.
func (l *IPRateLimiter) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Sweep(idle); n > 0 {
					logx.Debug().Int("removed", n).Msg("idle rate limit clients removed")
				}
			}
		}
	}()
}

// DailyQuota caps the number of model-backed requests per day across all clients.
type DailyQuota struct {
	count   int64
	limit   int64
	resetAt time.Time
	now     func() time.Time
	mu      sync.Mutex
}

// NewDailyQuota creates a new daily quota manager
func NewDailyQuota(limit int64) *DailyQuota {
	q := &DailyQuota{limit: limit, now: time.Now}
	q.resetAt = q.nextMidnight()
	return q
}

// Allow checks if a request is allowed and increments the counter
func (q *DailyQuota) Allow() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.now().After(q.resetAt) {
		logx.Info().Int64("previous_count", q.count).Msg("daily quota reset")
		q.count = 0
		q.resetAt = q.nextMidnight()
	}

	if q.count >= q.limit {
		return false
	}
	q.count++
	return true
}

// Remaining returns the remaining quota
func (q *DailyQuota) Remaining() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit - q.count
}

// Count returns the current count
func (q *DailyQuota) Count() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// RetryAfter is the time left until the quota resets.
func (q *DailyQuota) RetryAfter() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.resetAt.Sub(q.now())
}

// nextMidnight returns the next midnight in Pacific Time, when provider quotas reset.
func (q *DailyQuota) nextMidnight() time.Time {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		loc = time.UTC
	}
	now := q.now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, loc)
}

// RateLimitMiddleware applies the global daily quota first and then the
// per-IP limiter. Rejections are 429 with a Retry-After header and the same
// JSON error shape the handlers use.
func RateLimitMiddleware(ipLimiter *IPRateLimiter, quota *DailyQuota) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !quota.Allow() {
			logx.Warn().Int64("count", quota.Count()).Msg("daily quota exhausted")
			reject(c, quota.RetryAfter(), "DAILY_QUOTA_EXCEEDED",
				"BookGPT is resting after a busy day. Please come back tomorrow.")
			return
		}

		limiter := ipLimiter.GetLimiter(c.ClientIP())
		reservation := limiter.Reserve()
		if !reservation.OK() {
			reject(c, time.Second, "RATE_LIMITED", "Too many requests. Please wait a moment and try again.")
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			logx.Debug().Str("ip", c.ClientIP()).Dur("retry_after", delay).Msg("rate limited")
			reject(c, delay, "RATE_LIMITED", "Too many requests. Please wait a moment and try again.")
			return
		}

		c.Next()
	}
}

func reject(c *gin.Context, retryAfter time.Duration, code, message string) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": message,
		"code":  code,
	})
}
