package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/pgpoetry/poetry-api/internal/config"
)

// RateLimiter is a process-local, per-IP token bucket keyed on the client
// address. State is intentionally not shared across server instances: the
// deployment is single-instance and the limits bound abuse rather than
// enforce quotas. Construct one per policy and close it at shutdown.
type RateLimiter struct {
	policy config.RateLimitPolicy
	limit  rate.Limit

	mu       sync.Mutex
	visitors map[string]*visitor
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter for the given policy and starts a janitor
// goroutine that evicts idle IP entries after the policy TTL.
func NewRateLimiter(p config.RateLimitPolicy) *RateLimiter {
	l := &RateLimiter{
		policy:   p,
		limit:    rate.Limit(float64(p.Limit) / p.Window.Seconds()),
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow reports whether the caller identified by key may proceed, consuming
// one token when it may.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.limit, l.policy.Limit)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()
	return v.lim.Allow()
}

// Close stops the janitor goroutine.
func (l *RateLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware enforces the limit per client IP, answering 429 with a
// Retry-After hint when exceeded. Endpoints that must hide throttling from
// the caller (the like endpoint) call Allow directly from their handler
// instead of using this middleware.
func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(1 / float64(l.limit))))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			if !l.Allow(ip) {
				c.Response().Header().Set("Retry-After", retryAfter)
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests"})
			}
			return next(c)
		}
	}
}

func (l *RateLimiter) janitor() {
	ticker := time.NewTicker(l.policy.Window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-l.policy.TTL)
			l.mu.Lock()
			for key, v := range l.visitors {
				if v.lastSeen.Before(cutoff) {
					delete(l.visitors, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
