package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitPolicy describes one in-memory limiter: Limit requests per Window
// for a single client IP. TTL controls how long an idle IP entry survives
// before the janitor evicts it.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
	TTL    time.Duration
}

// RateLimitConfig bundles the three limiter policies the API applies.
// Counters are process-local by design: the deployment is single-instance and
// limits are advisory abuse bounds, not billing-grade quotas.
type RateLimitConfig struct {
	Global RateLimitPolicy // every /api route
	Login  RateLimitPolicy // POST /api/auth/login
	Like   RateLimitPolicy // POST /api/poems/:id/like (neutral throttle)
}

// LoadRateLimitConfig reads limiter settings from the environment, falling
// back to the defaults the product ships with: 100 requests per 15 minutes
// globally, 10 logins per 15 minutes and 10 likes per 60 seconds per IP.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Global: RateLimitPolicy{
			Limit:  envInt("RATE_LIMIT_GLOBAL_MAX", 100),
			Window: envDur("RATE_LIMIT_GLOBAL_WINDOW", 15*time.Minute),
		},
		Login: RateLimitPolicy{
			Limit:  envInt("RATE_LIMIT_LOGIN_MAX", 10),
			Window: envDur("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
		},
		Like: RateLimitPolicy{
			Limit:  envInt("RATE_LIMIT_LIKE_MAX", 10),
			Window: envDur("RATE_LIMIT_LIKE_WINDOW", time.Minute),
		},
	}
	for _, p := range []*RateLimitPolicy{&cfg.Global, &cfg.Login, &cfg.Like} {
		if p.Limit < 1 {
			p.Limit = 1
		}
		if p.Window <= 0 {
			p.Window = time.Minute
		}
		// Idle entries live for three windows before eviction.
		p.TTL = 3 * p.Window
	}
	return cfg
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
