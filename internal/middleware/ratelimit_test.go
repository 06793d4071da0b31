package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgpoetry/poetry-api/internal/config"
)

func testPolicy(limit int) config.RateLimitPolicy {
	return config.RateLimitPolicy{Limit: limit, Window: time.Minute, TTL: 3 * time.Minute}
}

func TestAllowExhaustsBurst(t *testing.T) {
	l := NewRateLimiter(testPolicy(10))
	defer l.Close()

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d should pass", i+1)
	}
	assert.False(t, l.Allow("10.0.0.1"), "11th request should be throttled")
}

func TestAllowIsPerKey(t *testing.T) {
	l := NewRateLimiter(testPolicy(1))
	defer l.Close()

	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "a different IP has its own bucket")
}

func TestMiddlewareAnswers429(t *testing.T) {
	l := NewRateLimiter(testPolicy(1))
	defer l.Close()

	e := echo.New()
	h := l.Middleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		require.NoError(t, h(e.NewContext(req, rec)))
		return rec
	}

	assert.Equal(t, http.StatusOK, do().Code)
	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
