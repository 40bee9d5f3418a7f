package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := newTokenBucket(2, 2, now)

	assert.True(t, b.take(now))
	assert.True(t, b.take(now))
	assert.False(t, b.take(now))

	now = now.Add(500 * time.Millisecond)
	assert.True(t, b.take(now))
	assert.False(t, b.take(now))

	now = now.Add(time.Hour)
	assert.True(t, b.take(now))
	assert.True(t, b.take(now))
	assert.False(t, b.take(now), "refill is capped at the burst")
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	disabled := RateLimit(RateLimitConfig{RPS: 1, Burst: 1})(okHandler())
	for i := 0; i < 3; i++ {
		rec = httptest.NewRecorder()
		disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
