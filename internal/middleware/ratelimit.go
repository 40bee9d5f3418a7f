package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig configures the global token bucket.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// RateLimit rejects requests with 429 once the bucket is empty. The bucket
// is shared by every client.
func RateLimit(cfg RateLimitConfig) Middleware {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return passthrough
	}
	bucket := newTokenBucket(cfg.RPS, cfg.Burst, time.Now())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !bucket.take(time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeGraphQLError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE_LIMITED")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type tokenBucket struct {
	mu       sync.Mutex
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{rate: rate, capacity: float64(burst), tokens: float64(burst), last: now}
}

// take refills the bucket for the time since the last call and spends one
// token if there is one.
func (b *tokenBucket) take(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.rate)
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
