package portal

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-host rate limiting using token bucket algorithm.
// The portal silently throttles bursty clients; pacing requests keeps batch
// checks from tripping that.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	mu         sync.RWMutex
	rateLimit  rate.Limit
	burstLimit int
}

// NewRateLimiter creates a new rate limiter with the specified rate and burst.
// rate is requests per second, burst is the maximum burst size.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		rateLimit:  rate.Limit(ratePerSecond),
		burstLimit: burst,
	}
}

// DefaultRateLimiter returns a rate limiter with default settings.
// Default: 2 requests/second, burst of 4.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(2, 4)
}

// Allow checks if a request to the host is allowed.
// Returns true if the request should proceed, false if it should be rate limited.
func (r *RateLimiter) Allow(host string) bool {
	return r.getLimiter(host).Allow()
}

// Wait blocks until a request to the host is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context, host string) error {
	return r.getLimiter(host).Wait(ctx)
}

// getLimiter returns the limiter for the given host, creating one if needed.
func (r *RateLimiter) getLimiter(host string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[host]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = r.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(r.rateLimit, r.burstLimit)
	r.limiters[host] = limiter
	return limiter
}
