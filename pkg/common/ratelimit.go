package common

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles calls to an external service. The rate can be
// retuned at runtime without interrupting waiters.
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewRateLimiter allows rps sustained events per second with bursts of up to
// burst events.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until an event is allowed or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	l := rl.limiter
	rl.mu.RUnlock()
	return l.Wait(ctx)
}

// SetRate replaces the sustained rate and burst, taking effect for
// subsequent waits.
func (rl *RateLimiter) SetRate(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(rate.Limit(rps))
	rl.limiter.SetBurst(burst)
}

// Rate reports the current sustained events per second.
func (rl *RateLimiter) Rate() float64 {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return float64(rl.limiter.Limit())
}
