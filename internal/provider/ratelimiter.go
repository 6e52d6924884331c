package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by every request sent to one
// upstream. Requests may cost more than one token, matching exchanges that
// meter by request weight.
type RateLimiter struct {
	mu             sync.Mutex
	tokens         int
	maxTokens      int
	refillInterval time.Duration
	lastRefill     time.Time
}

// NewRateLimiter creates a limiter that starts full and regains one token
// every refillInterval, up to maxTokens.
func NewRateLimiter(maxTokens int, refillInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillInterval: refillInterval,
		lastRefill:     time.Now(),
	}
}

// Wait blocks until a single token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are available or ctx is cancelled. A cost
// above the bucket size is clamped to the bucket size.
func (r *RateLimiter) WaitN(ctx context.Context, n int) error {
	if n > r.maxTokens {
		n = r.maxTokens
	}
	for {
		if r.take(n) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.refillInterval):
		}
	}
}

// Allow takes a token without blocking and reports whether it succeeded.
func (r *RateLimiter) Allow() bool {
	return r.take(1)
}

func (r *RateLimiter) take(n int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	if r.tokens >= n {
		r.tokens -= n
		return true
	}
	return false
}

func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill)
	newTokens := int(elapsed / r.refillInterval)
	if newTokens > 0 {
		r.tokens += newTokens
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = r.lastRefill.Add(time.Duration(newTokens) * r.refillInterval)
	}
}
