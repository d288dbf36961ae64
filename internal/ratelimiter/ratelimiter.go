// Package ratelimiter wraps golang.org/x/time/rate for per-channel
// notification throttling.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket: tokens refill at a sustained rate up to a
// burst capacity, and each event consumes one.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing perSecond events on average with bursts of
// up to burst events.
//
// A perSecond of 0 disables limiting. A burst of 0 defaults to perSecond.
func New(perSecond, burst uint) *RateLimiter {
	if perSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = perSecond
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst))}
}

// Unlimited returns a limiter that always allows.
func Unlimited() *RateLimiter {
	return New(0, 0)
}

// Allow consumes a token if one is available and reports whether it did.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Limited reports whether the limiter enforces a finite rate.
func (r *RateLimiter) Limited() bool {
	return r.limiter.Limit() != rate.Inf
}
