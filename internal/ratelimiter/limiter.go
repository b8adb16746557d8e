package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// SendLimiter is a token bucket bounding outbound email dispatch.
// Burst equals the rate so no "saved up" burst above the configured
// per-second maximum is possible.
type SendLimiter struct {
	limiter *rate.Limiter
}

// New creates a SendLimiter allowing ratePerSec sends per second.
func New(ratePerSec int) *SendLimiter {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &SendLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

// Wait blocks until a token is granted. Called immediately before every
// transport send. Returns a non-nil error only if ctx is cancelled while
// waiting.
func (s *SendLimiter) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}
