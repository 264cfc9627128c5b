package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces provider calls by a fixed interval. A burst of one means
// the first call goes out immediately and every later call waits its turn.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	if interval <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
