package resilience

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/skanga/conductor/core"
)

// RateLimiter is a token-bucket admission controller for provider calls.
// Acquire blocks until a token is available; when no token can arrive
// within the bounded wait it fails at once instead of waiting.
type RateLimiter struct {
	limiter *rate.Limiter
	maxWait time.Duration
	logger  core.Logger
}

// NewRateLimiter creates a limiter with the given burst capacity and
// steady-state refill rate. maxWait bounds how long Acquire may block;
// zero or negative falls back to 30 seconds.
func NewRateLimiter(capacity int, refillPerSecond float64, maxWait time.Duration) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	if refillPerSecond <= 0 {
		refillPerSecond = 1
	}
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
		maxWait: maxWait,
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger sets the logger, tagging entries with the resilience component
func (r *RateLimiter) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		r.logger = cal.WithComponent("framework/resilience")
	} else {
		r.logger = logger
	}
}

// Acquire blocks until a token is available. Failure to acquire within the
// bounded wait surfaces core.ErrRateLimitExceeded.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()

	if err := r.limiter.Wait(waitCtx); err != nil {
		// Distinguish caller cancellation from the bounded-wait deadline
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", core.ErrContextCanceled, ctx.Err())
		}
		r.logger.Warn("Rate limiter wait exhausted", map[string]interface{}{
			"operation": "rate_limit_acquire",
			"max_wait":  r.maxWait.String(),
		})
		return fmt.Errorf("no token within %s: %w", r.maxWait, core.ErrRateLimitExceeded)
	}
	return nil
}

// TryAcquire reports whether a token was immediately available
func (r *RateLimiter) TryAcquire() bool {
	return r.limiter.Allow()
}
