// Package resilience provides the failure-isolation primitives used around
// LM provider calls: a bounded exponential-backoff retry executor, a
// three-state circuit breaker, and a token-bucket rate limiter.
package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/skanga/conductor/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64
	MaxTotalDuration time.Duration
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:      4,
		InitialDelay:     200 * time.Millisecond,
		MaxDelay:         10 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.25,
		MaxTotalDuration: 60 * time.Second,
	}
}

// Classifier reports whether an error is transient and worth retrying.
// Vendor adapters supply their own classifier; TransientErrorClassifier is
// the common heuristic fallback.
type Classifier func(error) bool

// transientMarkers are substrings that identify transient failures across
// vendors when no structured error information is available.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection",
	"rate limit",
	"429",
	"500",
	"502",
	"503",
	"504",
	"throttled",
	"overloaded",
	"unavailable",
	"temporarily",
}

// TransientErrorClassifier is the common heuristic classifier. It matches
// the error text against well-known transient markers.
func TransientErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if core.IsRetryable(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Retry executes fn with exponential backoff and jitter. Only errors the
// classifier reports as transient are retried; permanent errors surface
// immediately. The total elapsed time is bounded by MaxTotalDuration.
func Retry(ctx context.Context, config *RetryConfig, classify Classifier, fn func(attempt int) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if classify == nil {
		classify = TransientErrorClassifier
	}

	start := time.Now()
	delay := config.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", core.ErrContextCanceled, ctx.Err())
		default:
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !classify(err) {
			return err
		}
		if attempt == config.MaxAttempts {
			break
		}
		if config.MaxTotalDuration > 0 && time.Since(start)+delay > config.MaxTotalDuration {
			break
		}

		sleep := delay
		if config.JitterFactor > 0 {
			// Full jitter within +/- JitterFactor of the base delay
			spread := float64(delay) * config.JitterFactor
			sleep += time.Duration((rand.Float64()*2 - 1) * spread)
			if sleep < 0 {
				sleep = 0
			}
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", core.ErrContextCanceled, ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w: %w", config.MaxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}
