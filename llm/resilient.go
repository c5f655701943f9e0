package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skanga/conductor/core"
	"github.com/skanga/conductor/resilience"
)

// VendorClassifier is implemented by adapters that know their own transient
// error shapes better than the common heuristics.
type VendorClassifier interface {
	IsTransient(err error) bool
}

// ResilientProvider wraps an inner Provider with, in order: a token-bucket
// rate limiter, a circuit breaker keyed per provider and model, and a
// retry executor with exponential backoff. Transient failures are retried;
// terminal failures surface immediately. Every error leaving this wrapper
// is a *ProviderError carrying a correlation ID for the outer call.
type ResilientProvider struct {
	inner    Provider
	limiter  *resilience.RateLimiter
	breakers *resilience.BreakerRegistry
	retry    *resilience.RetryConfig
	classify resilience.Classifier
	logger   core.Logger
}

// ResilientOption configures a ResilientProvider
type ResilientOption func(*ResilientProvider)

// WithResilientLogger sets the logger
func WithResilientLogger(logger core.Logger) ResilientOption {
	return func(p *ResilientProvider) {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			p.logger = cal.WithComponent("framework/llm")
		} else if logger != nil {
			p.logger = logger
		}
	}
}

// WithBreakerRegistry shares a breaker registry across provider instances
// that point at the same backends.
func WithBreakerRegistry(registry *resilience.BreakerRegistry) ResilientOption {
	return func(p *ResilientProvider) {
		p.breakers = registry
	}
}

// NewResilientProvider wraps inner with the resilience stack configured by
// cfg. If inner implements VendorClassifier its judgment overrides the
// common transient-error heuristics.
func NewResilientProvider(inner Provider, cfg *core.Config, opts ...ResilientOption) *ResilientProvider {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}

	p := &ResilientProvider{
		inner: inner,
		limiter: resilience.NewRateLimiter(
			cfg.RateLimit.Capacity,
			cfg.RateLimit.RefillPerSecond,
			cfg.RateLimit.MaxWait,
		),
		breakers: resilience.NewBreakerRegistry(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			OpenDuration:     cfg.CircuitBreaker.OpenDuration,
		}),
		retry: &resilience.RetryConfig{
			MaxAttempts:      cfg.Retry.MaxAttempts,
			InitialDelay:     cfg.Retry.InitialDelay,
			MaxDelay:         cfg.Retry.MaxDelay,
			Multiplier:       cfg.Retry.Multiplier,
			JitterFactor:     cfg.Retry.JitterFactor,
			MaxTotalDuration: cfg.Retry.MaxTotalDuration,
		},
		logger: &core.NoOpLogger{},
	}

	p.classify = func(err error) bool {
		if vc, ok := inner.(VendorClassifier); ok {
			return vc.IsTransient(err)
		}
		if pe, ok := AsProviderError(err); ok {
			return pe.Retryable()
		}
		return resilience.TransientErrorClassifier(err)
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the inner provider's vendor name
func (p *ResilientProvider) Name() string { return p.inner.Name() }

// Model returns the inner provider's model name
func (p *ResilientProvider) Model() string { return p.inner.Model() }

// Generate runs one resilient provider call
func (p *ResilientProvider) Generate(ctx context.Context, prompt string) (string, error) {
	correlationID := uuid.NewString()
	start := time.Now()

	// 1. Token-bucket admission
	if err := p.limiter.Acquire(ctx); err != nil {
		code := CodeRateLimitExceeded
		if errors.Is(err, core.ErrContextCanceled) {
			code = CodeTimeout
		}
		return "", p.fail(ctx, code, correlationID, 0, start, err)
	}

	// 2. Circuit breaker, keyed per provider and model
	cb := p.breakers.For(p.inner.Name(), p.inner.Model())
	if !cb.Allow() {
		err := fmt.Errorf("provider %s/%s: %w", p.inner.Name(), p.inner.Model(), core.ErrCircuitBreakerOpen)
		return "", p.fail(ctx, CodeServiceUnavailable, correlationID, 0, start, err)
	}

	// 3. Retry executor around the core call
	var output string
	attempts := 0
	err := resilience.Retry(ctx, p.retry, p.classify, func(attempt int) error {
		attempts = attempt

		// Cooperative cancellation point between admission and the call
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", core.ErrContextCanceled, ctx.Err())
		default:
		}

		text, genErr := p.inner.Generate(ctx, prompt)
		if genErr != nil {
			p.logger.WarnWithContext(ctx, "Provider call failed", map[string]interface{}{
				"operation":      "llm_generate",
				"provider":       p.inner.Name(),
				"model":          p.inner.Model(),
				"correlation_id": correlationID,
				"attempt":        attempt,
				"max_attempts":   p.retry.MaxAttempts,
				"error":          genErr.Error(),
			})
			return genErr
		}
		output = text
		return nil
	})

	if err != nil {
		cb.RecordFailure()
		return "", p.fail(ctx, codeFor(err), correlationID, attempts, start, err)
	}

	cb.RecordSuccess()
	p.logger.DebugWithContext(ctx, "Provider call succeeded", map[string]interface{}{
		"operation":      "llm_generate",
		"provider":       p.inner.Name(),
		"model":          p.inner.Model(),
		"correlation_id": correlationID,
		"attempts":       attempts,
		"duration_ms":    time.Since(start).Milliseconds(),
		"output_size":    len(output),
	})
	return output, nil
}

// fail builds the structured error for a failed outer call
func (p *ResilientProvider) fail(ctx context.Context, code ErrorCode, correlationID string, attempt int, start time.Time, err error) error {
	pe := &ProviderError{
		Code:          code,
		CorrelationID: correlationID,
		Operation:     "llm.Generate",
		Provider:      p.inner.Name(),
		Model:         p.inner.Model(),
		Duration:      time.Since(start),
		Attempt:       attempt,
		MaxAttempts:   p.retry.MaxAttempts,
		Err:           err,
	}
	if inner, ok := AsProviderError(err); ok {
		pe.Code = inner.Code
		pe.RetryAfter = inner.RetryAfter
		pe.Message = inner.Message
	}

	p.logger.ErrorWithContext(ctx, "Provider call exhausted", map[string]interface{}{
		"operation":      "llm_generate",
		"provider":       pe.Provider,
		"model":          pe.Model,
		"correlation_id": pe.CorrelationID,
		"code":           string(pe.Code),
		"recovery_hint":  string(pe.Hint()),
		"attempt":        pe.Attempt,
		"max_attempts":   pe.MaxAttempts,
		"duration_ms":    pe.Duration.Milliseconds(),
	})
	return pe
}

// codeFor maps a generic error to a taxonomy code when the inner adapter
// did not supply one.
func codeFor(err error) ErrorCode {
	if pe, ok := AsProviderError(err); ok {
		return pe.Code
	}
	switch {
	case errors.Is(err, core.ErrContextCanceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, core.ErrTimeout):
		return CodeTimeout
	case errors.Is(err, core.ErrRateLimitExceeded):
		return CodeRateLimitExceeded
	case errors.Is(err, core.ErrMaxRetriesExceeded):
		return CodeServiceUnavailable
	default:
		return CodeNetworkError
	}
}
