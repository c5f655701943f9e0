package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skanga/conductor/core"
)

func fastRetryConfig(maxAttempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:      maxAttempts,
		InitialDelay:     time.Millisecond,
		MaxDelay:         10 * time.Millisecond,
		Multiplier:       2.0,
		JitterFactor:     0,
		MaxTotalDuration: time.Second,
	}
}

// TestRetrySuccessFirstAttempt verifies no extra attempts on success
func TestRetrySuccessFirstAttempt(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(3), nil, func(attempt int) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

// TestRetryEventualSuccess verifies transient failures are retried
func TestRetryEventualSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(3), nil, func(attempt int) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected eventual success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

// TestRetryPermanentErrorNotRetried verifies terminal errors surface immediately
func TestRetryPermanentErrorNotRetried(t *testing.T) {
	permanent := errors.New("invalid credentials")
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(5), nil, func(attempt int) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("expected the permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for a permanent error, got %d", attempts)
	}
}

// TestRetryMaxAttemptsExceeded verifies exhaustion wraps the sentinel and the cause
func TestRetryMaxAttemptsExceeded(t *testing.T) {
	transient := errors.New("503 service unavailable")
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(3), nil, func(attempt int) error {
		attempts++
		return transient
	})
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if !errors.Is(err, transient) {
		t.Errorf("expected the underlying cause preserved, got %v", err)
	}
}

// TestRetryCustomClassifier verifies the classifier decides retryability
func TestRetryCustomClassifier(t *testing.T) {
	onlyMagic := func(err error) bool {
		return err != nil && err.Error() == "magic"
	}

	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(3), onlyMagic, func(attempt int) error {
		attempts++
		return errors.New("503 service unavailable")
	})
	if attempts != 1 {
		t.Errorf("classifier rejected retry, expected 1 attempt, got %d", attempts)
	}
	if err == nil {
		t.Error("expected error")
	}
}

// TestRetryContextCancellation verifies cancellation aborts the loop
func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- Retry(ctx, &RetryConfig{
			MaxAttempts:  10,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		}, nil, func(attempt int) error {
			attempts++
			return errors.New("timeout")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errCh
	if !errors.Is(err, core.ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", err)
	}
	if attempts > 2 {
		t.Errorf("expected the loop to stop early, got %d attempts", attempts)
	}
}

// TestRetryTotalDurationBudget verifies the time budget cuts retries short
func TestRetryTotalDurationBudget(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:      100,
		InitialDelay:     30 * time.Millisecond,
		MaxDelay:         30 * time.Millisecond,
		Multiplier:       1.0,
		MaxTotalDuration: 50 * time.Millisecond,
	}

	attempts := 0
	err := Retry(context.Background(), config, nil, func(attempt int) error {
		attempts++
		return errors.New("timeout")
	})
	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if attempts > 3 {
		t.Errorf("expected the budget to stop retries, got %d attempts", attempts)
	}
}

// TestTransientErrorClassifier spot-checks the common heuristics
func TestTransientErrorClassifier(t *testing.T) {
	transient := []string{
		"request timeout",
		"connection refused",
		"rate limit exceeded",
		"HTTP 503 from upstream",
		"model overloaded",
		"request throttled",
	}
	for _, msg := range transient {
		if !TransientErrorClassifier(errors.New(msg)) {
			t.Errorf("expected %q to classify as transient", msg)
		}
	}

	if TransientErrorClassifier(errors.New("invalid api key")) {
		t.Error("expected credential failure to classify as permanent")
	}
	if TransientErrorClassifier(nil) {
		t.Error("nil error is not transient")
	}
}
