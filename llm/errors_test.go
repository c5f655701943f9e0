package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// TestProviderErrorRetryable verifies the transient/terminal split
func TestProviderErrorRetryable(t *testing.T) {
	retryable := []ErrorCode{CodeRateLimitExceeded, CodeTimeout, CodeNetworkError, CodeServiceUnavailable}
	for _, code := range retryable {
		if !(&ProviderError{Code: code}).Retryable() {
			t.Errorf("expected %s retryable", code)
		}
	}

	terminal := []ErrorCode{CodeAuthFailed, CodeInvalidRequest, CodeSizeExceeded}
	for _, code := range terminal {
		if (&ProviderError{Code: code}).Retryable() {
			t.Errorf("expected %s terminal", code)
		}
	}
}

// TestProviderErrorHints verifies the recovery hint classification
func TestProviderErrorHints(t *testing.T) {
	cases := map[ErrorCode]RecoveryHint{
		CodeRateLimitExceeded:  HintRetryWithBackoff,
		CodeTimeout:            HintRetryWithBackoff,
		CodeNetworkError:       HintRetryWithBackoff,
		CodeServiceUnavailable: HintRetryWithBackoff,
		CodeAuthFailed:         HintCheckCredentials,
		CodeInvalidRequest:     HintFixConfiguration,
		CodeSizeExceeded:       HintUserActionRequired,
	}
	for code, want := range cases {
		if got := (&ProviderError{Code: code}).Hint(); got != want {
			t.Errorf("code %s: expected hint %s, got %s", code, want, got)
		}
	}
}

// TestProviderErrorMessage verifies the formatted message carries the metadata
func TestProviderErrorMessage(t *testing.T) {
	pe := &ProviderError{
		Code:          CodeServiceUnavailable,
		CorrelationID: "abc-123",
		Provider:      "openai",
		Model:         "gpt-4",
		Duration:      1500 * time.Millisecond,
		Attempt:       3,
		MaxAttempts:   4,
		Message:       "upstream 503",
	}
	msg := pe.Error()
	for _, part := range []string{"service_unavailable", "openai", "gpt-4", "abc-123", "3/4", "upstream 503"} {
		if !strings.Contains(msg, part) {
			t.Errorf("expected error message to contain %q, got %q", part, msg)
		}
	}
}

// TestAsProviderError verifies extraction through wrap chains
func TestAsProviderError(t *testing.T) {
	inner := &ProviderError{Code: CodeTimeout}
	wrapped := fmt.Errorf("call failed: %w", inner)

	pe, ok := AsProviderError(wrapped)
	if !ok || pe.Code != CodeTimeout {
		t.Errorf("expected timeout provider error, got %v %v", pe, ok)
	}

	if _, ok := AsProviderError(errors.New("plain")); ok {
		t.Error("plain error must not extract")
	}
}
