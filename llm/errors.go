package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies a provider failure
type ErrorCode string

const (
	// CodeAuthFailed - missing/invalid credentials; terminal, not retried
	CodeAuthFailed ErrorCode = "auth_failed"
	// CodeRateLimitExceeded - retryable with backoff; may include a RetryAfter hint
	CodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	// CodeTimeout - retryable
	CodeTimeout ErrorCode = "timeout"
	// CodeNetworkError - retryable
	CodeNetworkError ErrorCode = "network_error"
	// CodeServiceUnavailable - retryable, HTTP 5xx
	CodeServiceUnavailable ErrorCode = "service_unavailable"
	// CodeInvalidRequest - terminal, 4xx other than rate limit
	CodeInvalidRequest ErrorCode = "invalid_request"
	// CodeSizeExceeded - terminal, request or response over limits
	CodeSizeExceeded ErrorCode = "size_exceeded"
)

// RecoveryHint tells the caller what kind of action can resolve the failure
type RecoveryHint string

const (
	HintRetryWithBackoff   RecoveryHint = "retry_with_backoff"
	HintCheckCredentials   RecoveryHint = "check_credentials"
	HintFixConfiguration   RecoveryHint = "fix_configuration"
	HintUserActionRequired RecoveryHint = "user_action_required"
)

// ProviderError is the structured failure surfaced by every provider call.
// CorrelationID is assigned once per outer call and shared by all attempts.
type ProviderError struct {
	Code          ErrorCode
	CorrelationID string
	Operation     string
	Provider      string
	Model         string
	Duration      time.Duration
	Attempt       int
	MaxAttempts   int
	RetryAfter    time.Duration // optional hint from the vendor, zero if absent
	Message       string
	Err           error
}

// Error returns the string representation of the error
func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s [%s/%s] %s (correlation_id=%s attempt=%d/%d duration=%s)",
		e.Code, e.Provider, e.Model, msg, e.CorrelationID, e.Attempt, e.MaxAttempts, e.Duration)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the code is transient
func (e *ProviderError) Retryable() bool {
	switch e.Code {
	case CodeRateLimitExceeded, CodeTimeout, CodeNetworkError, CodeServiceUnavailable:
		return true
	}
	return false
}

// Hint returns the recovery hint classification for the code
func (e *ProviderError) Hint() RecoveryHint {
	switch e.Code {
	case CodeRateLimitExceeded, CodeTimeout, CodeNetworkError, CodeServiceUnavailable:
		return HintRetryWithBackoff
	case CodeAuthFailed:
		return HintCheckCredentials
	case CodeInvalidRequest:
		return HintFixConfiguration
	default:
		return HintUserActionRequired
	}
}

// AsProviderError extracts a *ProviderError from an error chain
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
