package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestConductorErrorFormatting(t *testing.T) {
	err := &ConductorError{
		Op:  "memory.SavePlan",
		ID:  "wf-1",
		Err: ErrPlanExists,
	}
	want := "memory.SavePlan [wf-1]: plan already exists"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestConductorErrorUnwrap(t *testing.T) {
	err := NewConductorError("memory.LoadPlan", "storage", fmt.Errorf("dial: %w", ErrStorageUnavailable))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Error("expected errors.Is to find ErrStorageUnavailable through the wrap chain")
	}
}

func TestErrorPredicates(t *testing.T) {
	if !IsRetryable(fmt.Errorf("x: %w", ErrStorageUnavailable)) {
		t.Error("storage unavailability should be retryable")
	}
	if IsRetryable(ErrPlanExists) {
		t.Error("plan existence is not retryable")
	}
	if !IsConfigurationError(fmt.Errorf("x: %w", ErrInvalidConfiguration)) {
		t.Error("expected configuration error predicate to match")
	}
	if !IsNotFound(fmt.Errorf("x: %w", ErrPlanNotFound)) {
		t.Error("expected not-found predicate to match")
	}
}
