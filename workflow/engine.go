// Package workflow provides the stage-based engine: a linear driver that
// executes stages in declaration order with per-stage validation and
// retry. It shares the sub-agent and provider layers with the
// planner-orchestrator but does no dependency analysis.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skanga/conductor/agent"
	"github.com/skanga/conductor/core"
	"github.com/skanga/conductor/llm"
	"github.com/skanga/conductor/memory"
	"github.com/skanga/conductor/orchestration"
)

// Stage is one step of a linear workflow. Its template may reference
// {{user_request}}, {{prev_output}}, and {{<earlierStageName>}}.
type Stage struct {
	Name           string
	Description    string
	PromptTemplate string

	// Validator checks the stage output; nil accepts everything
	Validator Validator

	// MaxRetries is the number of re-attempts after an invalid or failed
	// execution; zero means a single attempt
	MaxRetries int
}

// Validator inspects a stage output
type Validator func(output string) ValidationResult

// ValidationResult is a validator verdict
type ValidationResult struct {
	Valid  bool
	Reason string
}

// StageResult records the outcome of one stage
type StageResult struct {
	Stage    string
	Attempts int
	Result   core.ExecutionResult
}

// StageError reports the terminal failure of a stage
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Engine executes stage lists. One engine may run many workflows; each
// Run gets its own accumulating variable map.
type Engine struct {
	provider        llm.Provider
	store           memory.Store
	logger          core.Logger
	continueOnError bool
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithEngineLogger sets the logger
func WithEngineLogger(logger core.Logger) EngineOption {
	return func(e *Engine) {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			e.logger = cal.WithComponent("framework/workflow")
		} else if logger != nil {
			e.logger = logger
		}
	}
}

// WithContinueOnError keeps executing later stages after a terminal stage
// failure. The failed stage contributes an empty output to the variable
// map; its error is recorded in the stage results.
func WithContinueOnError(continueOnError bool) EngineOption {
	return func(e *Engine) {
		e.continueOnError = continueOnError
	}
}

// NewEngine creates a stage engine bound to a worker provider and a
// memory store for agent memory.
func NewEngine(provider llm.Provider, store memory.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		provider: provider,
		store:    store,
		logger:   &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the stages in declaration order. Each stage renders its
// template against the accumulated variables, executes an implicit
// sub-agent, and validates the output. An invalid or failed attempt is
// retried up to the stage's MaxRetries; a terminal failure stops the run
// (default) or, with WithContinueOnError, is recorded and skipped over.
func (e *Engine) Run(ctx context.Context, userRequest string, stages []Stage) ([]StageResult, error) {
	runID := uuid.NewString()
	vars := map[string]string{
		orchestration.UserRequestVariable: userRequest,
		orchestration.PrevOutputVariable:  "",
	}

	e.logger.InfoWithContext(ctx, "Stage workflow starting", map[string]interface{}{
		"operation":   "stage_run",
		"run_id":      runID,
		"stage_count": len(stages),
	})

	results := make([]StageResult, 0, len(stages))
	for _, stage := range stages {
		result, err := e.runStage(ctx, runID, stage, vars)
		results = append(results, result)

		if err != nil {
			if !e.continueOnError {
				e.logger.ErrorWithContext(ctx, "Stage workflow stopped", map[string]interface{}{
					"operation": "stage_run",
					"run_id":    runID,
					"stage":     stage.Name,
					"error":     err.Error(),
				})
				return results, err
			}
			vars[stage.Name] = ""
			vars[orchestration.PrevOutputVariable] = ""
			continue
		}

		vars[stage.Name] = result.Result.Output
		vars[orchestration.PrevOutputVariable] = result.Result.Output
	}

	e.logger.InfoWithContext(ctx, "Stage workflow completed", map[string]interface{}{
		"operation":   "stage_run",
		"run_id":      runID,
		"stage_count": len(stages),
	})
	return results, nil
}

// runStage executes a single stage with its retry budget
func (e *Engine) runStage(ctx context.Context, runID string, stage Stage, vars map[string]string) (StageResult, error) {
	sub := agent.NewImplicit(stage.Name, stage.Description, stage.Description,
		e.provider, e.store, agent.WithLogger(e.logger))

	attempts := stage.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return StageResult{Stage: stage.Name, Attempts: attempt - 1},
				&StageError{Stage: stage.Name, Err: err}
		}

		rendered, err := orchestration.RenderTemplate(stage.Name, stage.PromptTemplate, vars)
		if err != nil {
			// A template miss cannot be fixed by retrying
			return StageResult{Stage: stage.Name, Attempts: attempt},
				&StageError{Stage: stage.Name, Err: err}
		}

		start := time.Now()
		result := sub.Execute(ctx, core.ExecutionInput{Content: rendered})
		if !result.Success {
			lastErr = errors.New(result.Error)
			e.logger.WarnWithContext(ctx, "Stage attempt failed", map[string]interface{}{
				"operation": "stage_attempt",
				"run_id":    runID,
				"stage":     stage.Name,
				"attempt":   attempt,
				"error":     result.Error,
			})
			continue
		}

		if stage.Validator != nil {
			if verdict := stage.Validator(result.Output); !verdict.Valid {
				lastErr = fmt.Errorf("validation failed: %s", verdict.Reason)
				e.logger.WarnWithContext(ctx, "Stage output invalid", map[string]interface{}{
					"operation": "stage_attempt",
					"run_id":    runID,
					"stage":     stage.Name,
					"attempt":   attempt,
					"reason":    verdict.Reason,
				})
				continue
			}
		}

		e.logger.DebugWithContext(ctx, "Stage completed", map[string]interface{}{
			"operation":   "stage_attempt",
			"run_id":      runID,
			"stage":       stage.Name,
			"attempt":     attempt,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return StageResult{Stage: stage.Name, Attempts: attempt, Result: result}, nil
	}

	return StageResult{
			Stage:    stage.Name,
			Attempts: attempts,
			Result:   core.ExecutionResult{Success: false, Error: lastErr.Error()},
		},
		&StageError{Stage: stage.Name, Err: lastErr}
}
