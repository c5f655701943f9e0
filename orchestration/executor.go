package orchestration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/skanga/conductor/agent"
	"github.com/skanga/conductor/core"
	"github.com/skanga/conductor/memory"
)

// AgentFactory builds the sub-agent that executes a given task
type AgentFactory func(task core.TaskDefinition) *agent.SubAgent

// BatchExecutor runs the batches produced by the Analyzer against a worker
// pool, memoizing every successful task output in the memory store. The
// pool is shared across batches; batches themselves run strictly in order.
type BatchExecutor struct {
	store       memory.Store
	workers     int
	taskTimeout time.Duration
	logger      core.Logger
	telemetry   core.Telemetry
}

// ExecutorOption configures a BatchExecutor
type ExecutorOption func(*BatchExecutor)

// WithExecutorLogger sets the logger
func WithExecutorLogger(logger core.Logger) ExecutorOption {
	return func(e *BatchExecutor) {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			e.logger = cal.WithComponent("framework/orchestration")
		} else if logger != nil {
			e.logger = logger
		}
	}
}

// WithExecutorTelemetry sets the telemetry provider
func WithExecutorTelemetry(telemetry core.Telemetry) ExecutorOption {
	return func(e *BatchExecutor) {
		if telemetry != nil {
			e.telemetry = telemetry
		}
	}
}

// NewBatchExecutor creates an executor over the given store, sized by the
// execution section of cfg.
func NewBatchExecutor(store memory.Store, cfg *core.Config, opts ...ExecutorOption) *BatchExecutor {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	e := &BatchExecutor{
		store:       store,
		workers:     cfg.Execution.Workers,
		taskTimeout: cfg.Execution.TaskTimeout,
		logger:      &core.NoOpLogger{},
		telemetry:   &core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every batch in order and returns results in plan order.
// Tasks with a persisted output are returned from cache without touching
// the worker LM. On the first task failure the remaining in-flight jobs of
// the batch are cancelled and the workflow fails with *ExecutionError;
// outputs persisted before the failure remain stored for resume.
func (e *BatchExecutor) Execute(
	ctx context.Context,
	workflowID string,
	userRequest string,
	plan []core.TaskDefinition,
	batches [][]core.TaskDefinition,
	factory AgentFactory,
) ([]core.ExecutionResult, error) {
	ctx, span := e.telemetry.StartSpan(ctx, "orchestration.execute")
	defer span.End()
	span.SetAttribute("workflow.id", workflowID)
	span.SetAttribute("workflow.task_count", len(plan))
	span.SetAttribute("workflow.batch_count", len(batches))

	outputs, err := e.store.LoadTaskOutputs(ctx, workflowID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.logger.InfoWithContext(ctx, "Workflow execution starting", map[string]interface{}{
		"operation":    "execute_batches",
		"workflow_id":  workflowID,
		"task_count":   len(plan),
		"batch_count":  len(batches),
		"cached_count": len(outputs),
		"workers":      e.workers,
	})

	var (
		mu         sync.Mutex
		results    = make(map[string]core.ExecutionResult, len(plan))
		sem        = make(chan struct{}, e.workers)
		failedTask string
		firstErr   error
	)

	for batchIdx, batch := range batches {
		batchCtx, cancelBatch := context.WithCancel(ctx)
		var wg sync.WaitGroup

		for _, task := range batch {
			wg.Add(1)
			go func(task core.TaskDefinition) {
				defer wg.Done()
				e.runTask(batchCtx, ctx, workflowID, userRequest, task, factory, sem,
					&mu, outputs, results, &firstErr, &failedTask, cancelBatch)
			}(task)
		}

		wg.Wait()
		cancelBatch()

		if firstErr == nil && ctx.Err() != nil {
			mu.Lock()
			firstErr = ctx.Err()
			failedTask = "<cancelled>"
			mu.Unlock()
		}
		if firstErr != nil {
			execErr := &ExecutionError{
				WorkflowID: workflowID,
				TaskName:   failedTask,
				Err:        firstErr,
			}
			span.RecordError(execErr)
			e.logger.ErrorWithContext(ctx, "Workflow execution failed", map[string]interface{}{
				"operation":   "execute_batches",
				"workflow_id": workflowID,
				"batch_index": batchIdx,
				"task_name":   failedTask,
				"error":       firstErr.Error(),
			})
			return nil, execErr
		}
	}

	ordered := make([]core.ExecutionResult, len(plan))
	for i, task := range plan {
		ordered[i] = results[task.Name]
	}

	e.logger.InfoWithContext(ctx, "Workflow execution completed", map[string]interface{}{
		"operation":   "execute_batches",
		"workflow_id": workflowID,
		"task_count":  len(plan),
	})
	return ordered, nil
}

// runTask executes one job: cache check, render, agent call, persist.
// saveCtx deliberately outlives the batch context so a concurrent failure
// does not abort persistence of an output that was already produced.
func (e *BatchExecutor) runTask(
	batchCtx context.Context,
	saveCtx context.Context,
	workflowID string,
	userRequest string,
	task core.TaskDefinition,
	factory AgentFactory,
	sem chan struct{},
	mu *sync.Mutex,
	outputs map[string]string,
	results map[string]core.ExecutionResult,
	firstErr *error,
	failedTask *string,
	cancelBatch context.CancelFunc,
) {
	// Cached outputs short-circuit before taking a worker slot
	mu.Lock()
	cached, ok := outputs[task.Name]
	mu.Unlock()
	if ok {
		e.logger.DebugWithContext(batchCtx, "Task output cached", map[string]interface{}{
			"operation":   "execute_task",
			"workflow_id": workflowID,
			"task_name":   task.Name,
			"cached":      true,
		})
		mu.Lock()
		results[task.Name] = core.ExecutionResult{Success: true, Output: cached}
		mu.Unlock()
		return
	}

	fail := func(err error) {
		mu.Lock()
		if *firstErr == nil {
			*firstErr = err
			*failedTask = task.Name
		}
		mu.Unlock()
		cancelBatch()
	}

	// Bounded worker pool; cancelled batches stop waiting for a slot
	select {
	case sem <- struct{}{}:
	case <-batchCtx.Done():
		return
	}
	defer func() { <-sem }()

	if batchCtx.Err() != nil {
		return
	}

	mu.Lock()
	vars := make(map[string]string, len(outputs)+1)
	for name, text := range outputs {
		vars[name] = text
	}
	mu.Unlock()
	vars[UserRequestVariable] = userRequest

	rendered, err := RenderTemplate(task.Name, task.PromptTemplate, vars)
	if err != nil {
		fail(err)
		return
	}

	sub := factory(task)
	taskCtx, cancel := context.WithTimeout(batchCtx, e.taskTimeout)
	defer cancel()

	start := time.Now()
	result := sub.Execute(taskCtx, core.ExecutionInput{Content: rendered})
	if !result.Success {
		// A cancelled sibling already reported the batch failure
		if batchCtx.Err() != nil && taskCtx.Err() != nil && errors.Is(taskCtx.Err(), context.Canceled) {
			return
		}
		fail(errors.New(result.Error))
		return
	}

	if err := e.store.SaveTaskOutput(saveCtx, workflowID, task.Name, result.Output); err != nil {
		fail(err)
		return
	}

	mu.Lock()
	outputs[task.Name] = result.Output
	results[task.Name] = result
	mu.Unlock()

	e.logger.DebugWithContext(batchCtx, "Task completed", map[string]interface{}{
		"operation":   "execute_task",
		"workflow_id": workflowID,
		"task_name":   task.Name,
		"agent":       sub.Name(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
