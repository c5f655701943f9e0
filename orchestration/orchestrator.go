// Package orchestration contains the planner-orchestrator core: plan
// creation, static dependency analysis, and resumable parallel execution
// of task graphs against durable state.
package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/skanga/conductor/agent"
	"github.com/skanga/conductor/core"
	"github.com/skanga/conductor/llm"
	"github.com/skanga/conductor/memory"
)

// Orchestrator is the public entry point. It wires the plan maker, the
// dependency analyzer, and the batch executor into the end-to-end flow:
// load-or-plan, save plan, resume-or-execute, return ordered results.
type Orchestrator struct {
	config    *core.Config
	logger    core.Logger
	telemetry core.Telemetry
	analyzer  *Analyzer
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger core.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTelemetry sets the telemetry provider
func WithTelemetry(telemetry core.Telemetry) OrchestratorOption {
	return func(o *Orchestrator) {
		if telemetry != nil {
			o.telemetry = telemetry
		}
	}
}

// NewOrchestrator creates an orchestrator with the given configuration.
// A nil config uses defaults.
func NewOrchestrator(cfg *core.Config, opts ...OrchestratorOption) *Orchestrator {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	o := &Orchestrator{
		config:    cfg,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.analyzer = NewAnalyzer(o.logger)
	return o
}

// RunWorkflow executes the workflow identified by workflowID. When a plan
// already exists in the store it is reused verbatim and the planner is
// never called; otherwise the planner provider produces a plan which is
// saved before execution begins. Task outputs persisted by earlier runs
// short-circuit re-execution, so re-invoking a completed workflow performs
// zero LM calls.
func (o *Orchestrator) RunWorkflow(
	ctx context.Context,
	workflowID string,
	userRequest string,
	plannerProvider llm.Provider,
	workerProvider llm.Provider,
	store memory.Store,
) ([]core.ExecutionResult, error) {
	if err := validateArgs(workflowID, userRequest, workerProvider, store); err != nil {
		return nil, err
	}
	if plannerProvider == nil {
		return nil, fmt.Errorf("planner provider must not be nil: %w", core.ErrInvalidInput)
	}

	ctx, span := o.telemetry.StartSpan(ctx, "orchestration.run_workflow")
	defer span.End()
	span.SetAttribute("workflow.id", workflowID)

	plan, found, err := store.LoadPlan(ctx, workflowID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !found {
		plan, err = NewPlanMaker(plannerProvider, o.logger).MakePlan(ctx, userRequest)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if err := store.SavePlan(ctx, workflowID, plan); err != nil {
			span.RecordError(err)
			return nil, err
		}
	} else {
		o.logger.InfoWithContext(ctx, "Resuming with stored plan", map[string]interface{}{
			"operation":   "run_workflow",
			"workflow_id": workflowID,
			"task_count":  len(plan),
		})
	}

	return o.execute(ctx, workflowID, userRequest, plan, workerProvider, store)
}

// PlanAndExecute forces planning: it fails with core.ErrPlanExists when the
// workflow already has a stored plan.
func (o *Orchestrator) PlanAndExecute(
	ctx context.Context,
	workflowID string,
	userRequest string,
	plannerProvider llm.Provider,
	workerProvider llm.Provider,
	store memory.Store,
) ([]core.ExecutionResult, error) {
	if err := validateArgs(workflowID, userRequest, workerProvider, store); err != nil {
		return nil, err
	}
	if plannerProvider == nil {
		return nil, fmt.Errorf("planner provider must not be nil: %w", core.ErrInvalidInput)
	}

	if _, found, err := store.LoadPlan(ctx, workflowID); err != nil {
		return nil, err
	} else if found {
		return nil, fmt.Errorf("workflow %q: %w", workflowID, core.ErrPlanExists)
	}

	plan, err := NewPlanMaker(plannerProvider, o.logger).MakePlan(ctx, userRequest)
	if err != nil {
		return nil, err
	}
	if err := store.SavePlan(ctx, workflowID, plan); err != nil {
		return nil, err
	}
	return o.execute(ctx, workflowID, userRequest, plan, workerProvider, store)
}

// ResumeWorkflow re-executes a workflow under an existing workflowID,
// reusing cached task outputs. When plan is nil the stored plan is loaded;
// if neither is available the resume fails with core.ErrPlanNotFound.
func (o *Orchestrator) ResumeWorkflow(
	ctx context.Context,
	workflowID string,
	userRequest string,
	workerProvider llm.Provider,
	store memory.Store,
	plan []core.TaskDefinition,
) ([]core.ExecutionResult, error) {
	if err := validateArgs(workflowID, userRequest, workerProvider, store); err != nil {
		return nil, err
	}

	if plan == nil {
		stored, found, err := store.LoadPlan(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("workflow %q has no stored plan and none was provided: %w",
				workflowID, core.ErrPlanNotFound)
		}
		plan = stored
	}

	return o.execute(ctx, workflowID, userRequest, plan, workerProvider, store)
}

// execute analyzes the plan and drives the batch executor with an implicit
// agent per task. The task description doubles as the agent's system
// prompt context.
func (o *Orchestrator) execute(
	ctx context.Context,
	workflowID string,
	userRequest string,
	plan []core.TaskDefinition,
	workerProvider llm.Provider,
	store memory.Store,
) ([]core.ExecutionResult, error) {
	batches, err := o.analyzer.Analyze(plan)
	if err != nil {
		return nil, err
	}

	report := o.analyzer.AnalyzeParallelismBenefit(batches)
	o.logger.InfoWithContext(ctx, "Plan analyzed", map[string]interface{}{
		"operation":         "run_workflow",
		"workflow_id":       workflowID,
		"total_tasks":       report.TotalTasks,
		"batch_count":       report.BatchCount,
		"max_batch_size":    report.MaxBatchSize,
		"speedup_potential": report.SpeedupPotential,
	})

	factory := func(task core.TaskDefinition) *agent.SubAgent {
		return agent.NewImplicit(task.Name, task.Description, task.Description,
			workerProvider, store, agent.WithLogger(o.logger))
	}

	executor := NewBatchExecutor(store, o.config,
		WithExecutorLogger(o.logger),
		WithExecutorTelemetry(o.telemetry))
	return executor.Execute(ctx, workflowID, userRequest, plan, batches, factory)
}

// validateArgs rejects blank identifiers and nil collaborators up front
func validateArgs(workflowID, userRequest string, worker llm.Provider, store memory.Store) error {
	if strings.TrimSpace(workflowID) == "" {
		return fmt.Errorf("workflow ID must not be blank: %w", core.ErrInvalidInput)
	}
	if strings.TrimSpace(userRequest) == "" {
		return fmt.Errorf("user request must not be blank: %w", core.ErrInvalidInput)
	}
	if worker == nil {
		return fmt.Errorf("worker provider must not be nil: %w", core.ErrInvalidInput)
	}
	if store == nil {
		return fmt.Errorf("memory store must not be nil: %w", core.ErrInvalidInput)
	}
	return nil
}
