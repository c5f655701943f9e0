package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skanga/conductor/agent"
	"github.com/skanga/conductor/core"
	"github.com/skanga/conductor/llm"
	"github.com/skanga/conductor/memory"
)

func executorConfig(workers int) *core.Config {
	cfg := core.DefaultConfig()
	cfg.Execution.Workers = workers
	cfg.Execution.TaskTimeout = 5 * time.Second
	return cfg
}

func echoFactory(provider llm.Provider, store memory.Store) AgentFactory {
	return func(task core.TaskDefinition) *agent.SubAgent {
		return agent.NewImplicit(task.Name, task.Description, "", provider, store)
	}
}

func mustAnalyze(t *testing.T, plan []core.TaskDefinition) [][]core.TaskDefinition {
	t.Helper()
	batches, err := NewAnalyzer(nil).Analyze(plan)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	return batches
}

// Cold run over a linear plan: every task executes, outputs persist,
// results come back in plan order
func TestExecuteColdRun(t *testing.T) {
	plan := []core.TaskDefinition{
		{Name: "A", PromptTemplate: "Outline: {{user_request}}"},
		{Name: "B", PromptTemplate: "Write based on: {{A}}"},
		{Name: "C", PromptTemplate: "Edit: {{B}}"},
	}
	store := memory.NewInMemoryStore(20)
	provider := llm.NewMockProvider("worker", "m", func(prompt string) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "Outline:"):
			return "<STAGE-RESULT:A>", nil
		case strings.HasPrefix(prompt, "Write based on:"):
			return "<STAGE-RESULT:B>", nil
		default:
			return "<STAGE-RESULT:C>", nil
		}
	})

	executor := NewBatchExecutor(store, executorConfig(4))
	results, err := executor.Execute(context.Background(), "wf-1", "Distributed systems",
		plan, mustAnalyze(t, plan), echoFactory(provider, store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"<STAGE-RESULT:A>", "<STAGE-RESULT:B>", "<STAGE-RESULT:C>"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, r := range results {
		if !r.Success || r.Output != want[i] {
			t.Errorf("result %d: expected %q, got %+v", i, want[i], r)
		}
	}

	outputs, _ := store.LoadTaskOutputs(context.Background(), "wf-1")
	if len(outputs) != 3 {
		t.Errorf("expected 3 persisted outputs, got %d", len(outputs))
	}
	if provider.Calls() != 3 {
		t.Errorf("expected 3 worker calls, got %d", provider.Calls())
	}
}

// Dependent templates see the dependency's stored output
func TestExecuteRendersDependencyOutputs(t *testing.T) {
	plan := []core.TaskDefinition{
		{Name: "A", PromptTemplate: "go"},
		{Name: "B", PromptTemplate: "got: {{A}}"},
	}
	store := memory.NewInMemoryStore(20)
	var secondPrompt atomic.Value
	provider := llm.NewMockProvider("worker", "m", func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "got:") {
			secondPrompt.Store(prompt)
		}
		return "out-" + prompt, nil
	})

	executor := NewBatchExecutor(store, executorConfig(4))
	_, err := executor.Execute(context.Background(), "wf-1", "req",
		plan, mustAnalyze(t, plan), echoFactory(provider, store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := secondPrompt.Load(); got != "got: out-go" {
		t.Errorf("expected B to see A's output, got %v", got)
	}
}

// Cached tasks short-circuit without touching the worker
func TestExecuteMemoization(t *testing.T) {
	plan := []core.TaskDefinition{
		{Name: "A", PromptTemplate: "one"},
		{Name: "B", PromptTemplate: "two {{A}}"},
	}
	store := memory.NewInMemoryStore(20)
	if err := store.SaveTaskOutput(context.Background(), "wf-1", "A", "cached-A"); err != nil {
		t.Fatal(err)
	}

	provider := llm.NewMockProvider("worker", "m", func(prompt string) (string, error) {
		return "fresh", nil
	})

	executor := NewBatchExecutor(store, executorConfig(4))
	results, err := executor.Execute(context.Background(), "wf-1", "req",
		plan, mustAnalyze(t, plan), echoFactory(provider, store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if results[0].Output != "cached-A" {
		t.Errorf("expected cached output for A, got %q", results[0].Output)
	}
	if results[1].Output != "fresh" {
		t.Errorf("expected fresh output for B, got %q", results[1].Output)
	}
	if provider.Calls() != 1 {
		t.Errorf("expected exactly 1 worker call, got %d", provider.Calls())
	}
}

// A failing task fails the workflow; completed outputs stay persisted
func TestExecuteFailureKeepsCompletedOutputs(t *testing.T) {
	plan := []core.TaskDefinition{
		{Name: "A", PromptTemplate: "alpha"},
		{Name: "B", PromptTemplate: "beta {{A}}"},
		{Name: "C", PromptTemplate: "gamma {{B}}"},
	}
	store := memory.NewInMemoryStore(20)
	provider := llm.NewMockProvider("worker", "m", func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "beta") {
			return "", &llm.ProviderError{Code: llm.CodeServiceUnavailable, Message: "down"}
		}
		return "ok:" + prompt, nil
	})

	executor := NewBatchExecutor(store, executorConfig(4))
	_, err := executor.Execute(context.Background(), "wf-1", "req",
		plan, mustAnalyze(t, plan), echoFactory(provider, store))

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if execErr.TaskName != "B" {
		t.Errorf("expected failing task B, got %q", execErr.TaskName)
	}

	outputs, _ := store.LoadTaskOutputs(context.Background(), "wf-1")
	if _, ok := outputs["A"]; !ok {
		t.Error("expected A's output persisted despite workflow failure")
	}
	if _, ok := outputs["C"]; ok {
		t.Error("C must not run after B fails")
	}
}

// A failure in one batch task cancels its in-flight siblings
func TestExecuteFailureCancelsBatch(t *testing.T) {
	plan := []core.TaskDefinition{
		{Name: "fast_fail", PromptTemplate: "fail"},
		{Name: "slow", PromptTemplate: "slow"},
	}
	store := memory.NewInMemoryStore(20)
	slowDone := make(chan struct{})
	provider := llm.NewMockProvider("worker", "m", func(prompt string) (string, error) {
		if prompt == "fail" {
			return "", &llm.ProviderError{Code: llm.CodeInvalidRequest, Message: "bad"}
		}
		// Simulate a long call that notices cancellation via the done channel
		select {
		case <-slowDone:
		case <-time.After(2 * time.Second):
		}
		return "slow-result", nil
	})

	executor := NewBatchExecutor(store, executorConfig(4))
	errCh := make(chan error, 1)
	go func() {
		_, err := executor.Execute(context.Background(), "wf-1", "req",
			plan, mustAnalyze(t, plan), echoFactory(provider, store))
		errCh <- err
	}()

	// Let the failure land, then release the slow task
	time.Sleep(50 * time.Millisecond)
	close(slowDone)

	select {
	case err := <-errCh:
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			t.Fatalf("expected ExecutionError, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not return after batch failure")
	}
}

// No more than the configured number of workers run concurrently
func TestExecuteBoundedParallelism(t *testing.T) {
	const workers = 2
	var inFlight, maxInFlight int32

	plan := make([]core.TaskDefinition, 6)
	for i := range plan {
		plan[i] = core.TaskDefinition{
			Name:           fmt.Sprintf("task_%d", i),
			PromptTemplate: "{{user_request}}",
		}
	}
	store := memory.NewInMemoryStore(20)
	provider := llm.NewMockProvider("worker", "m", func(prompt string) (string, error) {
		current := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxInFlight)
			if current <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "done", nil
	})

	executor := NewBatchExecutor(store, executorConfig(workers))
	_, err := executor.Execute(context.Background(), "wf-1", "req",
		plan, mustAnalyze(t, plan), echoFactory(provider, store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := atomic.LoadInt32(&maxInFlight); got > workers {
		t.Errorf("expected at most %d concurrent tasks, observed %d", workers, got)
	}
}

// Results follow plan order even when completion order is inverted
func TestExecuteResultsInPlanOrder(t *testing.T) {
	plan := []core.TaskDefinition{
		{Name: "slowest", PromptTemplate: "sleep60"},
		{Name: "middle", PromptTemplate: "sleep30"},
		{Name: "fastest", PromptTemplate: "sleep1"},
	}
	store := memory.NewInMemoryStore(20)
	provider := llm.NewMockProvider("worker", "m", func(prompt string) (string, error) {
		var ms int
		_, _ = fmt.Sscanf(prompt, "sleep%d", &ms)
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return prompt, nil
	})

	executor := NewBatchExecutor(store, executorConfig(3))
	results, err := executor.Execute(context.Background(), "wf-1", "req",
		plan, mustAnalyze(t, plan), echoFactory(provider, store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"sleep60", "sleep30", "sleep1"}
	for i, r := range results {
		if r.Output != want[i] {
			t.Errorf("result %d: expected %q, got %q", i, want[i], r.Output)
		}
	}
}

// An empty plan completes with zero results and zero calls
func TestExecuteEmptyPlan(t *testing.T) {
	store := memory.NewInMemoryStore(20)
	provider := llm.NewMockProvider("worker", "m", nil)

	executor := NewBatchExecutor(store, executorConfig(4))
	results, err := executor.Execute(context.Background(), "wf-1", "req",
		nil, nil, echoFactory(provider, store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 || provider.Calls() != 0 {
		t.Errorf("expected nothing to happen, got %d results %d calls", len(results), provider.Calls())
	}
}
