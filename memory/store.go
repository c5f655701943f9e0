// Package memory provides durable persistence for plans, per-task outputs,
// and per-agent memory timelines. Two implementations are provided: an
// in-memory store for tests and development, and a Redis-backed store for
// durable, crash-consistent state.
package memory

import (
	"context"

	"github.com/skanga/conductor/core"
)

// Store is the persistence contract used by the orchestrator. All methods are
// safe for concurrent use within a single process; cross-process coordination
// is out of scope.
type Store interface {
	// SavePlan stores a plan under workflowID. A plan is immutable once
	// saved: a second save for the same workflow fails with
	// core.ErrPlanExists.
	SavePlan(ctx context.Context, workflowID string, plan []core.TaskDefinition) error

	// LoadPlan returns the stored plan for workflowID. Absence is not an
	// error: ok is false and err is nil. A broken backend wraps
	// core.ErrStorageUnavailable.
	LoadPlan(ctx context.Context, workflowID string) (plan []core.TaskDefinition, ok bool, err error)

	// SaveTaskOutput stores a task's output. Overwrite is last-writer-wins;
	// the executor guarantees at most one writer per key via its cache check.
	SaveTaskOutput(ctx context.Context, workflowID, taskName, output string) error

	// LoadTaskOutputs returns all stored outputs for the workflow, keyed by
	// task name. A workflow with no outputs yields an empty map.
	LoadTaskOutputs(ctx context.Context, workflowID string) (map[string]string, error)

	// AppendAgentMemory appends an entry to the agent's memory timeline and
	// trims from the head so the total entry count stays within the store's
	// memory limit.
	AppendAgentMemory(ctx context.Context, agentName, entry string) error

	// LoadAgentMemory returns up to limit entries of the agent's memory in
	// oldest-first (insertion) order. limit <= 0 returns all retained
	// entries. Callers must not rely on newest-first ordering.
	LoadAgentMemory(ctx context.Context, agentName string, limit int) ([]string, error)
}
