package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/skanga/conductor/core"
)

// InMemoryStore is a process-local Store implementation. It is the default
// for tests and single-run tooling; state does not survive a restart.
type InMemoryStore struct {
	mu          sync.RWMutex
	plans       map[string][]core.TaskDefinition
	outputs     map[string]map[string]string
	agentMemory map[string][]string
	memoryLimit int
	logger      core.Logger
}

// NewInMemoryStore creates an in-memory store with the given agent-memory
// entry limit. A limit of zero disables retention (every append is trimmed
// away); negative limits are treated as zero.
func NewInMemoryStore(memoryLimit int) *InMemoryStore {
	if memoryLimit < 0 {
		memoryLimit = 0
	}
	return &InMemoryStore{
		plans:       make(map[string][]core.TaskDefinition),
		outputs:     make(map[string]map[string]string),
		agentMemory: make(map[string][]string),
		memoryLimit: memoryLimit,
		logger:      &core.NoOpLogger{},
	}
}

// SetLogger configures the logger for this store
func (s *InMemoryStore) SetLogger(logger core.Logger) {
	if logger == nil {
		s.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		s.logger = cal.WithComponent("framework/memory")
	} else {
		s.logger = logger
	}
}

// SavePlan stores a plan; a second save for the same workflow fails
func (s *InMemoryStore) SavePlan(ctx context.Context, workflowID string, plan []core.TaskDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[workflowID]; exists {
		return fmt.Errorf("save plan for workflow %q: %w", workflowID, core.ErrPlanExists)
	}

	stored := make([]core.TaskDefinition, len(plan))
	copy(stored, plan)
	s.plans[workflowID] = stored

	s.logger.Debug("Plan saved", map[string]interface{}{
		"operation":   "save_plan",
		"workflow_id": workflowID,
		"task_count":  len(plan),
	})
	return nil
}

// LoadPlan returns the stored plan, if any
func (s *InMemoryStore) LoadPlan(ctx context.Context, workflowID string) ([]core.TaskDefinition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, exists := s.plans[workflowID]
	if !exists {
		return nil, false, nil
	}

	out := make([]core.TaskDefinition, len(plan))
	copy(out, plan)
	return out, true, nil
}

// SaveTaskOutput stores a task output, replacing any previous value
func (s *InMemoryStore) SaveTaskOutput(ctx context.Context, workflowID, taskName, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTask, exists := s.outputs[workflowID]
	if !exists {
		byTask = make(map[string]string)
		s.outputs[workflowID] = byTask
	}
	byTask[taskName] = output

	s.logger.Debug("Task output saved", map[string]interface{}{
		"operation":   "save_task_output",
		"workflow_id": workflowID,
		"task_name":   taskName,
		"output_size": len(output),
	})
	return nil
}

// LoadTaskOutputs returns all outputs stored for the workflow
func (s *InMemoryStore) LoadTaskOutputs(ctx context.Context, workflowID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.outputs[workflowID]))
	for name, text := range s.outputs[workflowID] {
		out[name] = text
	}
	return out, nil
}

// AppendAgentMemory appends an entry and trims the head to the memory limit
func (s *InMemoryStore) AppendAgentMemory(ctx context.Context, agentName, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.agentMemory[agentName], entry)
	if len(entries) > s.memoryLimit {
		entries = entries[len(entries)-s.memoryLimit:]
	}
	s.agentMemory[agentName] = entries
	return nil
}

// LoadAgentMemory returns up to limit entries, oldest first
func (s *InMemoryStore) LoadAgentMemory(ctx context.Context, agentName string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.agentMemory[agentName]
	if limit > 0 && len(entries) > limit {
		// The retained window is the newest entries; order stays oldest-first.
		entries = entries[len(entries)-limit:]
	}
	out := make([]string, len(entries))
	copy(out, entries)
	return out, nil
}
