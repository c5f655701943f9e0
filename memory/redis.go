package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/skanga/conductor/core"
)

const (
	// Redis key patterns for durable workflow state
	planKeyPrefix        = "conductor:plans:"
	outputsKeyPrefix     = "conductor:outputs:"
	agentMemoryKeyPrefix = "conductor:agent_memory:"
)

// RedisStore is a durable Store backed by Redis. Plans are JSON strings,
// task outputs live in a per-workflow hash, and agent memory is a list
// trimmed to the configured limit.
type RedisStore struct {
	client      *redis.Client
	memoryLimit int
	logger      core.Logger
}

// RedisStoreOption configures a RedisStore
type RedisStoreOption func(*RedisStore)

// WithRedisLogger sets the logger for store operations
func WithRedisLogger(logger core.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			s.logger = cal.WithComponent("framework/memory")
		} else if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore creates a Redis-backed store from a connection URL, e.g.
// "redis://localhost:6379/0".
func NewRedisStore(redisURL string, memoryLimit int, opts ...RedisStoreOption) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if memoryLimit < 0 {
		memoryLimit = 0
	}

	s := &RedisStore{
		client:      redis.NewClient(opt),
		memoryLimit: memoryLimit,
		logger:      &core.NoOpLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Ping verifies connectivity to the backend
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.storageErr("memory.Ping", err)
	}
	return nil
}

// Close releases the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SavePlan stores a plan; a second save for the same workflow fails
func (s *RedisStore) SavePlan(ctx context.Context, workflowID string, plan []core.TaskDefinition) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan for workflow %q: %w", workflowID, err)
	}

	// SETNX gives the immutability guarantee atomically
	ok, err := s.client.SetNX(ctx, planKeyPrefix+workflowID, data, 0).Result()
	if err != nil {
		return s.storageErr("memory.SavePlan", err)
	}
	if !ok {
		return fmt.Errorf("save plan for workflow %q: %w", workflowID, core.ErrPlanExists)
	}

	s.logger.Debug("Plan saved", map[string]interface{}{
		"operation":   "save_plan",
		"workflow_id": workflowID,
		"task_count":  len(plan),
	})
	return nil
}

// LoadPlan returns the stored plan, if any
func (s *RedisStore) LoadPlan(ctx context.Context, workflowID string) ([]core.TaskDefinition, bool, error) {
	data, err := s.client.Get(ctx, planKeyPrefix+workflowID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.storageErr("memory.LoadPlan", err)
	}

	var plan []core.TaskDefinition
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, false, fmt.Errorf("corrupt plan for workflow %q: %w", workflowID, err)
	}
	return plan, true, nil
}

// SaveTaskOutput stores a task output, replacing any previous value
func (s *RedisStore) SaveTaskOutput(ctx context.Context, workflowID, taskName, output string) error {
	if err := s.client.HSet(ctx, outputsKeyPrefix+workflowID, taskName, output).Err(); err != nil {
		return s.storageErr("memory.SaveTaskOutput", err)
	}

	s.logger.Debug("Task output saved", map[string]interface{}{
		"operation":   "save_task_output",
		"workflow_id": workflowID,
		"task_name":   taskName,
		"output_size": len(output),
	})
	return nil
}

// LoadTaskOutputs returns all outputs stored for the workflow
func (s *RedisStore) LoadTaskOutputs(ctx context.Context, workflowID string) (map[string]string, error) {
	outputs, err := s.client.HGetAll(ctx, outputsKeyPrefix+workflowID).Result()
	if err != nil {
		return nil, s.storageErr("memory.LoadTaskOutputs", err)
	}
	return outputs, nil
}

// AppendAgentMemory appends an entry and trims the list to the memory limit
func (s *RedisStore) AppendAgentMemory(ctx context.Context, agentName, entry string) error {
	key := agentMemoryKeyPrefix + agentName

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, entry)
	if s.memoryLimit > 0 {
		pipe.LTrim(ctx, key, int64(-s.memoryLimit), -1)
	} else {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return s.storageErr("memory.AppendAgentMemory", err)
	}
	return nil
}

// LoadAgentMemory returns up to limit entries, oldest first
func (s *RedisStore) LoadAgentMemory(ctx context.Context, agentName string, limit int) ([]string, error) {
	key := agentMemoryKeyPrefix + agentName

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	entries, err := s.client.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, s.storageErr("memory.LoadAgentMemory", err)
	}
	return entries, nil
}

func (s *RedisStore) storageErr(op string, err error) error {
	s.logger.Error("Redis operation failed", map[string]interface{}{
		"operation": op,
		"error":     err.Error(),
	})
	return &core.ConductorError{
		Op:   op,
		Kind: "storage",
		Err:  fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err),
	}
}
