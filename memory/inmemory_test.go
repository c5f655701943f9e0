package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skanga/conductor/core"
)

func samplePlan() []core.TaskDefinition {
	return []core.TaskDefinition{
		{Name: "outline", Description: "Outline the piece", PromptTemplate: "Outline: {{user_request}}"},
		{Name: "draft", Description: "Write the draft", PromptTemplate: "Write based on: {{outline}}"},
	}
}

func TestPlanRoundTrip(t *testing.T) {
	store := NewInMemoryStore(20)
	ctx := context.Background()

	require.NoError(t, store.SavePlan(ctx, "wf-1", samplePlan()))

	loaded, ok, err := store.LoadPlan(ctx, "wf-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, samplePlan(), loaded)
}

func TestPlanImmutable(t *testing.T) {
	store := NewInMemoryStore(20)
	ctx := context.Background()

	require.NoError(t, store.SavePlan(ctx, "wf-1", samplePlan()))
	err := store.SavePlan(ctx, "wf-1", samplePlan())
	assert.ErrorIs(t, err, core.ErrPlanExists)
}

func TestLoadPlanAbsent(t *testing.T) {
	store := NewInMemoryStore(20)

	plan, ok, err := store.LoadPlan(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, plan)
}

func TestTaskOutputRoundTrip(t *testing.T) {
	store := NewInMemoryStore(20)
	ctx := context.Background()

	require.NoError(t, store.SaveTaskOutput(ctx, "wf-1", "outline", "first"))
	require.NoError(t, store.SaveTaskOutput(ctx, "wf-1", "draft", "second"))

	outputs, err := store.LoadTaskOutputs(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"outline": "first", "draft": "second"}, outputs)
}

// Overwrite is last-writer-wins by contract
func TestTaskOutputOverwrite(t *testing.T) {
	store := NewInMemoryStore(20)
	ctx := context.Background()

	require.NoError(t, store.SaveTaskOutput(ctx, "wf-1", "outline", "first"))
	require.NoError(t, store.SaveTaskOutput(ctx, "wf-1", "outline", "replaced"))

	outputs, err := store.LoadTaskOutputs(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "replaced", outputs["outline"])
}

func TestTaskOutputsIsolatedPerWorkflow(t *testing.T) {
	store := NewInMemoryStore(20)
	ctx := context.Background()

	require.NoError(t, store.SaveTaskOutput(ctx, "wf-1", "outline", "one"))
	require.NoError(t, store.SaveTaskOutput(ctx, "wf-2", "outline", "two"))

	outputs, err := store.LoadTaskOutputs(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, outputs, 1)
	assert.Equal(t, "one", outputs["outline"])
}

// Agent memory is bounded: appends beyond the limit trim from the head
func TestAgentMemoryBound(t *testing.T) {
	store := NewInMemoryStore(3)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.AppendAgentMemory(ctx, "writer", fmt.Sprintf("entry-%d", i)))
	}

	entries, err := store.LoadAgentMemory(ctx, "writer", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"entry-7", "entry-8", "entry-9"}, entries)
}

// Reads are oldest-first; a limit returns the newest window in the same order
func TestAgentMemoryOrderAndLimit(t *testing.T) {
	store := NewInMemoryStore(20)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendAgentMemory(ctx, "writer", fmt.Sprintf("entry-%d", i)))
	}

	entries, err := store.LoadAgentMemory(ctx, "writer", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"entry-3", "entry-4"}, entries)
}

func TestAgentMemoryIsolatedPerAgent(t *testing.T) {
	store := NewInMemoryStore(20)
	ctx := context.Background()

	require.NoError(t, store.AppendAgentMemory(ctx, "writer", "w"))
	require.NoError(t, store.AppendAgentMemory(ctx, "editor", "e"))

	entries, err := store.LoadAgentMemory(ctx, "writer", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"w"}, entries)
}

// The store must tolerate concurrent writers within one process
func TestConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore(100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("task-%d", i)
			_ = store.SaveTaskOutput(ctx, "wf-1", name, "out")
			_ = store.AppendAgentMemory(ctx, "shared", name)
			_, _ = store.LoadTaskOutputs(ctx, "wf-1")
		}(i)
	}
	wg.Wait()

	outputs, err := store.LoadTaskOutputs(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, outputs, 20)

	entries, err := store.LoadAgentMemory(ctx, "shared", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
