// Package agent binds a language-model provider, a system prompt, and a
// memory store into an executable sub-agent.
package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/skanga/conductor/core"
	"github.com/skanga/conductor/llm"
	"github.com/skanga/conductor/memory"
)

// SubAgent binds one provider, one system prompt, an agent name, and a
// memory store. Execute is the sole operation.
type SubAgent struct {
	name         string
	description  string
	systemPrompt string
	provider     llm.Provider
	store        memory.Store
	logger       core.Logger
}

// Option configures a SubAgent
type Option func(*SubAgent)

// WithLogger sets the agent's logger, tagged with the agent's component name
func WithLogger(logger core.Logger) Option {
	return func(a *SubAgent) {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			a.logger = cal.WithComponent("agent/" + a.name)
		} else if logger != nil {
			a.logger = logger
		}
	}
}

// New creates a sub-agent with an explicit name
func New(name, description, systemPrompt string, provider llm.Provider, store memory.Store, opts ...Option) *SubAgent {
	a := &SubAgent{
		name:         name,
		description:  description,
		systemPrompt: systemPrompt,
		provider:     provider,
		store:        store,
		logger:       &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewImplicit creates a sub-agent with a generated name "{hint}-{uuid}".
// The unique name scopes the agent's memory to this instance.
func NewImplicit(nameHint, description, systemPrompt string, provider llm.Provider, store memory.Store, opts ...Option) *SubAgent {
	return New(
		fmt.Sprintf("%s-%s", nameHint, uuid.NewString()),
		description,
		systemPrompt,
		provider,
		store,
		opts...,
	)
}

// Name returns the agent's name
func (a *SubAgent) Name() string { return a.name }

// Description returns the agent's description
func (a *SubAgent) Description() string { return a.description }

// Execute builds the concrete prompt from the system prompt and the input,
// calls the provider, and on success appends the exchange to agent memory.
// Provider failures are reported in-band; the provider layer has already
// retried, so no retry happens here.
func (a *SubAgent) Execute(ctx context.Context, input core.ExecutionInput) core.ExecutionResult {
	prompt := input.Content
	if a.systemPrompt != "" {
		prompt = a.systemPrompt + "\n\n" + input.Content
	}

	output, err := a.provider.Generate(ctx, prompt)
	if err != nil {
		a.logger.ErrorWithContext(ctx, "Agent execution failed", map[string]interface{}{
			"operation": "agent_execute",
			"agent":     a.name,
			"provider":  a.provider.Name(),
			"model":     a.provider.Model(),
			"error":     err.Error(),
		})
		return core.ExecutionResult{
			Success: false,
			Error:   err.Error(),
		}
	}

	if a.store != nil {
		entry := fmt.Sprintf("input: %s\noutput: %s", input.Content, output)
		if memErr := a.store.AppendAgentMemory(ctx, a.name, entry); memErr != nil {
			// Memory is best-effort observability state; the execution
			// result stands either way.
			a.logger.WarnWithContext(ctx, "Agent memory append failed", map[string]interface{}{
				"operation": "agent_memory_append",
				"agent":     a.name,
				"error":     memErr.Error(),
			})
		}
	}

	a.logger.DebugWithContext(ctx, "Agent execution completed", map[string]interface{}{
		"operation":   "agent_execute",
		"agent":       a.name,
		"output_size": len(output),
	})
	return core.ExecutionResult{
		Success: true,
		Output:  output,
	}
}
