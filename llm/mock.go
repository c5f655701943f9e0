package llm

import (
	"context"
	"sync"
)

// MockProvider is a scriptable Provider for tests. Responses are computed by
// a handler function; call counts and prompts are recorded.
type MockProvider struct {
	name    string
	model   string
	handler func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

// NewMockProvider creates a mock with a response handler. A nil handler
// echoes the prompt back.
func NewMockProvider(name, model string, handler func(prompt string) (string, error)) *MockProvider {
	if handler == nil {
		handler = func(prompt string) (string, error) {
			return prompt, nil
		}
	}
	return &MockProvider{
		name:    name,
		model:   model,
		handler: handler,
	}
}

// Name returns the mock's vendor name
func (m *MockProvider) Name() string { return m.name }

// Model returns the mock's model name
func (m *MockProvider) Model() string { return m.model }

// Generate records the prompt and runs the handler
func (m *MockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	return m.handler(prompt)
}

// Calls returns the number of Generate invocations so far
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of the recorded prompts in call order
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}
