package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/skanga/conductor/core"
)

// Registry is an in-process directory of named sub-agents. It is
// read-mostly: registration happens during setup, lookups during execution.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*SubAgent
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*SubAgent),
	}
}

// Register adds an agent under its name. Registering the same name twice
// is a setup error.
func (r *Registry) Register(a *SubAgent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("agent %q already registered: %w", a.Name(), core.ErrInvalidConfiguration)
	}
	r.agents[a.Name()] = a
	return nil
}

// Get returns the agent registered under name
func (r *Registry) Get(name string) (*SubAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.agents[name]
	if !exists {
		return nil, fmt.Errorf("agent %q: %w", name, core.ErrAgentNotFound)
	}
	return a, nil
}

// Names returns the registered agent names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
