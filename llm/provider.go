// Package llm provides the language-model provider abstraction: a minimal
// Generate contract, a structured error taxonomy with correlation metadata,
// and a resilient wrapper composing rate limiting, circuit breaking, and
// retry around any vendor adapter.
package llm

import (
	"context"
)

// Provider is the contract every LM adapter satisfies. Failures are
// *ProviderError values carrying the taxonomy in errors.go.
type Provider interface {
	// Generate sends a prompt and returns the model's text output
	Generate(ctx context.Context, prompt string) (string, error)

	// Name identifies the vendor, e.g. "openai"
	Name() string

	// Model identifies the model in use
	Model() string
}
