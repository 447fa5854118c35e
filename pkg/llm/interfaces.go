// Package llm provides the generation capability consumed by the extraction
// and mapping stages: provider clients, the schema-validated structured
// generation protocol, and its error taxonomy.
package llm

import (
	"context"
)

// Generator is the opaque generation capability of the pipeline. It takes a
// system prompt and a user prompt and returns the raw model response text.
// Use this interface for dependency injection to enable mocking in tests.
type Generator interface {
	// Generate produces a completion for the given prompts.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Model returns the configured model name.
	Model() string
}

// Ensure the provider clients implement Generator at compile time.
var (
	_ Generator = (*Client)(nil)
	_ Generator = (*AnthropicClient)(nil)
)
