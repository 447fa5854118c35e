package llm

import (
	"context"
)

// MockGenerator is a configurable mock for testing generation-dependent
// code. Set the function field to control behavior in tests.
type MockGenerator struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, returns "{}" and nil error.
	GenerateFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Call tracking for verification.
	GenerateCalls int
	// Prompts records each user prompt, in call order.
	Prompts []string
}

// NewMockGenerator creates a new mock with sensible defaults.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{ModelName: "mock-model"}
}

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.GenerateCalls++
	m.Prompts = append(m.Prompts, userPrompt)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, systemPrompt, userPrompt)
	}
	return "{}", nil
}

// Model implements Generator.
func (m *MockGenerator) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Reset clears call tracking.
func (m *MockGenerator) Reset() {
	m.GenerateCalls = 0
	m.Prompts = nil
}

// Ensure MockGenerator implements Generator at compile time.
var _ Generator = (*MockGenerator)(nil)
