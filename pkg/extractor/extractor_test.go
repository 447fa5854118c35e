package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/trialworks/criteria-engine/pkg/llm"
	"github.com/trialworks/criteria-engine/pkg/retry"
)

func fastConfig() llm.StructuredConfig {
	return llm.StructuredConfig{
		MaxCorrections: 2,
		Backoff: &retry.Config{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   1.0,
		},
	}
}

const validExtraction = `{
	"inclusion": [
		{"text": "Age >= 18 years", "entity_type": "demographic", "attribute": "age", "operator": ">=", "value": "18", "unit": "years"},
		{"text": "Type 2 diabetes mellitus", "entity_type": "condition", "attribute": "type_2_diabetes"}
	],
	"exclusion": [
		{"text": "Pregnant or nursing", "entity_type": "condition", "attribute": "pregnancy",
		 "sub_criteria": [
			{"text": "pregnant", "entity_type": "condition", "attribute": "pregnancy"},
			{"text": "nursing", "entity_type": "condition", "attribute": "nursing"}
		 ]}
	]
}`

func TestExtract_EmptyInputShortCircuits(t *testing.T) {
	mock := llm.NewMockGenerator()
	ext := New(mock, nil, fastConfig(), zap.NewNop())

	for _, input := range []string{"", "   ", "\n\t\n"} {
		output, err := ext.Extract(context.Background(), input)
		if err != nil {
			t.Fatalf("Extract(%q): %v", input, err)
		}
		if len(output.Inclusion) != 0 || len(output.Exclusion) != 0 {
			t.Errorf("Extract(%q) returned criteria for empty input", input)
		}
	}
	if mock.GenerateCalls != 0 {
		t.Errorf("empty input made %d network calls, want 0", mock.GenerateCalls)
	}
}

func TestExtract_AssignsIDs(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		return validExtraction, nil
	}
	ext := New(mock, nil, fastConfig(), zap.NewNop())

	output, err := ext.Extract(context.Background(), "Inclusion: adults with T2DM. Exclusion: pregnancy.")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := output.Inclusion[0].ID; got != "inc_001" {
		t.Errorf("inclusion[0].ID = %q, want inc_001", got)
	}
	if got := output.Inclusion[1].ID; got != "inc_002" {
		t.Errorf("inclusion[1].ID = %q, want inc_002", got)
	}
	if got := output.Exclusion[0].ID; got != "exc_001" {
		t.Errorf("exclusion[0].ID = %q, want exc_001", got)
	}
	subs := output.Exclusion[0].SubCriteria
	if subs[0].ID != "exc_001a" || subs[1].ID != "exc_001b" {
		t.Errorf("sub IDs = %q, %q, want exc_001a, exc_001b", subs[0].ID, subs[1].ID)
	}
}

func TestExtract_CorrectiveRetryRecovers(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		if mock.GenerateCalls == 1 {
			// entity_type outside the closed set
			return `{"inclusion": [{"text": "adult", "entity_type": "person"}], "exclusion": []}`, nil
		}
		return validExtraction, nil
	}
	ext := New(mock, nil, fastConfig(), zap.NewNop())

	output, err := ext.Extract(context.Background(), "Adults only")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if mock.GenerateCalls != 2 {
		t.Errorf("GenerateCalls = %d, want 2", mock.GenerateCalls)
	}
	if len(output.Inclusion) != 2 {
		t.Errorf("got %d inclusion criteria, want 2", len(output.Inclusion))
	}
}

func TestExtract_ExhaustionWrapsExtractionError(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		return `{"inclusion": [{"text": "", "entity_type": "demographic"}], "exclusion": []}`, nil
	}
	ext := New(mock, nil, fastConfig(), zap.NewNop())

	_, err := ext.Extract(context.Background(), "Adults only")
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %v, want *ExtractionError", err)
	}
	if !llm.IsSchemaValidation(err) {
		t.Error("ExtractionError should wrap the schema validation failure")
	}
	if mock.GenerateCalls != 3 {
		t.Errorf("GenerateCalls = %d, want 3 (1 + 2 corrections)", mock.GenerateCalls)
	}
}

func TestExtract_TransientErrorPropagatesUnchanged(t *testing.T) {
	mock := llm.NewMockGenerator()
	apiErr := llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, errors.New("401"))
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		return "", apiErr
	}
	ext := New(mock, nil, fastConfig(), zap.NewNop())

	_, err := ext.Extract(context.Background(), "Adults only")
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		t.Error("API-level failures must not be wrapped as ExtractionError")
	}
	if !errors.Is(err, apiErr) {
		t.Errorf("err = %v, want the original API error", err)
	}
}

func TestExtract_CircuitBreakerBlocksWhenOpen(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		return "", llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, errors.New("401"))
	}
	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour})
	ext := New(mock, breaker, fastConfig(), zap.NewNop())

	if _, err := ext.Extract(context.Background(), "Adults only"); err == nil {
		t.Fatal("expected first extraction to fail")
	}

	mock.Reset()
	if _, err := ext.Extract(context.Background(), "Adults only"); err == nil {
		t.Fatal("expected open circuit to block extraction")
	}
	if mock.GenerateCalls != 0 {
		t.Errorf("open circuit still made %d calls", mock.GenerateCalls)
	}
}
