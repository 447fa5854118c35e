package mapper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/trialworks/criteria-engine/pkg/llm"
	"github.com/trialworks/criteria-engine/pkg/models"
	"github.com/trialworks/criteria-engine/pkg/retry"
	"github.com/trialworks/criteria-engine/pkg/schema"
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

func ageEntity() *models.CriterionEntity {
	return &models.CriterionEntity{
		ID:         "inc_001",
		Text:       "Age >= 18 years",
		EntityType: models.EntityDemographic,
		Attribute:  "age",
		Operator:   ">=",
		Value:      "18",
		Unit:       "years",
	}
}

const ageResponse = `{
	"mimic_mapping": {
		"table": "mimiciv_hosp.patients",
		"columns": ["subject_id", "anchor_age"],
		"sql_condition": "anchor_age >= 18"
	},
	"confidence": 0.95,
	"reasoning": "anchor_age is the patient age column"
}`

func newTestMapper(mock *llm.MockGenerator, cache Cache) *Mapper {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return New(mock, nil, cache, schema.Default(), fastConfig(), zap.NewNop())
}

func TestMapToMimic_Success(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		return ageResponse, nil
	}
	m := newTestMapper(mock, nil)

	out, err := m.MapToMimic(context.Background(), ageEntity())
	if err != nil {
		t.Fatalf("MapToMimic: %v", err)
	}

	if out.Criterion.ID != "inc_001" {
		t.Errorf("criterion not attached: %+v", out.Criterion)
	}
	if out.MimicMapping.Table != "mimiciv_hosp.patients" {
		t.Errorf("table = %q", out.MimicMapping.Table)
	}
	if out.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", out.Confidence)
	}
	if strings.Contains(out.Reasoning, CacheMarker) {
		t.Error("fresh mapping should not carry the cache marker")
	}
}

func TestMapToMimic_NarrowsSchemaContext(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		return ageResponse, nil
	}
	m := newTestMapper(mock, nil)

	if _, err := m.MapToMimic(context.Background(), ageEntity()); err != nil {
		t.Fatal(err)
	}

	prompt := mock.Prompts[0]
	if !strings.Contains(prompt, "mimiciv_hosp.patients") {
		t.Error("demographic prompt missing patients table")
	}
	if strings.Contains(prompt, "mimiciv_icu.chartevents") {
		t.Error("demographic prompt should not carry ICU tables")
	}
}

func TestMapToMimic_CacheHitSkipsNetwork(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		return ageResponse, nil
	}
	m := newTestMapper(mock, nil)

	first, err := m.MapToMimic(context.Background(), ageEntity())
	if err != nil {
		t.Fatal(err)
	}
	if mock.GenerateCalls != 1 {
		t.Fatalf("GenerateCalls = %d after first mapping", mock.GenerateCalls)
	}

	second, err := m.MapToMimic(context.Background(), ageEntity())
	if err != nil {
		t.Fatal(err)
	}
	if mock.GenerateCalls != 1 {
		t.Errorf("cache hit made a network call (GenerateCalls = %d)", mock.GenerateCalls)
	}
	if !strings.HasSuffix(second.Reasoning, CacheMarker) {
		t.Errorf("cached reasoning %q missing marker", second.Reasoning)
	}
	if second.Confidence != first.Confidence {
		t.Errorf("cached confidence %v differs from original %v", second.Confidence, first.Confidence)
	}
	if second.MimicMapping.Table != first.MimicMapping.Table {
		t.Error("cached mapping differs from original")
	}
}

func TestMapToMimic_UnknownTablePenalty(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		confidence float64
		want       float64
	}{
		{
			"unknown table halves and caps",
			`{"mimic_mapping": {"table": "mimiciv_hosp.nonexistent", "columns": ["x"], "sql_condition": "x > 1"}, "confidence": 0.9, "reasoning": "r"}`,
			0.9, 0.45,
		},
		{
			"unknown column on known table",
			`{"mimic_mapping": {"table": "mimiciv_hosp.patients", "columns": ["subject_id", "no_such_col"], "sql_condition": "x > 1"}, "confidence": 0.8, "reasoning": "r"}`,
			0.8, 0.4,
		},
		{
			"low confidence still halves below cap",
			`{"mimic_mapping": {"table": "mimiciv_hosp.nonexistent", "columns": ["x"], "sql_condition": "x > 1"}, "confidence": 0.4, "reasoning": "r"}`,
			0.4, 0.2,
		},
		{
			"unknown join_table",
			`{"mimic_mapping": {"table": "mimiciv_hosp.labevents", "columns": ["itemid"], "join_table": "mimiciv_hosp.nope", "join_columns": ["itemid"], "sql_condition": "valuenum > 2"}, "confidence": 1.0, "reasoning": "r"}`,
			1.0, 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockGenerator()
			mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
				return tt.response, nil
			}
			m := newTestMapper(mock, nil)

			out, err := m.MapToMimic(context.Background(), ageEntity())
			if err != nil {
				t.Fatalf("MapToMimic: %v", err)
			}
			if out.Confidence != tt.want {
				t.Errorf("confidence = %v, want %v", out.Confidence, tt.want)
			}
		})
	}
}

func TestMapToMimic_FailureWrapsMappingError(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		return "", llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, errors.New("401"))
	}
	m := newTestMapper(mock, nil)

	_, err := m.MapToMimic(context.Background(), ageEntity())
	var mapErr *MappingError
	if !errors.As(err, &mapErr) {
		t.Fatalf("err = %v, want *MappingError", err)
	}
	if mapErr.CriterionID != "inc_001" {
		t.Errorf("CriterionID = %q", mapErr.CriterionID)
	}
}

func TestMapToMimic_SchemaExhaustionWrapsMappingError(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		// unqualified table name violates the mapping schema every time
		return `{"mimic_mapping": {"table": "patients", "columns": ["subject_id"], "sql_condition": "1=1"}, "confidence": 0.9, "reasoning": "r"}`, nil
	}
	m := newTestMapper(mock, nil)

	_, err := m.MapToMimic(context.Background(), ageEntity())
	var mapErr *MappingError
	if !errors.As(err, &mapErr) {
		t.Fatalf("err = %v, want *MappingError", err)
	}
	if !llm.IsSchemaValidation(err) {
		t.Error("MappingError should wrap the schema validation failure")
	}
	if mock.GenerateCalls != 3 {
		t.Errorf("GenerateCalls = %d, want 3 (1 + 2 corrections)", mock.GenerateCalls)
	}
}

func TestMapToMimic_PenalizedMappingStillCached(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.GenerateFunc = func(ctx context.Context, system, user string) (string, error) {
		return `{"mimic_mapping": {"table": "mimiciv_hosp.nonexistent", "columns": ["x"], "sql_condition": "x > 1"}, "confidence": 0.9, "reasoning": "r"}`, nil
	}
	cache := NewMemoryCache()
	m := newTestMapper(mock, cache)

	if _, err := m.MapToMimic(context.Background(), ageEntity()); err != nil {
		t.Fatal(err)
	}

	entry, err := cache.Get(context.Background(), "Age >= 18 years")
	if err != nil {
		t.Fatalf("penalized mapping was not cached: %v", err)
	}
	if entry.Confidence != 0.45 {
		t.Errorf("cached confidence = %v, want the adjusted 0.45", entry.Confidence)
	}
	if entry.Validated {
		t.Error("fresh cache entries must be unvalidated")
	}
}
