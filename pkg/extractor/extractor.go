// Package extractor implements Stage 1: structured criterion extraction
// from free-text eligibility sections.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/trialworks/criteria-engine/pkg/llm"
	"github.com/trialworks/criteria-engine/pkg/models"
	"github.com/trialworks/criteria-engine/pkg/prompts"
)

// ExtractionError reports that extraction failed after exhausting the
// corrective retry protocol. Transient API failures are never wrapped in
// this type; they propagate unchanged.
type ExtractionError struct {
	Cause error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Extractor turns raw eligibility text into validated criterion entities.
type Extractor struct {
	gen     llm.Generator
	breaker *llm.CircuitBreaker
	cfg     llm.StructuredConfig
	logger  *zap.Logger
}

// New creates an extractor. A nil breaker disables circuit breaking.
func New(gen llm.Generator, breaker *llm.CircuitBreaker, cfg llm.StructuredConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		gen:     gen,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger.Named("extractor"),
	}
}

// Extract runs Stage 1 on raw eligibility text. Empty or whitespace-only
// input short-circuits to an empty output with no network call. Entity IDs
// are assigned here (inc_001, exc_001, ...) regardless of what the model
// returned, so later stages can rely on uniqueness.
func (e *Extractor) Extract(ctx context.Context, rawText string) (*models.ExtractionOutput, error) {
	trimmed := strings.TrimSpace(rawText)
	if trimmed == "" {
		e.logger.Info("empty eligibility text, skipping extraction")
		return &models.ExtractionOutput{}, nil
	}

	if e.breaker != nil {
		if allowed, err := e.breaker.Allow(); !allowed {
			return nil, err
		}
	}

	targetSchema, err := llm.SchemaOf[models.ExtractionOutput]()
	if err != nil {
		return nil, fmt.Errorf("render extraction schema: %w", err)
	}
	userPrompt := prompts.BuildExtractionPrompt(trimmed, targetSchema)

	e.logger.Info("extracting criteria",
		zap.Int("text_length", len(trimmed)),
		zap.String("model", e.gen.Model()))

	output, err := llm.GenerateStructured[models.ExtractionOutput](
		ctx, e.gen, e.cfg, prompts.ExtractionSystem, userPrompt, prompts.BuildCorrectivePrompt, e.logger)
	if err != nil {
		if e.breaker != nil {
			e.breaker.RecordFailure()
		}
		if llm.IsSchemaValidation(err) {
			return nil, &ExtractionError{Cause: err}
		}
		return nil, err
	}
	if e.breaker != nil {
		e.breaker.RecordSuccess()
	}

	assignIDs(output.Inclusion, "inc")
	assignIDs(output.Exclusion, "exc")

	e.logger.Info("extraction complete",
		zap.Int("inclusion", len(output.Inclusion)),
		zap.Int("exclusion", len(output.Exclusion)))

	return &output, nil
}

// assignIDs numbers top-level entities prefix_001, prefix_002, ... and
// sub-criteria with a letter suffix on the parent ID (inc_001a, inc_001b).
func assignIDs(entities []*models.CriterionEntity, prefix string) {
	for i, entity := range entities {
		entity.ID = fmt.Sprintf("%s_%03d", prefix, i+1)
		assignSubIDs(entity)
	}
}

func assignSubIDs(parent *models.CriterionEntity) {
	for i, sub := range parent.SubCriteria {
		sub.ID = fmt.Sprintf("%s%c", parent.ID, 'a'+i)
		assignSubIDs(sub)
	}
}
