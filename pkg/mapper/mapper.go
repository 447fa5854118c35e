// Package mapper implements Stage 2: mapping extracted criteria onto the
// clinical database catalogue, with a text-keyed cache in front of the
// generation call.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/trialworks/criteria-engine/pkg/apperrors"
	"github.com/trialworks/criteria-engine/pkg/llm"
	"github.com/trialworks/criteria-engine/pkg/models"
	"github.com/trialworks/criteria-engine/pkg/prompts"
	"github.com/trialworks/criteria-engine/pkg/schema"
)

// CacheMarker is appended to the reasoning of cache-served mappings.
const CacheMarker = " [CACHED]"

// MappingError reports that mapping a single criterion failed. The pipeline
// treats it as per-criterion: other criteria continue.
type MappingError struct {
	CriterionID string
	Cause       error
}

// Error implements the error interface.
func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping criterion %s failed: %v", e.CriterionID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *MappingError) Unwrap() error {
	return e.Cause
}

// Mapper maps criterion entities to database mappings.
type Mapper struct {
	gen       llm.Generator
	breaker   *llm.CircuitBreaker
	cache     Cache
	catalogue *schema.Catalogue
	cfg       llm.StructuredConfig
	logger    *zap.Logger
}

// New creates a mapper. A nil breaker disables circuit breaking; the cache
// and catalogue are required.
func New(gen llm.Generator, breaker *llm.CircuitBreaker, cache Cache, catalogue *schema.Catalogue, cfg llm.StructuredConfig, logger *zap.Logger) *Mapper {
	return &Mapper{
		gen:       gen,
		breaker:   breaker,
		cache:     cache,
		catalogue: catalogue,
		cfg:       cfg,
		logger:    logger.Named("mapper"),
	}
}

// MapToMimic runs Stage 2 on one criterion. Cache hits return without any
// network call, their reasoning suffixed with CacheMarker. Every failure is
// wrapped as *MappingError.
func (m *Mapper) MapToMimic(ctx context.Context, entity *models.CriterionEntity) (*models.MappingOutput, error) {
	key := entity.Text

	cached, err := m.cache.Get(ctx, key)
	if err == nil {
		m.logger.Debug("cache hit", zap.String("criterion_id", entity.ID))
		return &models.MappingOutput{
			Criterion:    entity,
			MimicMapping: cached.Mapping,
			Confidence:   cached.Confidence,
			Reasoning:    cached.Reasoning + CacheMarker,
		}, nil
	}
	if !errors.Is(err, apperrors.ErrCacheMiss) {
		// A broken cache degrades to miss behavior.
		m.logger.Warn("cache read failed", zap.String("criterion_id", entity.ID), zap.Error(err))
	}

	if m.breaker != nil {
		if allowed, breakErr := m.breaker.Allow(); !allowed {
			return nil, &MappingError{CriterionID: entity.ID, Cause: breakErr}
		}
	}

	targetSchema, err := llm.SchemaOf[models.MappingResponse]()
	if err != nil {
		return nil, &MappingError{CriterionID: entity.ID, Cause: err}
	}
	schemaContext := m.catalogue.ContextFor(entity.EntityType)
	userPrompt := prompts.BuildMappingPrompt(entity, schemaContext, targetSchema)

	response, err := llm.GenerateStructured[models.MappingResponse](
		ctx, m.gen, m.cfg, prompts.MappingSystem, userPrompt, prompts.BuildCorrectivePrompt, m.logger)
	if err != nil {
		if m.breaker != nil {
			m.breaker.RecordFailure()
		}
		return nil, &MappingError{CriterionID: entity.ID, Cause: err}
	}
	if m.breaker != nil {
		m.breaker.RecordSuccess()
	}

	confidence := response.Confidence
	if problems := m.checkAgainstCatalogue(response.MimicMapping); len(problems) > 0 {
		// Information-preserving penalty, not a rejection.
		confidence = math.Min(confidence*0.5, 0.5)
		m.logger.Warn("mapping references unknown schema elements",
			zap.String("criterion_id", entity.ID),
			zap.Strings("problems", problems),
			zap.Float64("original_confidence", response.Confidence),
			zap.Float64("adjusted_confidence", confidence))
	}
	confidence = models.RoundConfidence(confidence)

	entry := &CachedMapping{
		Mapping:    response.MimicMapping,
		Confidence: confidence,
		Reasoning:  response.Reasoning,
		Validated:  false,
	}
	if err := m.cache.Set(ctx, key, entry); err != nil {
		m.logger.Warn("cache write failed", zap.String("criterion_id", entity.ID), zap.Error(err))
	}

	return &models.MappingOutput{
		Criterion:    entity,
		MimicMapping: response.MimicMapping,
		Confidence:   confidence,
		Reasoning:    response.Reasoning,
	}, nil
}

// MarkValidated flips the cache entry for the criterion text to validated.
// Called by the pipeline once Stage 3 passes the criterion.
func (m *Mapper) MarkValidated(ctx context.Context, criterionText string) error {
	return m.cache.MarkValidated(ctx, criterionText)
}

// checkAgainstCatalogue verifies the mapping's tables and columns against
// the live catalogue, returning a description of every missing element.
func (m *Mapper) checkAgainstCatalogue(mapping *models.MimicMapping) []string {
	var problems []string

	if !m.catalogue.TableExists(mapping.Table) {
		problems = append(problems, fmt.Sprintf("table %s not in catalogue", mapping.Table))
	} else {
		for _, col := range mapping.Columns {
			if !m.catalogue.HasColumn(mapping.Table, col) {
				problems = append(problems, fmt.Sprintf("column %s.%s not in catalogue", mapping.Table, col))
			}
		}
	}

	if mapping.JoinTable != "" {
		if !m.catalogue.TableExists(mapping.JoinTable) {
			problems = append(problems, fmt.Sprintf("join_table %s not in catalogue", mapping.JoinTable))
		} else {
			for _, col := range mapping.JoinColumns {
				if !m.catalogue.HasColumn(mapping.JoinTable, col) {
					problems = append(problems, fmt.Sprintf("column %s.%s not in catalogue", mapping.JoinTable, col))
				}
			}
		}
	}

	return problems
}
