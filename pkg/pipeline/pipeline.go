// Package pipeline orchestrates the three stages: extraction over the whole
// input, then mapping and validation per criterion. Aggregation is lenient:
// one criterion failing a stage drops that criterion, never the run.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trialworks/criteria-engine/pkg/extractor"
	"github.com/trialworks/criteria-engine/pkg/llm"
	"github.com/trialworks/criteria-engine/pkg/mapper"
	"github.com/trialworks/criteria-engine/pkg/models"
	"github.com/trialworks/criteria-engine/pkg/validator"
)

// Config tunes pipeline execution.
type Config struct {
	// MaxConcurrent bounds parallel Stage-2 mapping calls. 1 or less runs
	// criteria sequentially, the default.
	MaxConcurrent int
}

// Pipeline wires the three stages together.
type Pipeline struct {
	extractor *extractor.Extractor
	mapper    *mapper.Mapper
	validator *validator.Validator
	config    Config
	logger    *zap.Logger
}

// New creates a pipeline from its stage collaborators.
func New(ext *extractor.Extractor, m *mapper.Mapper, v *validator.Validator, config Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		extractor: ext,
		mapper:    m,
		validator: v,
		config:    config,
		logger:    logger.Named("pipeline"),
	}
}

// Run executes the full pipeline over raw eligibility text. It returns an
// error only when Stage 1 itself fails; per-criterion mapping failures are
// logged and excluded from the output, visible through the summary rates.
func (p *Pipeline) Run(ctx context.Context, rawCriteria string) (*models.PipelineOutput, error) {
	start := time.Now()
	runID := uuid.New().String()
	logger := p.logger.With(zap.String("run_id", runID))

	extraction, err := p.extractor.Extract(ctx, rawCriteria)
	if err != nil {
		return nil, err
	}

	entities := extraction.All()
	logger.Info("extraction complete", zap.Int("criteria", len(entities)))

	mappings := p.mapAll(ctx, entities, logger)

	validations := make([]*models.ValidationResult, 0, len(mappings))
	for _, mapping := range mappings {
		result := p.validator.Validate(mapping)
		validations = append(validations, result)

		if result.HasSQL() {
			if err := p.mapper.MarkValidated(ctx, mapping.Criterion.Text); err != nil {
				logger.Warn("mark validated failed",
					zap.String("criterion_id", mapping.Criterion.ID), zap.Error(err))
			}
		}
	}

	output := &models.PipelineOutput{
		RunID:       runID,
		Extraction:  extraction,
		Mappings:    mappings,
		Validations: validations,
		Summary:     buildSummary(extraction, mappings, validations, time.Since(start)),
	}

	logger.Info("pipeline complete",
		zap.Int("total_criteria", output.Summary.TotalCriteria),
		zap.Int("mapped", output.Summary.MappedCount),
		zap.Int("passed", output.Summary.PassedCount),
		zap.Float64("avg_confidence", output.Summary.AvgConfidence),
		zap.Duration("elapsed", time.Since(start)))

	return output, nil
}

// mapAll runs Stage 2 over all entities, sequentially or through the worker
// pool, preserving entity order in the returned slice either way. Failed
// criteria are logged and skipped.
func (p *Pipeline) mapAll(ctx context.Context, entities []*models.CriterionEntity, logger *zap.Logger) []*models.MappingOutput {
	if p.config.MaxConcurrent <= 1 || len(entities) < 2 {
		mappings := make([]*models.MappingOutput, 0, len(entities))
		for _, entity := range entities {
			mapping, err := p.mapper.MapToMimic(ctx, entity)
			if err != nil {
				logger.Warn("criterion mapping failed, skipping",
					zap.String("criterion_id", entity.ID), zap.Error(err))
				continue
			}
			mappings = append(mappings, mapping)
		}
		return mappings
	}

	pool := llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: p.config.MaxConcurrent}, logger)
	items := make([]llm.WorkItem[*models.MappingOutput], len(entities))
	for i, entity := range entities {
		entity := entity
		items[i] = llm.WorkItem[*models.MappingOutput]{
			ID: entity.ID,
			Execute: func(ctx context.Context) (*models.MappingOutput, error) {
				return p.mapper.MapToMimic(ctx, entity)
			},
		}
	}

	byID := make(map[string]*models.MappingOutput, len(entities))
	for _, result := range llm.Process(ctx, pool, items) {
		if result.Err != nil {
			logger.Warn("criterion mapping failed, skipping",
				zap.String("criterion_id", result.ID), zap.Error(result.Err))
			continue
		}
		byID[result.ID] = result.Result
	}

	// Results arrive in completion order; reassemble in entity order so the
	// output is deterministic regardless of concurrency.
	mappings := make([]*models.MappingOutput, 0, len(byID))
	for _, entity := range entities {
		if mapping, ok := byID[entity.ID]; ok {
			mappings = append(mappings, mapping)
		}
	}
	return mappings
}

// buildSummary derives all counters and rates from the stage outputs.
func buildSummary(extraction *models.ExtractionOutput, mappings []*models.MappingOutput, validations []*models.ValidationResult, elapsed time.Duration) *models.PipelineSummary {
	summary := &models.PipelineSummary{
		TotalCriteria:        len(extraction.Inclusion) + len(extraction.Exclusion),
		InclusionCount:       len(extraction.Inclusion),
		ExclusionCount:       len(extraction.Exclusion),
		MappedCount:          len(mappings),
		ValidatedCount:       len(validations),
		ExecutionTimeSeconds: elapsed.Seconds(),
	}

	for _, v := range validations {
		switch v.ValidationStatus {
		case models.StatusPassed:
			summary.PassedCount++
		case models.StatusWarning:
			summary.WarningCount++
		case models.StatusNeedsReview:
			summary.NeedsReviewCount++
		case models.StatusFailed:
			summary.FailedCount++
		}
		summary.AvgConfidence += v.ConfidenceScore
	}

	if summary.TotalCriteria > 0 {
		summary.Stage1ExtractionRate = 1.0
		summary.Stage2MappingRate = float64(summary.MappedCount) / float64(summary.TotalCriteria)
	}
	if len(validations) > 0 {
		summary.Stage3ValidationRate = float64(summary.PassedCount+summary.WarningCount) / float64(len(validations))
		summary.AvgConfidence /= float64(len(validations))
	}

	return summary
}
