package models

// PipelineSummary aggregates counters and rates over the three stage
// outputs. It is derived purely from those outputs and never independently
// mutated.
type PipelineSummary struct {
	TotalCriteria        int     `json:"total_criteria"`
	InclusionCount       int     `json:"inclusion_count"`
	ExclusionCount       int     `json:"exclusion_count"`
	MappedCount          int     `json:"mapped_count"`
	ValidatedCount       int     `json:"validated_count"`
	PassedCount          int     `json:"passed_count"`
	WarningCount         int     `json:"warning_count"`
	NeedsReviewCount     int     `json:"needs_review_count"`
	FailedCount          int     `json:"failed_count"`
	Stage1ExtractionRate float64 `json:"stage1_extraction_rate"`
	Stage2MappingRate    float64 `json:"stage2_mapping_rate"`
	Stage3ValidationRate float64 `json:"stage3_validation_rate"`
	AvgConfidence        float64 `json:"avg_confidence"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
}

// PipelineOutput is the root artifact returned to callers, fully immutable
// once constructed and serializable to JSON.
type PipelineOutput struct {
	RunID       string              `json:"run_id"`
	Extraction  *ExtractionOutput   `json:"extraction"`
	Mappings    []*MappingOutput    `json:"mappings"`
	Validations []*ValidationResult `json:"validations"`
	Summary     *PipelineSummary    `json:"summary"`
}
