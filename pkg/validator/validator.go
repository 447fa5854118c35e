// Package validator implements Stage 3: deterministic validation of mapped
// criteria and SQL generation. No network or LLM calls; validation is a pure
// function of the mapping and the loaded catalogue.
package validator

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/trialworks/criteria-engine/pkg/models"
	"github.com/trialworks/criteria-engine/pkg/schema"
	"github.com/trialworks/criteria-engine/pkg/sqlcheck"
)

// Flags force a terminal status.
const (
	FlagInvalidSchema       = "INVALID_SCHEMA"
	FlagVeryLowConfidence   = "VERY_LOW_CONFIDENCE"
	FlagMissingSQLCondition = "MISSING_SQL_CONDITION"
	FlagSQLGenerationError  = "SQL_GENERATION_ERROR"
)

// Warnings never block SQL generation; they only prevent the passed label.
const (
	WarnLowConfidence          = "LOW_CONFIDENCE"
	WarnMediumConfidence       = "MEDIUM_CONFIDENCE"
	WarnUnitMismatch           = "UNIT_MISMATCH"
	WarnUnitConversionNeeded   = "UNIT_CONVERSION_NEEDED"
	WarnTemporalComplexity     = "TEMPORAL_COMPLEXITY"
	WarnSuspiciousSQLCondition = "SUSPICIOUS_SQL_CONDITION"
)

// Confidence thresholds. These encode policy, not mechanism, and are
// overridable through the Thresholds struct.
const (
	DefaultFailedBelow = 0.5
	DefaultReviewBelow = 0.7
	DefaultPassedAt    = 0.9
)

// Thresholds is the confidence ladder applied in the confidence gate.
type Thresholds struct {
	// FailedBelow: confidence below this fails outright.
	FailedBelow float64
	// ReviewBelow: confidence in [FailedBelow, ReviewBelow) needs review
	// and never receives generated SQL.
	ReviewBelow float64
	// PassedAt: confidence in [ReviewBelow, PassedAt) carries a
	// MEDIUM_CONFIDENCE warning.
	PassedAt float64
}

// DefaultThresholds returns the standard 0.5 / 0.7 / 0.9 ladder.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FailedBelow: DefaultFailedBelow,
		ReviewBelow: DefaultReviewBelow,
		PassedAt:    DefaultPassedAt,
	}
}

// fahrenheitOnlyItemIDs are chart items whose values are stored in
// Fahrenheit; a Celsius criterion against them is a unit mismatch.
var fahrenheitOnlyItemIDs = map[int]bool{
	223761: true, // Temperature Fahrenheit (chartevents)
}

// Validator validates mappings and compiles eligible ones to SQL.
type Validator struct {
	catalogue  *schema.Catalogue
	thresholds Thresholds
	logger     *zap.Logger
}

// New creates a validator over the given catalogue.
func New(catalogue *schema.Catalogue, thresholds Thresholds, logger *zap.Logger) *Validator {
	return &Validator{
		catalogue:  catalogue,
		thresholds: thresholds,
		logger:     logger.Named("validator"),
	}
}

// Validate runs the validation state machine on one mapping. Each gate
// short-circuits; warnings accumulate across the soft checks. The result
// always carries the criterion ID and confidence, whatever the status.
func (v *Validator) Validate(mapping *models.MappingOutput) *models.ValidationResult {
	result := &models.ValidationResult{
		CriterionID:     mapping.Criterion.ID,
		ConfidenceScore: mapping.Confidence,
	}
	m := mapping.MimicMapping

	// 1. Schema check against the live catalogue.
	if problem := v.schemaProblem(m); problem != "" {
		v.logger.Debug("schema check failed",
			zap.String("criterion_id", result.CriterionID),
			zap.String("problem", problem))
		result.ValidationStatus = models.StatusFailed
		result.Flags = append(result.Flags, FlagInvalidSchema)
		return result
	}

	// 2. Confidence gate.
	switch c := mapping.Confidence; {
	case c < v.thresholds.FailedBelow:
		result.ValidationStatus = models.StatusFailed
		result.Flags = append(result.Flags, FlagVeryLowConfidence)
		return result
	case c < v.thresholds.ReviewBelow:
		// Review-required criteria never receive generated SQL.
		result.ValidationStatus = models.StatusNeedsReview
		result.Warnings = append(result.Warnings, WarnLowConfidence)
		return result
	}

	// 3. Condition presence.
	if strings.TrimSpace(m.SQLCondition) == "" {
		result.ValidationStatus = models.StatusFailed
		result.Flags = append(result.Flags, FlagMissingSQLCondition)
		return result
	}

	// 4. Declared unit vs. expected storage unit (soft).
	result.Warnings = append(result.Warnings, unitWarnings(mapping.Criterion, m)...)

	// 5. Temporal complexity (soft): only within_last compiles.
	if tc := mapping.Criterion.TemporalConstraint; tc != nil && tc.Operator != models.TemporalWithinLast {
		result.Warnings = append(result.Warnings, WarnTemporalComplexity)
	}

	// 6. Confidence band (soft).
	if mapping.Confidence < v.thresholds.PassedAt {
		result.Warnings = append(result.Warnings, WarnMediumConfidence)
	}

	// Injection screening of the model-authored fragment (soft).
	if screen := sqlcheck.Screen(m.SQLCondition); screen != nil {
		v.logger.Warn("sql_condition matched an injection fingerprint",
			zap.String("criterion_id", result.CriterionID),
			zap.String("fingerprint", screen.Fingerprint))
		result.Warnings = append(result.Warnings, WarnSuspiciousSQLCondition)
	}

	// 7. SQL generation.
	query, err := v.buildSQL(mapping)
	if err != nil {
		result.ValidationStatus = models.StatusFailed
		result.Flags = append(result.Flags, fmt.Sprintf("%s: %v", FlagSQLGenerationError, err))
		result.Warnings = nil
		return result
	}
	result.SQLQuery = &query

	// 8. Final status: warnings alone only prevent the passed label.
	if len(result.Warnings) > 0 {
		result.ValidationStatus = models.StatusWarning
	} else {
		result.ValidationStatus = models.StatusPassed
	}
	return result
}

// schemaProblem checks table, join_table, and join_columns against the
// catalogue, returning a description of the first missing element.
func (v *Validator) schemaProblem(m *models.MimicMapping) string {
	if !v.catalogue.TableExists(m.Table) {
		return fmt.Sprintf("table %s not in catalogue", m.Table)
	}
	if m.JoinTable != "" {
		if !v.catalogue.TableExists(m.JoinTable) {
			return fmt.Sprintf("join_table %s not in catalogue", m.JoinTable)
		}
		for _, col := range m.JoinColumns {
			if !v.catalogue.HasColumn(m.JoinTable, col) {
				return fmt.Sprintf("join column %s.%s not in catalogue", m.JoinTable, col)
			}
		}
	}
	return ""
}

// unitWarnings implements the known declared-unit vs. storage-unit
// mismatches. The table is deliberately small; unknown combinations pass.
func unitWarnings(criterion *models.CriterionEntity, m *models.MimicMapping) []string {
	var warnings []string

	attribute := strings.ToLower(criterion.Attribute)
	unit := strings.ToLower(strings.TrimSpace(criterion.Unit))

	if strings.Contains(attribute, "temperature") && isCelsius(unit) {
		for _, itemID := range m.ItemIDs {
			if fahrenheitOnlyItemIDs[itemID] {
				warnings = append(warnings, WarnUnitMismatch)
				break
			}
		}
	}

	if strings.Contains(attribute, "weight") && isPounds(unit) {
		// Storage convention is kilograms.
		warnings = append(warnings, WarnUnitConversionNeeded)
	}

	return warnings
}

func isCelsius(unit string) bool {
	switch unit {
	case "c", "°c", "celsius", "degrees celsius":
		return true
	}
	return false
}

func isPounds(unit string) bool {
	switch unit {
	case "lb", "lbs", "pound", "pounds":
		return true
	}
	return false
}
