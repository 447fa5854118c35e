package models

// Validation statuses, ordered from worst to best. Flags force failed or
// needs_review; warnings alone only prevent the passed label.
const (
	StatusFailed      = "failed"
	StatusNeedsReview = "needs_review"
	StatusWarning     = "warning"
	StatusPassed      = "passed"
)

// statusRank orders statuses for monotonicity comparisons:
// failed < needs_review < warning <= passed.
var statusRank = map[string]int{
	StatusFailed:      0,
	StatusNeedsReview: 1,
	StatusWarning:     2,
	StatusPassed:      3,
}

// StatusRank returns the ordering rank of a validation status. Unknown
// statuses rank below failed.
func StatusRank(status string) int {
	if r, ok := statusRank[status]; ok {
		return r
	}
	return -1
}

// ValidationResult is the Stage-3 verdict for one criterion. Created once by
// the validator and never mutated afterward. SQLQuery is set only for
// passed/warning results.
type ValidationResult struct {
	CriterionID      string   `json:"criterion_id"`
	ValidationStatus string   `json:"validation_status"`
	ConfidenceScore  float64  `json:"confidence_score"`
	Flags            []string `json:"flags"`
	Warnings         []string `json:"warnings"`
	SQLQuery         *string  `json:"sql_query,omitempty"`
}

// HasSQL reports whether the result carries a generated query.
func (r *ValidationResult) HasSQL() bool {
	return r.SQLQuery != nil && *r.SQLQuery != ""
}
