package models

import (
	"encoding/json"
	"fmt"

	"github.com/trialworks/criteria-engine/pkg/jsonutil"
)

// Temporal operators accepted on a criterion. Only within_last compiles to
// SQL; before/after/between are surfaced as TEMPORAL_COMPLEXITY warnings by
// the validator and never guessed into WHERE terms.
const (
	TemporalWithinLast = "within_last"
	TemporalBefore     = "before"
	TemporalAfter      = "after"
	TemporalBetween    = "between"
)

// ValidTemporalOperators contains all accepted temporal operator values.
var ValidTemporalOperators = []string{
	TemporalWithinLast,
	TemporalBefore,
	TemporalAfter,
	TemporalBetween,
}

// Temporal units accepted on a constraint.
const (
	UnitHours  = "hours"
	UnitDays   = "days"
	UnitMonths = "months"
	UnitYears  = "years"
)

// ValidTemporalUnits contains all accepted temporal unit values.
var ValidTemporalUnits = []string{UnitHours, UnitDays, UnitMonths, UnitYears}

// DefaultReferencePoint anchors a temporal constraint when the source text
// does not name one.
const DefaultReferencePoint = "admission"

// TemporalConstraint is a time window attached to a criterion, e.g.
// "within the last 6 months".
type TemporalConstraint struct {
	Operator       string `json:"operator" jsonschema:"enum=within_last,enum=before,enum=after,enum=between"`
	Value          int    `json:"value" jsonschema:"minimum=1"`
	Unit           string `json:"unit" jsonschema:"enum=hours,enum=days,enum=months,enum=years"`
	ReferencePoint string `json:"reference_point,omitempty"`
}

// temporalConstraintJSON tolerates models emitting value as a string.
type temporalConstraintJSON struct {
	Operator       string          `json:"operator"`
	Value          json.RawMessage `json:"value"`
	Unit           string          `json:"unit"`
	ReferencePoint string          `json:"reference_point"`
}

// UnmarshalJSON decodes a temporal constraint, coercing a quoted value and
// applying the default reference point.
func (tc *TemporalConstraint) UnmarshalJSON(data []byte) error {
	var raw temporalConstraintJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	value, _ := jsonutil.FlexibleInt(raw.Value)
	tc.Operator = raw.Operator
	tc.Value = value
	tc.Unit = raw.Unit
	tc.ReferencePoint = raw.ReferencePoint
	if tc.ReferencePoint == "" {
		tc.ReferencePoint = DefaultReferencePoint
	}
	return nil
}

// Validate checks the constraint against the closed operator and unit sets.
func (tc *TemporalConstraint) Validate() error {
	if !contains(ValidTemporalOperators, tc.Operator) {
		return fmt.Errorf("invalid temporal operator %q (must be one of %v)", tc.Operator, ValidTemporalOperators)
	}
	if tc.Value <= 0 {
		return fmt.Errorf("temporal value must be positive, got %d", tc.Value)
	}
	if !contains(ValidTemporalUnits, tc.Unit) {
		return fmt.Errorf("invalid temporal unit %q (must be one of %v)", tc.Unit, ValidTemporalUnits)
	}
	return nil
}

// Interval renders the database-portable interval expression for the window,
// e.g. "6 months". The caller wraps it in the dialect's INTERVAL syntax.
func (tc *TemporalConstraint) Interval() string {
	return fmt.Sprintf("%d %s", tc.Value, tc.Unit)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
