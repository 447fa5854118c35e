// Package models defines the immutable value types shared by the extraction,
// mapping, and validation stages. Entities are validated strictly at
// construction time; a malformed entity never reaches a later stage.
package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trialworks/criteria-engine/pkg/jsonutil"
)

// Entity types recognized by the extractor.
const (
	EntityDemographic = "demographic"
	EntityCondition   = "condition"
	EntityProcedure   = "procedure"
	EntityMeasurement = "measurement"
	EntityMedication  = "medication"
)

// ValidEntityTypes contains all accepted entity_type values.
var ValidEntityTypes = []string{
	EntityDemographic,
	EntityCondition,
	EntityProcedure,
	EntityMeasurement,
	EntityMedication,
}

// IsValidEntityType checks if the given type is valid.
func IsValidEntityType(t string) bool {
	return contains(ValidEntityTypes, t)
}

// ValidOperators is the closed set of comparison operators an extracted
// criterion may carry. Anything else is rejected at construction.
var ValidOperators = []string{">", "<", ">=", "<=", "==", "!=", "IN", "NOT IN", "LIKE"}

// IsValidOperator checks if the given operator is in the closed set.
func IsValidOperator(op string) bool {
	return contains(ValidOperators, op)
}

// CriterionEntity is one atomic (or composite) eligibility rule extracted
// from trial text. Created once by the extractor and read-only afterwards.
// Composite AND/OR criteria own their children through SubCriteria; the
// structure is a tree, never a graph.
type CriterionEntity struct {
	ID                 string              `json:"id"`
	Text               string              `json:"text"`
	EntityType         string              `json:"entity_type" jsonschema:"enum=demographic,enum=condition,enum=procedure,enum=measurement,enum=medication"`
	Attribute          string              `json:"attribute"`
	Operator           string              `json:"operator,omitempty" jsonschema:"enum=>,enum=<,enum=>=,enum=<=,enum===,enum=!=,enum=IN,enum=NOT IN,enum=LIKE"`
	Value              string              `json:"value,omitempty"`
	Unit               string              `json:"unit,omitempty"`
	Negation           bool                `json:"negation"`
	TemporalConstraint *TemporalConstraint `json:"temporal_constraint,omitempty"`
	SubCriteria        []*CriterionEntity  `json:"sub_criteria,omitempty"`
	AssumptionsMade    []string            `json:"assumptions_made,omitempty"`
}

// criterionEntityJSON tolerates models emitting value/unit as numbers.
type criterionEntityJSON struct {
	ID                 string              `json:"id"`
	Text               string              `json:"text"`
	EntityType         string              `json:"entity_type"`
	Attribute          string              `json:"attribute"`
	Operator           string              `json:"operator"`
	Value              json.RawMessage     `json:"value"`
	Unit               json.RawMessage     `json:"unit"`
	Negation           bool                `json:"negation"`
	TemporalConstraint *TemporalConstraint `json:"temporal_constraint"`
	SubCriteria        []*CriterionEntity  `json:"sub_criteria"`
	AssumptionsMade    []string            `json:"assumptions_made"`
}

// UnmarshalJSON decodes an entity, coercing numeric value/unit fields that
// some models emit unquoted ("age >= 18" tends to come back with value: 18).
func (e *CriterionEntity) UnmarshalJSON(data []byte) error {
	var raw criterionEntityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.ID = raw.ID
	e.Text = raw.Text
	e.EntityType = raw.EntityType
	e.Attribute = raw.Attribute
	e.Operator = strings.TrimSpace(raw.Operator)
	e.Value = jsonutil.FlexibleString(raw.Value)
	e.Unit = jsonutil.FlexibleString(raw.Unit)
	e.Negation = raw.Negation
	e.TemporalConstraint = raw.TemporalConstraint
	e.SubCriteria = raw.SubCriteria
	e.AssumptionsMade = raw.AssumptionsMade
	return nil
}

// Validate enforces entity-level validity, recursing into sub-criteria.
func (e *CriterionEntity) Validate() error {
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("criterion %s: text is required", e.ID)
	}
	if !IsValidEntityType(e.EntityType) {
		return fmt.Errorf("criterion %s: invalid entity_type %q (must be one of %v)", e.ID, e.EntityType, ValidEntityTypes)
	}
	if e.Operator != "" && !IsValidOperator(e.Operator) {
		return fmt.Errorf("criterion %s: invalid operator %q (must be one of %v)", e.ID, e.Operator, ValidOperators)
	}
	if e.TemporalConstraint != nil {
		if err := e.TemporalConstraint.Validate(); err != nil {
			return fmt.Errorf("criterion %s: %w", e.ID, err)
		}
	}
	for i, sub := range e.SubCriteria {
		if sub == nil {
			return fmt.Errorf("criterion %s: sub_criteria[%d] is null", e.ID, i)
		}
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ExtractionOutput is the Stage-1 result. Both lists may be empty when the
// input is empty or carries no recognizable criteria.
type ExtractionOutput struct {
	Inclusion []*CriterionEntity `json:"inclusion"`
	Exclusion []*CriterionEntity `json:"exclusion"`
}

// Validate checks every extracted entity, inclusion then exclusion.
func (o *ExtractionOutput) Validate() error {
	for _, e := range o.All() {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// All returns inclusion then exclusion entities in concatenation order, the
// order the pipeline processes them in.
func (o *ExtractionOutput) All() []*CriterionEntity {
	all := make([]*CriterionEntity, 0, len(o.Inclusion)+len(o.Exclusion))
	all = append(all, o.Inclusion...)
	all = append(all, o.Exclusion...)
	return all
}
