package models

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/trialworks/criteria-engine/pkg/jsonutil"
)

// qualifiedTablePattern matches "schema.table" identifiers. Existence of the
// table in the live catalogue is a separate check performed by the validator;
// this only enforces the lexical shape.
var qualifiedTablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*$`)

// MimicMapping describes how a criterion lands on the clinical database:
// the table and columns to read, an optional join, ICD codes or lab/chart
// itemids narrowing the rows, and the raw SQL WHERE fragment.
type MimicMapping struct {
	Table         string   `json:"table"`
	Columns       []string `json:"columns"`
	JoinTable     string   `json:"join_table,omitempty"`
	JoinColumns   []string `json:"join_columns,omitempty"`
	JoinCondition string   `json:"join_condition,omitempty"`
	SQLCondition  string   `json:"sql_condition"`
	ICDCodes      []string `json:"icd_codes,omitempty"`
	ItemIDs       []int    `json:"itemids,omitempty"`
}

// mimicMappingJSON tolerates models emitting itemids as strings and
// icd_codes as bare scalars.
type mimicMappingJSON struct {
	Table         string          `json:"table"`
	Columns       []string        `json:"columns"`
	JoinTable     string          `json:"join_table"`
	JoinColumns   []string        `json:"join_columns"`
	JoinCondition string          `json:"join_condition"`
	SQLCondition  string          `json:"sql_condition"`
	ICDCodes      json.RawMessage `json:"icd_codes"`
	ItemIDs       json.RawMessage `json:"itemids"`
}

// UnmarshalJSON decodes a mapping with flexible itemid/ICD coercion.
func (m *MimicMapping) UnmarshalJSON(data []byte) error {
	var raw mimicMappingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Table = strings.TrimSpace(raw.Table)
	m.Columns = raw.Columns
	m.JoinTable = strings.TrimSpace(raw.JoinTable)
	m.JoinColumns = raw.JoinColumns
	m.JoinCondition = raw.JoinCondition
	m.SQLCondition = raw.SQLCondition
	m.ICDCodes = jsonutil.FlexibleStringSlice(raw.ICDCodes)
	m.ItemIDs = jsonutil.FlexibleIntSlice(raw.ItemIDs)
	return nil
}

// Validate enforces the lexical shape of the mapping: qualified table names
// and a non-empty column list. Rejects "patients" (no dot) at construction.
func (m *MimicMapping) Validate() error {
	if !qualifiedTablePattern.MatchString(m.Table) {
		return fmt.Errorf("table %q must be a qualified schema.table name", m.Table)
	}
	if len(m.Columns) == 0 {
		return fmt.Errorf("mapping for table %s has no columns", m.Table)
	}
	if m.JoinTable != "" && !qualifiedTablePattern.MatchString(m.JoinTable) {
		return fmt.Errorf("join_table %q must be a qualified schema.table name", m.JoinTable)
	}
	return nil
}

// MappingOutput pairs a criterion with its database mapping. Created once by
// the mapper, or reconstructed identically from cache.
type MappingOutput struct {
	Criterion    *CriterionEntity `json:"criterion"`
	MimicMapping *MimicMapping    `json:"mimic_mapping"`
	Confidence   float64          `json:"confidence"`
	Reasoning    string           `json:"reasoning"`
}

// Validate checks structural validity of the pair.
func (m *MappingOutput) Validate() error {
	if m.Criterion == nil {
		return fmt.Errorf("mapping output has no criterion")
	}
	if m.MimicMapping == nil {
		return fmt.Errorf("criterion %s: mapping output has no mimic_mapping", m.Criterion.ID)
	}
	if err := m.MimicMapping.Validate(); err != nil {
		return fmt.Errorf("criterion %s: %w", m.Criterion.ID, err)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("criterion %s: confidence %.2f out of [0,1]", m.Criterion.ID, m.Confidence)
	}
	return nil
}

// MappingResponse is the model-authored part of a mapping: everything in a
// MappingOutput except the criterion, which the mapper attaches itself.
type MappingResponse struct {
	MimicMapping *MimicMapping `json:"mimic_mapping"`
	Confidence   float64       `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Reasoning    string        `json:"reasoning"`
}

// Validate checks the model-authored mapping before it is accepted.
func (r *MappingResponse) Validate() error {
	if r.MimicMapping == nil {
		return fmt.Errorf("mapping response has no mimic_mapping")
	}
	if err := r.MimicMapping.Validate(); err != nil {
		return err
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of [0,1]", r.Confidence)
	}
	return nil
}

// RoundConfidence rounds a confidence score to two decimals, the precision
// carried through cache and output.
func RoundConfidence(c float64) float64 {
	return math.Round(c*100) / 100
}
