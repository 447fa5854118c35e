package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/trialworks/criteria-engine/pkg/models"
	"github.com/trialworks/criteria-engine/pkg/sqlcheck"
)

// buildSQL compiles a validated mapping to a single SELECT statement. WHERE
// terms are conjoined in a fixed order: itemids, ICD codes, the raw
// condition fragment, then the temporal window. Only within_last constraints
// compile; before/after/between were already surfaced as warnings.
func (v *Validator) buildSQL(mapping *models.MappingOutput) (string, error) {
	m := mapping.MimicMapping

	condition, err := sqlcheck.NormalizeFragment(m.SQLCondition)
	if err != nil {
		return "", err
	}
	if condition == "" {
		return "", fmt.Errorf("sql_condition empty after normalization")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(m.Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(m.Table)

	if m.JoinTable != "" {
		b.WriteString(" JOIN ")
		b.WriteString(m.JoinTable)
		if m.JoinCondition != "" {
			b.WriteString(" ON ")
			b.WriteString(m.JoinCondition)
		}
	}

	var terms []string

	if len(m.ItemIDs) > 0 {
		ids := make([]string, len(m.ItemIDs))
		for i, id := range m.ItemIDs {
			ids[i] = strconv.Itoa(id)
		}
		terms = append(terms, fmt.Sprintf("itemid IN (%s)", strings.Join(ids, ", ")))
	}

	if len(m.ICDCodes) > 0 {
		codes := make([]string, len(m.ICDCodes))
		for i, code := range m.ICDCodes {
			codes[i] = "'" + strings.ReplaceAll(code, "'", "''") + "'"
		}
		terms = append(terms, fmt.Sprintf("icd_code IN (%s)", strings.Join(codes, ", ")))
	}

	terms = append(terms, condition)

	if tc := mapping.Criterion.TemporalConstraint; tc != nil && tc.Operator == models.TemporalWithinLast {
		timeColumn := v.catalogue.TimeColumn(m.Table)
		terms = append(terms, fmt.Sprintf("%s >= NOW() - INTERVAL '%s'", timeColumn, tc.Interval()))
	}

	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(terms, " AND "))

	return b.String(), nil
}
