package validator

import (
	"strings"
	"testing"

	"github.com/trialworks/criteria-engine/pkg/models"
)

func TestBuildSQL_ClauseOrder(t *testing.T) {
	v := newTestValidator()
	m := &models.MappingOutput{
		Criterion: &models.CriterionEntity{
			ID:         "inc_003",
			Text:       "serum lactate > 2 mmol/L within the last 6 months",
			EntityType: models.EntityMeasurement,
			Attribute:  "serum_lactate",
			TemporalConstraint: &models.TemporalConstraint{
				Operator:       models.TemporalWithinLast,
				Value:          6,
				Unit:           models.UnitMonths,
				ReferencePoint: models.DefaultReferencePoint,
			},
		},
		MimicMapping: &models.MimicMapping{
			Table:        "mimiciv_hosp.labevents",
			Columns:      []string{"subject_id", "itemid", "valuenum"},
			SQLCondition: "valuenum > 2",
			ItemIDs:      []int{50813},
			ICDCodes:     []string{"E11.9"},
		},
		Confidence: 0.95,
	}

	sql, err := v.buildSQL(m)
	if err != nil {
		t.Fatalf("buildSQL: %v", err)
	}

	want := "SELECT subject_id, itemid, valuenum FROM mimiciv_hosp.labevents " +
		"WHERE itemid IN (50813) AND icd_code IN ('E11.9') AND valuenum > 2 " +
		"AND charttime >= NOW() - INTERVAL '6 months'"
	if sql != want {
		t.Errorf("sql = %q\nwant  %q", sql, want)
	}
}

func TestBuildSQL_Join(t *testing.T) {
	v := newTestValidator()
	m := &models.MappingOutput{
		Criterion: &models.CriterionEntity{
			ID:         "inc_004",
			Text:       "diagnosed with type 2 diabetes",
			EntityType: models.EntityCondition,
		},
		MimicMapping: &models.MimicMapping{
			Table:         "mimiciv_hosp.diagnoses_icd",
			Columns:       []string{"subject_id", "icd_code"},
			JoinTable:     "mimiciv_hosp.d_icd_diagnoses",
			JoinColumns:   []string{"icd_code"},
			JoinCondition: "diagnoses_icd.icd_code = d_icd_diagnoses.icd_code",
			SQLCondition:  "icd_version = 10",
			ICDCodes:      []string{"E11.9", "E11.65"},
		},
		Confidence: 0.95,
	}

	sql, err := v.buildSQL(m)
	if err != nil {
		t.Fatalf("buildSQL: %v", err)
	}

	if !strings.Contains(sql, "FROM mimiciv_hosp.diagnoses_icd JOIN mimiciv_hosp.d_icd_diagnoses ON diagnoses_icd.icd_code = d_icd_diagnoses.icd_code") {
		t.Errorf("join clause wrong: %q", sql)
	}
	if !strings.Contains(sql, "icd_code IN ('E11.9', 'E11.65')") {
		t.Errorf("icd term wrong: %q", sql)
	}
}

func TestBuildSQL_JoinWithoutCondition(t *testing.T) {
	v := newTestValidator()
	m := ageMapping(0.95)
	m.MimicMapping.JoinTable = "mimiciv_hosp.admissions"
	m.MimicMapping.JoinColumns = []string{"subject_id"}

	sql, err := v.buildSQL(m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sql, "JOIN mimiciv_hosp.admissions WHERE") {
		t.Errorf("bare join rendered wrong: %q", sql)
	}
}

func TestBuildSQL_TemporalUsesTableTimeColumn(t *testing.T) {
	v := newTestValidator()
	m := ageMapping(0.95)
	m.MimicMapping.Table = "mimiciv_hosp.prescriptions"
	m.MimicMapping.Columns = []string{"subject_id", "drug"}
	m.MimicMapping.SQLCondition = "LOWER(drug) LIKE '%metformin%'"
	m.Criterion.TemporalConstraint = &models.TemporalConstraint{
		Operator:       models.TemporalWithinLast,
		Value:          30,
		Unit:           models.UnitDays,
		ReferencePoint: models.DefaultReferencePoint,
	}

	sql, err := v.buildSQL(m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sql, "starttime >= NOW() - INTERVAL '30 days'") {
		t.Errorf("temporal term wrong: %q", sql)
	}
}

func TestBuildSQL_EscapesICDQuotes(t *testing.T) {
	v := newTestValidator()
	m := ageMapping(0.95)
	m.MimicMapping.ICDCodes = []string{"E1'1"}

	sql, err := v.buildSQL(m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sql, "icd_code IN ('E1''1')") {
		t.Errorf("quote escaping wrong: %q", sql)
	}
}

func TestBuildSQL_StripsTrailingSemicolon(t *testing.T) {
	v := newTestValidator()
	m := ageMapping(0.95)
	m.MimicMapping.SQLCondition = "anchor_age >= 18;"

	sql, err := v.buildSQL(m)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(sql, ";") {
		t.Errorf("semicolon survived normalization: %q", sql)
	}
}
