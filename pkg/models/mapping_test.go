package models

import (
	"encoding/json"
	"testing"
)

func TestMimicMapping_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mapping MimicMapping
		wantErr bool
	}{
		{
			name: "valid mapping",
			mapping: MimicMapping{
				Table:        "mimiciv_hosp.patients",
				Columns:      []string{"subject_id", "anchor_age"},
				SQLCondition: "anchor_age >= 18",
			},
			wantErr: false,
		},
		{
			name: "unqualified table rejected",
			mapping: MimicMapping{
				Table:        "patients",
				Columns:      []string{"subject_id"},
				SQLCondition: "anchor_age >= 18",
			},
			wantErr: true,
		},
		{
			name: "empty columns rejected",
			mapping: MimicMapping{
				Table:        "mimiciv_hosp.patients",
				SQLCondition: "anchor_age >= 18",
			},
			wantErr: true,
		},
		{
			name: "unqualified join table rejected",
			mapping: MimicMapping{
				Table:        "mimiciv_hosp.diagnoses_icd",
				Columns:      []string{"subject_id", "icd_code"},
				JoinTable:    "d_icd_diagnoses",
				SQLCondition: "1=1",
			},
			wantErr: true,
		},
		{
			name: "qualified join table accepted",
			mapping: MimicMapping{
				Table:         "mimiciv_hosp.diagnoses_icd",
				Columns:       []string{"subject_id", "icd_code"},
				JoinTable:     "mimiciv_hosp.d_icd_diagnoses",
				JoinColumns:   []string{"icd_code"},
				JoinCondition: "diagnoses_icd.icd_code = d_icd_diagnoses.icd_code",
				SQLCondition:  "long_title ILIKE '%heart failure%'",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapping.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMimicMapping_UnmarshalJSON_FlexibleLists(t *testing.T) {
	data := []byte(`{
		"table": "mimiciv_hosp.labevents",
		"columns": ["subject_id", "valuenum"],
		"sql_condition": "valuenum > 2",
		"itemids": ["50813", 50817],
		"icd_codes": "I50.9"
	}`)

	var m MimicMapping
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(m.ItemIDs) != 2 || m.ItemIDs[0] != 50813 || m.ItemIDs[1] != 50817 {
		t.Errorf("ItemIDs = %v, want [50813 50817]", m.ItemIDs)
	}
	if len(m.ICDCodes) != 1 || m.ICDCodes[0] != "I50.9" {
		t.Errorf("ICDCodes = %v, want [I50.9]", m.ICDCodes)
	}
}

func TestRoundConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.856, 0.86},
		{0.854, 0.85},
		{0.5, 0.5},
		{1.0, 1.0},
		{0.425, 0.43},
	}
	for _, tt := range tests {
		if got := RoundConfidence(tt.in); got != tt.want {
			t.Errorf("RoundConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStatusRank_Ordering(t *testing.T) {
	if !(StatusRank(StatusFailed) < StatusRank(StatusNeedsReview) &&
		StatusRank(StatusNeedsReview) < StatusRank(StatusWarning) &&
		StatusRank(StatusWarning) < StatusRank(StatusPassed)) {
		t.Error("status ranks are not ordered failed < needs_review < warning < passed")
	}
	if StatusRank("bogus") != -1 {
		t.Errorf("StatusRank(bogus) = %d, want -1", StatusRank("bogus"))
	}
}
