package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table describes one database table in the catalogue.
type Table struct {
	Columns []string `json:"columns" yaml:"columns"`
	// TimeColumn is the column used to compile temporal constraints.
	// Empty means the table has no usable event timestamp.
	TimeColumn  string `json:"time_column,omitempty" yaml:"time_column,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Catalogue is the database schema the mapper and validator check against.
// Tables are keyed by their qualified "schema.table" name.
type Catalogue struct {
	Tables map[string]Table `json:"tables" yaml:"tables"`
	// EntityTables narrows the prompt context per entity type: only the
	// listed tables are rendered into the mapping prompt for that type.
	EntityTables map[string][]string `json:"entity_tables,omitempty" yaml:"entity_tables,omitempty"`
	// Hints are extra per-entity-type prompt lines (known itemids,
	// ICD code families, unit conventions).
	Hints map[string]string `json:"hints,omitempty" yaml:"hints,omitempty"`
}

// DefaultTimeColumn is used for temporal SQL when a table does not declare
// its own time column.
const DefaultTimeColumn = "charttime"

// Load reads a catalogue from a JSON or YAML file, chosen by extension.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue %s: %w", path, err)
	}

	var cat Catalogue
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("parse catalogue %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("parse catalogue %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("catalogue %s: unsupported extension %q (want .json, .yaml or .yml)", path, ext)
	}

	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalogue %s: %w", path, err)
	}
	return &cat, nil
}

// Validate checks structural sanity of a loaded catalogue.
func (c *Catalogue) Validate() error {
	if len(c.Tables) == 0 {
		return fmt.Errorf("catalogue has no tables")
	}
	for name, table := range c.Tables {
		if !strings.Contains(name, ".") {
			return fmt.Errorf("table %q is not schema-qualified", name)
		}
		if len(table.Columns) == 0 {
			return fmt.Errorf("table %q has no columns", name)
		}
	}
	for entityType, tables := range c.EntityTables {
		for _, name := range tables {
			if _, ok := c.Tables[name]; !ok {
				return fmt.Errorf("entity type %q references unknown table %q", entityType, name)
			}
		}
	}
	return nil
}

// TableExists reports whether the qualified table name is in the catalogue.
func (c *Catalogue) TableExists(name string) bool {
	_, ok := c.Tables[name]
	return ok
}

// ColumnsOf returns the columns of a table, or nil if the table is unknown.
func (c *Catalogue) ColumnsOf(table string) []string {
	t, ok := c.Tables[table]
	if !ok {
		return nil
	}
	return t.Columns
}

// HasColumn reports whether the table exists and has the named column.
func (c *Catalogue) HasColumn(table, column string) bool {
	t, ok := c.Tables[table]
	if !ok {
		return false
	}
	for _, col := range t.Columns {
		if col == column {
			return true
		}
	}
	return false
}

// TimeColumn returns the column to use for temporal SQL on the given table,
// falling back to DefaultTimeColumn when the table does not declare one.
func (c *Catalogue) TimeColumn(table string) string {
	if t, ok := c.Tables[table]; ok && t.TimeColumn != "" {
		return t.TimeColumn
	}
	return DefaultTimeColumn
}

// TableNames returns all qualified table names, sorted.
func (c *Catalogue) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContextFor renders the schema context embedded in the mapping prompt,
// narrowed to the tables relevant to the entity type. Unknown entity types
// fall back to the full catalogue. Output order is deterministic.
func (c *Catalogue) ContextFor(entityType string) string {
	names := c.EntityTables[entityType]
	if len(names) == 0 {
		names = c.TableNames()
	} else {
		names = append([]string(nil), names...)
		sort.Strings(names)
	}

	var b strings.Builder
	for _, name := range names {
		table, ok := c.Tables[name]
		if !ok {
			continue
		}
		b.WriteString(name)
		b.WriteString(" (")
		b.WriteString(strings.Join(table.Columns, ", "))
		b.WriteString(")")
		if table.TimeColumn != "" {
			fmt.Fprintf(&b, " [time column: %s]", table.TimeColumn)
		}
		if table.Description != "" {
			b.WriteString(" -- ")
			b.WriteString(table.Description)
		}
		b.WriteString("\n")
	}

	if hint, ok := c.Hints[entityType]; ok && hint != "" {
		b.WriteString("\n")
		b.WriteString(hint)
		b.WriteString("\n")
	}
	return b.String()
}

// Default returns the built-in MIMIC-IV catalogue used when no catalogue
// file is configured.
func Default() *Catalogue {
	return &Catalogue{
		Tables: map[string]Table{
			"mimiciv_hosp.patients": {
				Columns:     []string{"subject_id", "gender", "anchor_age", "anchor_year", "anchor_year_group", "dod"},
				Description: "one row per patient; anchor_age is age at anchor_year",
			},
			"mimiciv_hosp.admissions": {
				Columns:     []string{"subject_id", "hadm_id", "admittime", "dischtime", "deathtime", "admission_type", "insurance", "language", "marital_status", "race", "hospital_expire_flag"},
				TimeColumn:  "admittime",
				Description: "one row per hospital admission",
			},
			"mimiciv_hosp.diagnoses_icd": {
				Columns:     []string{"subject_id", "hadm_id", "seq_num", "icd_code", "icd_version"},
				Description: "billed ICD diagnoses per admission",
			},
			"mimiciv_hosp.d_icd_diagnoses": {
				Columns:     []string{"icd_code", "icd_version", "long_title"},
				Description: "ICD diagnosis code dictionary",
			},
			"mimiciv_hosp.procedures_icd": {
				Columns:     []string{"subject_id", "hadm_id", "seq_num", "chartdate", "icd_code", "icd_version"},
				TimeColumn:  "chartdate",
				Description: "billed ICD procedures per admission",
			},
			"mimiciv_hosp.d_icd_procedures": {
				Columns:     []string{"icd_code", "icd_version", "long_title"},
				Description: "ICD procedure code dictionary",
			},
			"mimiciv_hosp.prescriptions": {
				Columns:     []string{"subject_id", "hadm_id", "starttime", "stoptime", "drug", "drug_type", "dose_val_rx", "dose_unit_rx", "route"},
				TimeColumn:  "starttime",
				Description: "medication orders",
			},
			"mimiciv_hosp.labevents": {
				Columns:     []string{"labevent_id", "subject_id", "hadm_id", "itemid", "charttime", "value", "valuenum", "valueuom", "ref_range_lower", "ref_range_upper", "flag"},
				TimeColumn:  "charttime",
				Description: "laboratory measurements; join d_labitems on itemid",
			},
			"mimiciv_hosp.d_labitems": {
				Columns:     []string{"itemid", "label", "fluid", "category"},
				Description: "lab item dictionary",
			},
			"mimiciv_hosp.omr": {
				Columns:     []string{"subject_id", "chartdate", "seq_num", "result_name", "result_value"},
				TimeColumn:  "chartdate",
				Description: "outpatient measurements (height, weight, BMI, blood pressure)",
			},
			"mimiciv_icu.chartevents": {
				Columns:     []string{"subject_id", "hadm_id", "stay_id", "itemid", "charttime", "value", "valuenum", "valueuom"},
				TimeColumn:  "charttime",
				Description: "bedside observations during ICU stays; join d_items on itemid",
			},
			"mimiciv_icu.d_items": {
				Columns:     []string{"itemid", "label", "abbreviation", "category", "unitname"},
				Description: "ICU item dictionary",
			},
			"mimiciv_icu.icustays": {
				Columns:     []string{"subject_id", "hadm_id", "stay_id", "first_careunit", "last_careunit", "intime", "outtime", "los"},
				TimeColumn:  "intime",
				Description: "one row per ICU stay; los is length of stay in days",
			},
		},
		EntityTables: map[string][]string{
			"demographic": {
				"mimiciv_hosp.patients",
				"mimiciv_hosp.admissions",
			},
			"condition": {
				"mimiciv_hosp.diagnoses_icd",
				"mimiciv_hosp.d_icd_diagnoses",
				"mimiciv_hosp.admissions",
			},
			"procedure": {
				"mimiciv_hosp.procedures_icd",
				"mimiciv_hosp.d_icd_procedures",
				"mimiciv_icu.icustays",
			},
			"measurement": {
				"mimiciv_hosp.labevents",
				"mimiciv_hosp.d_labitems",
				"mimiciv_hosp.omr",
				"mimiciv_icu.chartevents",
				"mimiciv_icu.d_items",
			},
			"medication": {
				"mimiciv_hosp.prescriptions",
			},
		},
		Hints: map[string]string{
			"measurement": "Common itemids: 50813 lactate, 50912 creatinine, 51222 hemoglobin, 50931 glucose (labevents); 220045 heart rate, 220181 mean arterial pressure (chartevents). Use valuenum for numeric comparisons.",
			"condition":    "Filter diagnoses_icd.icd_code with LIKE prefixes; icd_version distinguishes ICD-9 from ICD-10 (ICD-10 examples: E11% type 2 diabetes, I50% heart failure, N18% chronic kidney disease).",
			"medication":   "Match prescriptions.drug case-insensitively with LOWER(drug) LIKE patterns; generic and brand names both occur.",
		},
	}
}
