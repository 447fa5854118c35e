package prompts

import (
	"fmt"
	"strings"

	"github.com/trialworks/criteria-engine/pkg/models"
)

// MappingSystem is the system prompt for Stage 2.
const MappingSystem = `You are a MIMIC-IV database expert. You map structured clinical trial ` +
	`criteria onto MIMIC-IV tables, columns, ICD codes and itemids.

Rules:
- Use only tables and columns from the schema context provided.
- Always qualify tables as schema.table (e.g. mimiciv_hosp.labevents).
- sql_condition is a single WHERE fragment for the chosen table; no semicolons, no subqueries into other schemas.
- Provide icd_codes for diagnosis/procedure criteria and itemids for lab or chart measurements when known.
- Report your confidence between 0.0 and 1.0 honestly; uncertain code or itemid choices lower confidence.
- Explain the mapping choice in "reasoning".
- Respond with a single JSON object and nothing else.`

// BuildMappingPrompt creates the Stage 2 user prompt for one criterion. The
// schema context is already narrowed to the entity type; the JSON Schema of
// MappingOutput is embedded as the response contract.
func BuildMappingPrompt(entity *models.CriterionEntity, schemaContext, targetSchema string) string {
	var prompt strings.Builder

	prompt.WriteString("# Criterion Mapping\n\n")
	prompt.WriteString("Map the following eligibility criterion onto the MIMIC-IV schema.\n\n")

	prompt.WriteString("## Criterion\n\n")
	writeEntity(&prompt, entity, 0)
	prompt.WriteString("\n")

	prompt.WriteString("## Schema Context\n\n")
	prompt.WriteString(schemaContext)
	prompt.WriteString("\n")

	prompt.WriteString("## Response Contract\n\n")
	prompt.WriteString("Respond with a JSON object conforming exactly to this schema:\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(targetSchema)
	prompt.WriteString("\n```\n")

	return prompt.String()
}

// writeEntity renders a criterion, recursing into sub-criteria with
// indentation.
func writeEntity(b *strings.Builder, entity *models.CriterionEntity, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s- text: %q\n", indent, entity.Text)
	fmt.Fprintf(b, "%s  entity_type: %s\n", indent, entity.EntityType)

	for _, field := range []struct{ label, value string }{
		{"attribute", entity.Attribute},
		{"operator", entity.Operator},
		{"value", entity.Value},
		{"unit", entity.Unit},
	} {
		if field.value != "" {
			fmt.Fprintf(b, "%s  %s: %s\n", indent, field.label, field.value)
		}
	}

	if entity.Negation {
		fmt.Fprintf(b, "%s  negation: true\n", indent)
	}
	if tc := entity.TemporalConstraint; tc != nil {
		fmt.Fprintf(b, "%s  temporal: %s %s (reference: %s)\n", indent, tc.Operator, tc.Interval(), tc.ReferencePoint)
	}
	if len(entity.SubCriteria) > 0 {
		fmt.Fprintf(b, "%s  sub_criteria:\n", indent)
		for _, sub := range entity.SubCriteria {
			writeEntity(b, sub, depth+1)
		}
	}
}
