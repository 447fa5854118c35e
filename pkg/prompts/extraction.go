// Package prompts builds the system and user prompts for the extraction and
// mapping stages, including the corrective re-prompt used after a schema
// violation.
package prompts

import (
	"strings"
)

// ExtractionSystem is the system prompt for Stage 1.
const ExtractionSystem = `You are a clinical trial eligibility expert. You extract structured, ` +
	`machine-readable criteria from free-text clinical trial eligibility sections.

Rules:
- Preserve each criterion's source text verbatim in the "text" field.
- Classify every criterion as demographic, condition, procedure, measurement, or medication.
- Use operators only from this set: >, <, >=, <=, ==, !=, IN, NOT IN, LIKE.
- Set "negation" to true for exclusionary phrasings ("no history of", "absence of").
- Capture time windows ("within the last 6 months") as a temporal_constraint.
- Split compound criteria joined by AND/OR into sub_criteria.
- Record every inference you make (e.g. "adult" meaning age >= 18) in assumptions_made.
- Respond with a single JSON object and nothing else.`

// BuildExtractionPrompt creates the Stage 1 user prompt. The JSON Schema of
// the expected output is embedded as the response contract.
func BuildExtractionPrompt(rawText, targetSchema string) string {
	var prompt strings.Builder

	prompt.WriteString("# Eligibility Criteria Extraction\n\n")
	prompt.WriteString("Extract all inclusion and exclusion criteria from the eligibility text below.\n\n")

	prompt.WriteString("## Eligibility Text\n\n")
	prompt.WriteString(rawText)
	prompt.WriteString("\n\n")

	prompt.WriteString("## Response Contract\n\n")
	prompt.WriteString("Respond with a JSON object conforming exactly to this schema:\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(targetSchema)
	prompt.WriteString("\n```\n")

	return prompt.String()
}

// BuildCorrectivePrompt rebuilds a user prompt after a schema violation. The
// violation text and the original prompt are both embedded so the model can
// repair its previous response against the same input.
func BuildCorrectivePrompt(originalPrompt, validationError string) string {
	var prompt strings.Builder

	prompt.WriteString("Your previous response did not conform to the required schema.\n\n")
	prompt.WriteString("## Validation Error\n\n")
	prompt.WriteString(validationError)
	prompt.WriteString("\n\n")
	prompt.WriteString("Fix the problem and respond again with a single valid JSON object. ")
	prompt.WriteString("The original request follows.\n\n")
	prompt.WriteString("---\n\n")
	prompt.WriteString(originalPrompt)

	return prompt.String()
}
