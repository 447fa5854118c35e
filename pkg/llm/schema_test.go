package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

type schemaTarget struct {
	Name  string   `json:"name" jsonschema:"required"`
	Score float64  `json:"score"`
	Tags  []string `json:"tags,omitempty"`
}

func TestSchemaOf(t *testing.T) {
	out, err := SchemaOf[schemaTarget]()
	if err != nil {
		t.Fatalf("SchemaOf: %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal([]byte(out), &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}

	if _, ok := schema["$ref"]; ok {
		t.Error("schema should be inlined, not a $ref to definitions")
	}
	if _, ok := schema["$schema"]; ok {
		t.Error("$schema version should be stripped")
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema has no properties object")
	}
	for _, field := range []string{"name", "score"} {
		if _, ok := props[field]; !ok {
			t.Errorf("schema missing property %q", field)
		}
	}

	if !strings.Contains(out, "\n") {
		t.Error("schema should be indented for prompt readability")
	}
}

func TestTypeName(t *testing.T) {
	if got := TypeName[schemaTarget](); got != "schemaTarget" {
		t.Errorf("TypeName[schemaTarget]() = %q", got)
	}
	if got := TypeName[*schemaTarget](); got != "schemaTarget" {
		t.Errorf("TypeName[*schemaTarget]() = %q", got)
	}
}
