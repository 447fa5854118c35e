package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// SchemaOf renders the JSON Schema of the target type as indented JSON,
// suitable for embedding in a prompt as the function-calling contract.
// References are inlined so the model sees one self-contained document.
func SchemaOf[T any]() (string, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}

	var target T
	schema := reflector.Reflect(&target)
	schema.Version = "" // $schema noise buys the model nothing

	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema for %s: %w", TypeName[T](), err)
	}
	return string(b), nil
}

// TypeName returns the bare type name of T for error messages and logs.
func TypeName[T any]() string {
	var target T
	t := reflect.TypeOf(&target).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
