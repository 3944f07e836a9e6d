package external

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CompileSchema compiles a JSON Schema document (as a decoded map, the same
// shape CompletionRequest.Schema carries) into a reusable validator,
// grounded on the teacher's tool_registry.compileSchema.
func CompileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

// ValidateLLMResponse parses raw as JSON and validates it against schema,
// returning the decoded value on success. Used by phase handlers that pass
// CompletionRequest.Schema and need the model's response to actually
// conform before trusting it (e.g. structured extraction output).
func ValidateLLMResponse(raw string, schema map[string]any) (any, error) {
	s, err := CompileSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("external: compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("external: response is not valid JSON: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("external: response failed schema validation: %w", err)
	}
	return v, nil
}
