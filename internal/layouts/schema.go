package layouts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaURL = "https://stenotouch.org/schema/layout-v1.schema.json"

//go:embed schema/layout.schema.json
var schemaJSON []byte

// compileSchema compiles the embedded layout schema.
func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// SchemaJSON returns the layout document schema.
func SchemaJSON() []byte {
	return bytes.Clone(schemaJSON)
}

// validateDocument checks a YAML or JSON document against schema. The
// document is normalised through encoding/json so the validator sees the
// same types it would for a JSON file.
func validateDocument(schema *jsonschema.Schema, data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode layout: %w", err)
	}
	normalised, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("decode layout: %w", err)
	}
	var instance any
	if err := json.Unmarshal(normalised, &instance); err != nil {
		return fmt.Errorf("decode layout: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return nil
}
