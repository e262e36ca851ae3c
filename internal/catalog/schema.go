package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed definition.schema.json
var definitionSchema []byte

const schemaURL = "warden://catalog/definition.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(definitionSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateSchema checks a raw definition document against the embedded JSON
// schema: shape, field types, and unknown-field rejection. Enum values and
// per-family field pairings are semantic rules and live in
// ValidateDefinition, which runs after normalization.
func ValidateSchema(b []byte) error {
	schema, err := compiled()
	if err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return err
	}

	// YAML scalars such as timestamps decode to Go types the validator does
	// not accept, so the document is squeezed through JSON first.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode capability for schema validation: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode capability for schema validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
