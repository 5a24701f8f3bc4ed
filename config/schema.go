package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"gopkg.in/yaml.v3"
)

// SchemaURL identifies the embedded config schema.
const SchemaURL = "https://screensweep.dev/config.schema.json"

var errEmptySchema = errors.New("embedded schema is empty")

//go:embed schema.json
var schemaBytes []byte

func compileSchema() (*jsonschema.Schema, error) {
	b := bytes.TrimSpace(schemaBytes)
	if len(b) == 0 {
		return nil, errEmptySchema
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse embedded schema json: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(SchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add embedded schema resource: %w", err)
	}
	s, err := c.Compile(SchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}
	return s, nil
}

// validateRaw checks raw yaml against the embedded schema. The schema library
// validates json documents, so the yaml goes through a json round-trip first.
func validateRaw(raw []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	var yamlDoc any
	if err := yaml.Unmarshal(raw, &yamlDoc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	jsonBytes, err := json.Marshal(yamlDoc)
	if err != nil {
		return fmt.Errorf("convert yaml to json: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonBytes, &jsonDoc); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	if err := schema.Validate(jsonDoc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
