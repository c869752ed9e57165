package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// The write endpoints validate JSON bodies against strict schemas
// (additionalProperties: false) so unknown fields are rejected instead
// of silently dropped.

const descriptionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["title"],
  "properties": {
    "title":       {"type": "string", "minLength": 1},
    "purpose":     {"type": "string"},
    "url":         {"type": "string"},
    "starts_at":   {"type": "string"},
    "ends_at":     {"type": "string"},
    "annotations": {"type": "object", "additionalProperties": {"type": "string"}},
    "components":  {"type": "array", "items": {"type": "string"}},
    "locks":       {"type": "array", "items": {"type": "string"}},
    "tags":        {"type": "array", "items": {"type": "string"}},
    "depends_on":  {"type": "array", "items": {"type": "integer", "minimum": 1}},
    "operators":   {"type": "array", "items": {"type": "string"}}
  }
}`

const editSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "title":       {"type": "string"},
    "purpose":     {"type": "string"},
    "url":         {"type": "string"},
    "starts_at":   {"type": "string"},
    "ends_at":     {"type": "string"},
    "annotations": {"type": "object", "additionalProperties": {"type": "string"}},
    "components":  {"type": "array", "items": {"type": "string"}},
    "locks":       {"type": "array", "items": {"type": "string"}},
    "tags":        {"type": "array", "items": {"type": "string"}},
    "depends_on":  {"type": "array", "items": {"type": "integer", "minimum": 1}},
    "operators":   {"type": "array", "items": {"type": "string"}},
    "actor":       {"type": "string"},
    "version":     {"type": "integer", "minimum": 1}
  }
}`

var (
	compileOnce  sync.Once
	compiledDesc *jsonschema.Schema
	compiledEdit *jsonschema.Schema
	compileErr   error
)

func compileSchemas() {
	compile := func(name, schema string) (*jsonschema.Schema, error) {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", name, err)
		}
		return compiler.Compile(name)
	}
	compiledDesc, compileErr = compile("description.json", descriptionSchema)
	if compileErr != nil {
		return
	}
	compiledEdit, compileErr = compile("edit.json", editSchema)
}

func validateAgainst(schema *jsonschema.Schema, body []byte) error {
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("parse body: %w", err)
	}
	return schema.Validate(payload)
}

// validateDescription checks a JSON operation description body.
func validateDescription(body []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	return validateAgainst(compiledDesc, body)
}

// validateEdit checks a PATCH /operations/{id} body.
func validateEdit(body []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	return validateAgainst(compiledEdit, body)
}

// schemaErrorDetails flattens a jsonschema validation error into the
// error envelope's details list.
func schemaErrorDetails(err error) []string {
	vErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var details []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		location := e.InstanceLocation
		if location == "" {
			location = "/"
		}
		details = append(details, fmt.Sprintf("%s: %s", location, e.Message))
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(vErr)
	return details
}
