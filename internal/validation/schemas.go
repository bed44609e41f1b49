package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator checks message payloads against their JSON schemas before
// they reach the stores. Schemas are embedded so validation needs no
// filesystem access at runtime.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// ValidationResult carries the outcome of one validation.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

const ratingEventSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["event_id", "agent_id", "item_id", "rating", "timestamp"],
	"properties": {
		"event_id": {"type": "string", "format": "uuid"},
		"agent_id": {"type": "string", "format": "uuid"},
		"item_id": {"type": "string", "format": "uuid"},
		"rating": {"type": "number"},
		"timestamp": {"type": "string", "format": "date-time"}
	},
	"additionalProperties": false
}`

const personalizeRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["agents"],
	"properties": {
		"agents": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["agent_id", "ratings"],
				"properties": {
					"agent_id": {"type": "string", "format": "uuid"},
					"ratings": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"required": ["item_id", "rating"],
							"properties": {
								"item_id": {"type": "string", "format": "uuid"},
								"rating": {"type": "number"}
							}
						}
					}
				}
			}
		},
		"top_n": {"type": "integer", "minimum": 1}
	}
}`

// NewSchemaValidator compiles the embedded schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	sources := map[string]string{
		"rating-event":        ratingEventSchema,
		"personalize-request": personalizeRequestSchema,
	}

	sv := &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema, len(sources))}
	for name, source := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}

	return sv, nil
}

// ValidateRatingEvent checks a raw rating-event payload.
func (sv *SchemaValidator) ValidateRatingEvent(payload []byte) *ValidationResult {
	return sv.validate("rating-event", payload)
}

// ValidatePersonalizeRequest checks a raw personalization request body.
func (sv *SchemaValidator) ValidatePersonalizeRequest(payload []byte) *ValidationResult {
	return sv.validate("personalize-request", payload)
}

func (sv *SchemaValidator) validate(name string, payload []byte) *ValidationResult {
	schema, ok := sv.schemas[name]
	if !ok {
		return &ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("unknown schema %s", name)}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return &ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}

	if result.Valid() {
		return &ValidationResult{Valid: true}
	}

	errors := make([]string, 0, len(result.Errors()))
	for _, resultError := range result.Errors() {
		errors = append(errors, resultError.String())
	}
	return &ValidationResult{Valid: false, Errors: errors}
}
