package devicesync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidPayload is returned for device messages that fail validation.
var ErrInvalidPayload = errors.New("devicesync: invalid payload")

// ErrUnknownType is returned when a device announces an unsupported type.
var ErrUnknownType = errors.New("devicesync: unsupported module type")

const newConnectionSchema = `{
	"type": "object",
	"required": ["mac", "type"],
	"properties": {
		"mac":  {"type": "string", "minLength": 1, "maxLength": 17},
		"type": {"type": "string", "minLength": 1, "enum": ["numeric", "arrow"]}
	}
}`

const lastWillSchema = `{
	"type": "object",
	"required": ["mac"],
	"properties": {
		"mac": {"type": "string", "minLength": 1, "maxLength": 17}
	}
}`

// payloadSchemas holds the compiled device message schemas.
type payloadSchemas struct {
	newConnection *gojsonschema.Schema
	lastWill      *gojsonschema.Schema
}

func compileSchemas() (*payloadSchemas, error) {
	newConnection, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(newConnectionSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling new_connection schema: %w", err)
	}
	lastWill, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(lastWillSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling last_will schema: %w", err)
	}
	return &payloadSchemas{newConnection: newConnection, lastWill: lastWill}, nil
}

// validatePayload checks payload against schema.
//
// It returns ErrUnknownType when the only problem is a well-formed type
// outside the enum, and ErrInvalidPayload for anything else.
func validatePayload(schema *gojsonschema.Schema, payload []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if result.Valid() {
		return nil
	}

	onlyType := true
	reasons := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		reasons = append(reasons, e.String())
		if e.Field() != "type" || e.Type() != "enum" {
			onlyType = false
		}
	}

	if onlyType {
		return fmt.Errorf("%w: %s", ErrUnknownType, strings.Join(reasons, "; "))
	}
	return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(reasons, "; "))
}
