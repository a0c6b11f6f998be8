// ABOUTME: JSON schema compilation and validation for tool inputs and outputs
// ABOUTME: Flattens validation failures into location-prefixed messages for clients

package tools

import (
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	if source == "" {
		return nil, fmt.Errorf("schema %s is empty", name)
	}
	s, err := jsonschema.CompileString(name, source)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", name, err)
	}
	return s, nil
}

// validate checks v against s, returning flattened violations when invalid.
func validate(s *jsonschema.Schema, v any) ([]string, error) {
	err := s.Validate(v)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}
	return Violations(ve), err
}

// Violations flattens a validation error tree into "location: message" lines.
func Violations(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, Violations(cause)...)
	}
	return out
}
