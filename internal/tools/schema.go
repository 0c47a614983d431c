package tools

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Schema is the subset of JSON Schema the registry validates arguments
// against: a flat object with typed, optionally constrained properties.
// Fields not declared here are rejected.
type Schema struct {
	Properties map[string]Property
	Required   []string
}

// Property constrains one argument field. Enum applies to strings,
// Minimum/Maximum to integers and numbers.
type Property struct {
	Type        string
	Description string
	Enum        []string
	Minimum     *float64
	Maximum     *float64
}

// limit is shorthand for declaring a bound inline.
func limit(v float64) *float64 { return &v }

// asMap renders the schema in JSON Schema form for the model. The same
// declaration drives both the advertised spec and validation, so the two
// cannot drift.
func (s Schema) asMap() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		props[name] = prop
	}
	m := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	return m
}

func (s Schema) validate(args map[string]any) error {
	for _, field := range s.Required {
		if _, ok := args[field]; !ok {
			return fmt.Errorf("missing required field %q", field)
		}
	}
	for key, value := range args {
		prop, ok := s.Properties[key]
		if !ok {
			return fmt.Errorf("unknown field %q", key)
		}
		if err := prop.check(value); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return nil
}

func (p Property) check(value any) error {
	switch p.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %s", jsonTypeOf(value))
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
			return fmt.Errorf("value %q not one of [%s]", s, strings.Join(p.Enum, ", "))
		}
	case "integer":
		// json.Unmarshal delivers every number as float64.
		f, ok := value.(float64)
		if !ok || math.Trunc(f) != f {
			return fmt.Errorf("expected integer, got %s", jsonTypeOf(value))
		}
		return p.checkBounds(f)
	case "number":
		f, ok := value.(float64)
		if !ok {
			return fmt.Errorf("expected number, got %s", jsonTypeOf(value))
		}
		return p.checkBounds(f)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %s", jsonTypeOf(value))
		}
	default:
		return fmt.Errorf("unsupported schema type %q", p.Type)
	}
	return nil
}

func (p Property) checkBounds(f float64) error {
	if p.Minimum != nil && f < *p.Minimum {
		return fmt.Errorf("value %v below minimum %v", f, *p.Minimum)
	}
	if p.Maximum != nil && f > *p.Maximum {
		return fmt.Errorf("value %v above maximum %v", f, *p.Maximum)
	}
	return nil
}

// jsonTypeOf names the JSON type of a decoded value for error messages.
func jsonTypeOf(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}

// stringArg reads a validated string field, falling back when absent.
func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// intArg reads a validated integer field, falling back when absent.
func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}
