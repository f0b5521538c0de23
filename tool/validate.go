package tool

import (
	"fmt"
)

// ValidationError reports a single argument that failed schema validation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
}

// validateParameters checks args against a minimal JSON-Schema-like spec:
// required fields must be present and property types must match when
// declared. Unknown properties pass through so schemas stay permissive.
func validateParameters(args map[string]any, schema map[string]any) error {
	if schema == nil {
		return nil
	}

	if required, ok := schema["required"]; ok {
		for _, name := range requiredNames(required) {
			if _, present := args[name]; !present {
				return &ValidationError{Field: name, Message: "missing required field"}
			}
		}
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	for name, raw := range args {
		propSpec, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		wantType, ok := propSpec["type"].(string)
		if !ok || raw == nil {
			continue
		}
		if !typeMatches(raw, wantType) {
			return &ValidationError{
				Field:   name,
				Message: fmt.Sprintf("expected type %s, got %T", wantType, raw),
			}
		}
	}
	return nil
}

func requiredNames(required any) []string {
	switch req := required.(type) {
	case []string:
		return req
	case []any:
		names := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

// typeMatches checks a decoded JSON value against a schema type name. JSON
// numbers decode as float64, so "integer" accepts whole-valued floats.
func typeMatches(v any, schemaType string) bool {
	switch schemaType {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}
