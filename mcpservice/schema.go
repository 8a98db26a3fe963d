package mcpservice

import (
	"encoding/json"
	"fmt"

	"github.com/toolbridge/mcp-stdio-go/mcp"
)

// ArgumentError describes a single schema violation in a tool call. Field
// names the offending property so the client can diagnose the failure without
// consulting server logs.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

// ValidateArguments checks raw tool-call arguments against a declared input
// schema and returns the normalized argument map with declared defaults
// substituted for missing optional properties.
//
// Checks applied, in order: the payload must be a JSON object (or absent);
// every required property must be present; each present, declared property
// must satisfy its type, enum, and numeric bounds. Unknown properties are
// permitted and passed through untouched for forward compatibility. The first
// violation is returned as an *ArgumentError and no further checks run.
func ValidateArguments(schema mcp.ToolInputSchema, raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &ArgumentError{Field: "arguments", Reason: "must be a JSON object"}
		}
	}

	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return nil, &ArgumentError{Field: name, Reason: "required property is missing"}
		}
	}

	for name, prop := range schema.Properties {
		val, ok := args[name]
		if !ok {
			if prop.Default != nil {
				args[name] = prop.Default
			}
			continue
		}
		if err := checkProperty(name, prop, val); err != nil {
			return nil, err
		}
	}

	return args, nil
}

func checkProperty(name string, prop mcp.SchemaProperty, val any) error {
	if val == nil {
		// JSON null never satisfies a typed property.
		if prop.Type != "" {
			return &ArgumentError{Field: name, Reason: fmt.Sprintf("expected %s, got null", prop.Type)}
		}
		return nil
	}

	switch prop.Type {
	case "":
		// Untyped property; nothing to check beyond enum below.
	case "string":
		if _, ok := val.(string); !ok {
			return &ArgumentError{Field: name, Reason: fmt.Sprintf("expected string, got %s", jsonTypeName(val))}
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return &ArgumentError{Field: name, Reason: fmt.Sprintf("expected boolean, got %s", jsonTypeName(val))}
		}
	case "number":
		f, ok := val.(float64)
		if !ok {
			return &ArgumentError{Field: name, Reason: fmt.Sprintf("expected number, got %s", jsonTypeName(val))}
		}
		if err := checkBounds(name, prop, f); err != nil {
			return err
		}
	case "integer":
		f, ok := val.(float64)
		if !ok || f != float64(int64(f)) {
			return &ArgumentError{Field: name, Reason: fmt.Sprintf("expected integer, got %s", jsonTypeName(val))}
		}
		if err := checkBounds(name, prop, f); err != nil {
			return err
		}
	case "array":
		items, ok := val.([]any)
		if !ok {
			return &ArgumentError{Field: name, Reason: fmt.Sprintf("expected array, got %s", jsonTypeName(val))}
		}
		if prop.Items != nil {
			for i, item := range items {
				if err := checkProperty(fmt.Sprintf("%s[%d]", name, i), *prop.Items, item); err != nil {
					return err
				}
			}
		}
	case "object":
		obj, ok := val.(map[string]any)
		if !ok {
			return &ArgumentError{Field: name, Reason: fmt.Sprintf("expected object, got %s", jsonTypeName(val))}
		}
		for childName, childProp := range prop.Properties {
			if childVal, ok := obj[childName]; ok {
				if err := checkProperty(name+"."+childName, childProp, childVal); err != nil {
					return err
				}
			}
		}
	default:
		return &ArgumentError{Field: name, Reason: fmt.Sprintf("unsupported schema type %q", prop.Type)}
	}

	if len(prop.Enum) > 0 && !enumContains(prop.Enum, val) {
		return &ArgumentError{Field: name, Reason: fmt.Sprintf("value %v is not one of the allowed values", val)}
	}

	return nil
}

func checkBounds(name string, prop mcp.SchemaProperty, f float64) error {
	if prop.Minimum != nil && f < *prop.Minimum {
		return &ArgumentError{Field: name, Reason: fmt.Sprintf("value %v is below the minimum %v", f, *prop.Minimum)}
	}
	if prop.Maximum != nil && f > *prop.Maximum {
		return &ArgumentError{Field: name, Reason: fmt.Sprintf("value %v is above the maximum %v", f, *prop.Maximum)}
	}
	return nil
}

// enumContains matches decoded JSON values against declared enum members.
// Numeric members are compared by value since decoded JSON numbers are always
// float64 while declared enums may hold ints.
func enumContains(enum []any, val any) bool {
	for _, e := range enum {
		if e == val {
			return true
		}
		ef, eok := asFloat(e)
		vf, vok := asFloat(val)
		if eok && vok && ef == vf {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
