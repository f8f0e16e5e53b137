package prompt

import (
	"fmt"
	"math"
	"slices"

	"google.golang.org/genai"
)

// validateValue checks a decoded JSON value against schema. It covers the
// subset of OpenAPI used by this service: objects, arrays, strings with enums,
// booleans, integers and numbers. Extra object properties are ignored.
func validateValue(schema *genai.Schema, v any, path string) (string, string, bool) {
	if schema == nil {
		return "", "", true
	}
	if v == nil {
		if schema.Nullable != nil && *schema.Nullable {
			return "", "", true
		}
		return path, "null value", false
	}

	switch schema.Type {
	case genai.TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return path, fmt.Sprintf("expected object, got %T", v), false
		}
		for _, name := range schema.Required {
			if _, present := obj[name]; !present {
				return path + "." + name, "required property missing", false
			}
		}
		for name, prop := range schema.Properties {
			val, present := obj[name]
			if !present {
				continue
			}
			if p, reason, ok := validateValue(prop, val, path+"."+name); !ok {
				return p, reason, false
			}
		}
	case genai.TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return path, fmt.Sprintf("expected array, got %T", v), false
		}
		for i, item := range arr {
			if p, reason, ok := validateValue(schema.Items, item, fmt.Sprintf("%s[%d]", path, i)); !ok {
				return p, reason, false
			}
		}
	case genai.TypeString:
		s, ok := v.(string)
		if !ok {
			return path, fmt.Sprintf("expected string, got %T", v), false
		}
		if len(schema.Enum) > 0 && !slices.Contains(schema.Enum, s) {
			return path, fmt.Sprintf("%q is not one of %v", s, schema.Enum), false
		}
	case genai.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return path, fmt.Sprintf("expected boolean, got %T", v), false
		}
	case genai.TypeInteger:
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return path, fmt.Sprintf("expected integer, got %v", v), false
		}
	case genai.TypeNumber:
		if _, ok := v.(float64); !ok {
			return path, fmt.Sprintf("expected number, got %T", v), false
		}
	}
	return "", "", true
}

// Object is shorthand for an object schema whose listed properties are all required.
func Object(props map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

// String is a string schema with a description.
func String(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

// Enum is a string schema restricted to values.
func Enum(description string, values ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description, Enum: values}
}

// Boolean is a boolean schema.
func Boolean(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeBoolean, Description: description}
}

// Array is an array schema of items.
func Array(description string, items *genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Description: description, Items: items}
}
