package tool

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/hupe1980/agentcrew/core"
)

// Property describes one field of a tool's input schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Schema is the declared input contract of a tool: a property map plus the
// list of required fields. It is a minimal JSON-Schema subset, just enough
// for function-calling declarations and argument validation.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// DefaultSchema is the fallback contract for tools that declare no
// parameters, keeping every tool callable with a minimal payload.
func DefaultSchema() Schema {
	return Schema{
		Properties: map[string]Property{
			"input": {Type: "string", Description: "Minimum input needed to complete the task"},
		},
		Required: []string{"input"},
	}
}

// Validate checks args against the schema. Required fields must be present
// and typed fields must match; extra fields are allowed. Failures are
// reported as *core.ValidationError.
func (s Schema) Validate(args map[string]any) error {
	for _, req := range s.Required {
		if _, ok := args[req]; !ok {
			return &core.ValidationError{Field: req, Message: "required field is missing"}
		}
	}

	for field, value := range args {
		prop, ok := s.Properties[field]
		if !ok {
			continue
		}
		if !isValidType(value, prop.Type) {
			return &core.ValidationError{
				Field:   field,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", prop.Type, value),
			}
		}
	}

	return nil
}

// Parameters projects the schema into the JSON-Schema object shape consumed
// by function-calling transports.
func (s Schema) Parameters() map[string]any {
	properties := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		p := map[string]any{"type": prop.Type}
		if prop.Description != "" {
			p["description"] = prop.Description
		}
		properties[name] = p
	}

	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(s.Required) > 0 {
		params["required"] = append([]string{}, s.Required...)
	}

	return params
}

// SchemaFromStruct derives a Schema from a struct using reflection. Field
// names follow json tags, descriptions come from `description` tags, and
// fields that are neither pointers nor marked omitempty are required.
func SchemaFromStruct(structType any) Schema {
	t := reflect.TypeOf(structType)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema := Schema{Properties: map[string]Property{}}
	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			if name := strings.Split(jsonTag, ",")[0]; name != "" {
				fieldName = name
			}
		}

		schema.Properties[fieldName] = Property{
			Type:        jsonType(field.Type),
			Description: field.Tag.Get("description"),
		}

		if !hasOmitEmpty(jsonTag) && field.Type.Kind() != reflect.Ptr {
			schema.Required = append(schema.Required, fieldName)
		}
	}

	return schema
}

// jsonType maps a Go type to its JSON schema type name.
func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return jsonType(t.Elem())
	default:
		return "string"
	}
}

func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isValidType checks a value against a JSON schema type name. JSON decoding
// produces float64 for all numbers, so integer accepts whole floats.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
