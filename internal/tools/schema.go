package tools

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/xiaot623/voicerag/internal/domain"
)

// FieldType is the JSON type of a tool parameter.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Field describes a single tool parameter.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	// Items is the element type when Type is TypeArray.
	Items FieldType
}

// Schema is the typed parameter list of a tool.
type Schema struct {
	Fields []Field
}

// Validate checks raw arguments against the schema and returns them decoded.
// Unknown fields are kept but not checked.
func (s Schema) Validate(tool string, raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, &domain.ArgumentError{Tool: tool, Reason: "arguments must be a JSON object"}
	}
	if args == nil {
		return nil, &domain.ArgumentError{Tool: tool, Reason: "arguments must be a JSON object"}
	}
	for _, f := range s.Fields {
		v, ok := args[f.Name]
		if !ok || v == nil {
			if f.Required {
				return nil, &domain.ArgumentError{Tool: tool, Field: f.Name, Reason: "is required"}
			}
			continue
		}
		if !matches(f.Type, v) {
			return nil, &domain.ArgumentError{Tool: tool, Field: f.Name, Reason: fmt.Sprintf("must be %s", f.Type)}
		}
		if f.Type == TypeArray && f.Items != "" {
			for i, item := range v.([]any) {
				if !matches(f.Items, item) {
					return nil, &domain.ArgumentError{
						Tool:   tool,
						Field:  fmt.Sprintf("%s[%d]", f.Name, i),
						Reason: fmt.Sprintf("must be %s", f.Items),
					}
				}
			}
		}
	}
	return args, nil
}

func matches(t FieldType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		_, ok := v.(float64)
		return ok
	case TypeInteger:
		n, ok := v.(float64)
		return ok && n == math.Trunc(n)
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

type jsonProperty struct {
	Type        FieldType     `json:"type"`
	Description string        `json:"description,omitempty"`
	Items       *jsonProperty `json:"items,omitempty"`
}

type jsonSchema struct {
	Type                 string                  `json:"type"`
	Properties           map[string]jsonProperty `json:"properties"`
	Required             []string                `json:"required"`
	AdditionalProperties bool                    `json:"additionalProperties"`
}

// JSON renders the schema as a JSON-schema parameters object.
func (s Schema) JSON() json.RawMessage {
	out := jsonSchema{
		Type:       "object",
		Properties: make(map[string]jsonProperty, len(s.Fields)),
		Required:   []string{},
	}
	for _, f := range s.Fields {
		p := jsonProperty{Type: f.Type, Description: f.Description}
		if f.Type == TypeArray && f.Items != "" {
			p.Items = &jsonProperty{Type: f.Items}
		}
		out.Properties[f.Name] = p
		if f.Required {
			out.Required = append(out.Required, f.Name)
		}
	}
	data, _ := json.Marshal(out)
	return data
}
