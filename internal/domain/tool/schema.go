package tool

import (
	"encoding/json"
	"sort"
)

// SchemaJSON renders a descriptor's input schema as a JSON Schema object,
// the shape both the LLM function-calling surface and MCP expect.
func SchemaJSON(d Descriptor) json.RawMessage {
	schema := map[string]any{
		"type":       "object",
		"properties": propertiesOf(d.Input),
	}
	var required []string
	for name, p := range d.Input {
		if !p.Optional {
			required = append(required, name)
		}
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	schema["additionalProperties"] = false

	out, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return out
}

func propertiesOf(params map[string]Param) map[string]any {
	props := make(map[string]any, len(params))
	for name, p := range params {
		props[name] = paramSchema(p)
	}
	return props
}

func paramSchema(p Param) map[string]any {
	s := map[string]any{"type": string(p.Type)}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.Minimum != nil {
		s["minimum"] = *p.Minimum
	}
	if p.Type == TypeObject && len(p.Nested) > 0 {
		s["properties"] = propertiesOf(p.Nested)
	}
	if p.Type == TypeArray && p.Items != nil {
		s["items"] = paramSchema(*p.Items)
	}
	return s
}
