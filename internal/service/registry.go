// Package service contains the Harvey application services: the tool
// registry, the grounding layer, the pricing cache, sessions, and the
// ReAct agent loop.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/isa-group/harvey/internal/domain/tool"
	"github.com/isa-group/harvey/internal/port/llm"
)

// ToolFunc is a registered tool implementation. Args arrive schema-valid;
// the returned JSON is handed to the LLM verbatim.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Registry is the declarative tool catalogue. Registration happens at
// startup; after Seal the registry is immutable. Reads are not lock-free:
// List, Tools and Invoke take the registry mutex, and List returns a copy
// in stable name order.
type Registry struct {
	mu     sync.Mutex
	sealed bool

	descriptors map[string]tool.Descriptor
	impls       map[string]ToolFunc
	order       []string

	// AllowUnknownFields loosens validation for forward compatibility.
	AllowUnknownFields bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]tool.Descriptor),
		impls:       make(map[string]ToolFunc),
	}
}

// Register adds a tool. It panics on duplicate names or registration after
// Seal: both are wiring bugs, not runtime conditions.
func (r *Registry) Register(desc tool.Descriptor, impl ToolFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		panic("tool registry is sealed")
	}
	if _, exists := r.descriptors[desc.Name]; exists {
		panic(fmt.Sprintf("tool %q registered twice", desc.Name))
	}
	r.descriptors[desc.Name] = desc
	r.impls[desc.Name] = impl
	r.order = append(r.order, desc.Name)
}

// Seal freezes the registry. Further Register calls panic.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	sort.Strings(r.order)
}

// List returns all descriptors in stable name order.
func (r *Registry) List() []tool.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]tool.Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descriptors[name])
	}
	return out
}

// Tools renders the catalogue as LLM tool definitions, in the same stable
// order as List.
func (r *Registry) Tools(_ context.Context) ([]llm.ToolDef, error) {
	descriptors := r.List()
	defs := make([]llm.ToolDef, 0, len(descriptors))
	for _, d := range descriptors {
		defs = append(defs, llm.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  tool.SchemaJSON(d),
		})
	}
	return defs, nil
}

// Invoke validates args against the tool's schema and dispatches. Unknown
// tools fail with *tool.NotFoundError, schema violations with
// *tool.ArgumentError; implementation failures pass through so callers see
// typed causes (*analysis.SolverError, grounding errors, ...).
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	r.mu.Lock()
	desc, ok := r.descriptors[name]
	impl := r.impls[name]
	r.mu.Unlock()

	if !ok {
		return nil, &tool.NotFoundError{Name: name}
	}

	if err := r.validateArgs(desc, args); err != nil {
		return nil, err
	}

	result, err := impl(ctx, args)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validateArgs walks the argument object against the descriptor schema.
func (r *Registry) validateArgs(desc tool.Descriptor, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(args, &obj); err != nil {
		return &tool.ArgumentError{Path: ".", Reason: "arguments must be a JSON object"}
	}

	if !r.AllowUnknownFields {
		for field := range obj {
			if _, known := desc.Input[field]; !known {
				return &tool.ArgumentError{Path: field, Reason: "unknown field"}
			}
		}
	}

	for field, param := range desc.Input {
		raw, present := obj[field]
		if !present {
			if !param.Optional {
				return &tool.ArgumentError{Path: field, Reason: "required field missing"}
			}
			continue
		}
		if err := validateValue(field, param, raw); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, param tool.Param, raw json.RawMessage) error {
	switch param.Type {
	case tool.TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return &tool.ArgumentError{Path: path, Reason: "expected a string"}
		}
		if len(param.Enum) > 0 && !contains(param.Enum, s) {
			return &tool.ArgumentError{Path: path, Reason: fmt.Sprintf("must be one of %v", param.Enum)}
		}
	case tool.TypeNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return &tool.ArgumentError{Path: path, Reason: "expected a number"}
		}
		if param.Minimum != nil && n < *param.Minimum {
			return &tool.ArgumentError{Path: path, Reason: fmt.Sprintf("must be >= %v", *param.Minimum)}
		}
	case tool.TypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return &tool.ArgumentError{Path: path, Reason: "expected a boolean"}
		}
	case tool.TypeObject:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return &tool.ArgumentError{Path: path, Reason: "expected an object"}
		}
		for field, nested := range param.Nested {
			childRaw, present := obj[field]
			if !present {
				if !nested.Optional {
					return &tool.ArgumentError{Path: path + "." + field, Reason: "required field missing"}
				}
				continue
			}
			if err := validateValue(path+"."+field, nested, childRaw); err != nil {
				return err
			}
		}
		for field := range obj {
			if _, known := param.Nested[field]; !known && len(param.Nested) > 0 {
				return &tool.ArgumentError{Path: path + "." + field, Reason: "unknown field"}
			}
		}
	case tool.TypeArray:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return &tool.ArgumentError{Path: path, Reason: "expected an array"}
		}
		if param.Items != nil {
			for i, item := range items {
				if err := validateValue(fmt.Sprintf("%s[%d]", path, i), *param.Items, item); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
