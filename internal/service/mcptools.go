package service

import (
	"context"
	"encoding/json"

	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/isa-group/harvey/internal/domain/tool"
	"github.com/isa-group/harvey/internal/port/llm"
)

// mcpHost is the slice of the MCP host the tool source needs.
type mcpHost interface {
	ListTools(ctx context.Context) ([]mcpprotocol.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

// MCPToolSource routes tool calls through an external MCP server. The
// in-process registry stays behind it for tools the server does not
// advertise, so built-ins keep working during partial rollouts.
type MCPToolSource struct {
	host     mcpHost
	fallback *Registry
}

// NewMCPToolSource wires the source.
func NewMCPToolSource(host mcpHost, fallback *Registry) *MCPToolSource {
	return &MCPToolSource{host: host, fallback: fallback}
}

// Tools merges the server catalogue with fallback-only tools, keeping the
// server's schema for names both sides know.
func (s *MCPToolSource) Tools(ctx context.Context) ([]llm.ToolDef, error) {
	remote, err := s.host.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(remote))
	defs := make([]llm.ToolDef, 0, len(remote))
	for i := range remote {
		schema, marshalErr := json.Marshal(remote[i].InputSchema)
		if marshalErr != nil {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		defs = append(defs, llm.ToolDef{
			Name:        remote[i].Name,
			Description: remote[i].Description,
			Parameters:  schema,
		})
		seen[remote[i].Name] = true
	}
	if s.fallback != nil {
		local, _ := s.fallback.Tools(ctx)
		for _, def := range local {
			if !seen[def.Name] {
				defs = append(defs, def)
			}
		}
	}
	return defs, nil
}

// Invoke dispatches to the MCP server, falling back to the registry for
// unknown names.
func (s *MCPToolSource) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	if s.fallback != nil && !s.remoteHas(ctx, name) {
		return s.fallback.Invoke(ctx, name, args)
	}

	var argMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argMap); err != nil {
			return nil, &tool.ArgumentError{Path: ".", Reason: "arguments must be a JSON object"}
		}
	}
	return s.host.CallTool(ctx, name, argMap)
}

func (s *MCPToolSource) remoteHas(ctx context.Context, name string) bool {
	remote, err := s.host.ListTools(ctx)
	if err != nil {
		return true // let the call surface the transport error
	}
	for i := range remote {
		if remote[i].Name == name {
			return true
		}
	}
	return false
}
