package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/isa-group/harvey/internal/domain/tool"
)

// SpecResourceURI identifies the Pricing2Yaml specification excerpt.
const SpecResourceURI = "resource://pricing/specification"

//go:embed docs/pricing2yaml.md
var pricing2yamlSpec string

// Registry is the slice of the tool registry the MCP server needs.
type Registry interface {
	List() []tool.Descriptor
	Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// Server exposes the Harvey tool registry and the pricing specification
// resource over MCP.
type Server struct {
	mcpServer *mcpserver.MCPServer
	registry  Registry
}

// NewServer creates the first-party MCP server over the given registry.
func NewServer(registry Registry) *Server {
	s := &Server{
		mcpServer: mcpserver.NewMCPServer(
			"harvey-pricing",
			"1.0.0",
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
		registry: registry,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

// registerTools mirrors every registry descriptor as an MCP tool.
func (s *Server) registerTools() {
	for _, desc := range s.registry.List() {
		t := mcplib.NewToolWithRawSchema(desc.Name, desc.Description, tool.SchemaJSON(desc))
		s.mcpServer.AddTools(mcpserver.ServerTool{
			Tool:    t,
			Handler: s.toolHandler(desc.Name),
		})
	}
}

func (s *Server) toolHandler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("failed to marshal arguments", err), nil
		}

		slog.Info("mcp tool invoked", "tool", name)

		result, err := s.registry.Invoke(ctx, name, args)
		if err != nil {
			var argErr *tool.ArgumentError
			if errors.As(err, &argErr) {
				return mcplib.NewToolResultError(argErr.Error()), nil
			}
			return mcplib.NewToolResultErrorFromErr("tool "+name+" failed", err), nil
		}

		slog.Info("mcp tool completed", "tool", name, "result_bytes", len(result))
		return mcplib.NewToolResultText(string(result)), nil
	}
}

// registerResources registers the Pricing2Yaml specification excerpt.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			SpecResourceURI,
			"Pricing2Yaml Specification",
			mcplib.WithResourceDescription("Excerpt of the Pricing2Yaml grammar for schema and validation questions"),
			mcplib.WithMIMEType("text/markdown"),
		),
		s.handleSpecResource,
	)
}

func (s *Server) handleSpecResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	slog.Info("mcp resource request", "resource", SpecResourceURI)
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     pricing2yamlSpec,
		},
	}, nil
}

// SpecExcerpt returns the embedded Pricing2Yaml excerpt for in-process use.
func SpecExcerpt() string {
	return pricing2yamlSpec
}
