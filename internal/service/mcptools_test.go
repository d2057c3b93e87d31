package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/isa-group/harvey/internal/domain/tool"
)

// fakeHost scripts the MCP host surface.
type fakeHost struct {
	tools    []mcpprotocol.Tool
	listErr  error
	callArgs map[string]any
	result   json.RawMessage
	callErr  error
}

func (f *fakeHost) ListTools(context.Context) ([]mcpprotocol.Tool, error) {
	return f.tools, f.listErr
}

func (f *fakeHost) CallTool(_ context.Context, _ string, args map[string]any) (json.RawMessage, error) {
	f.callArgs = args
	return f.result, f.callErr
}

func TestMCPToolSourceMergesCatalogues(t *testing.T) {
	host := &fakeHost{tools: []mcpprotocol.Tool{
		{Name: "summary", Description: "remote summary"},
	}}

	reg := NewRegistry()
	reg.Register(tool.Descriptor{Name: "summary", Input: map[string]tool.Param{}}, echoTool)
	reg.Register(tool.Descriptor{Name: "localOnly", Input: map[string]tool.Param{}}, echoTool)
	reg.Seal()

	src := NewMCPToolSource(host, reg)
	defs, err := src.Tools(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	names := map[string]string{}
	for _, d := range defs {
		names[d.Name] = d.Description
	}
	if len(defs) != 2 {
		t.Fatalf("expected merged catalogue of 2, got %d (%v)", len(defs), names)
	}
	if names["summary"] != "remote summary" {
		t.Error("remote schema should win for shared names")
	}
	if _, ok := names["localOnly"]; !ok {
		t.Error("fallback-only tools should be advertised")
	}
}

func TestMCPToolSourceDispatchesRemote(t *testing.T) {
	host := &fakeHost{
		tools:  []mcpprotocol.Tool{{Name: "optimal"}},
		result: json.RawMessage(`{"ok":true}`),
	}
	src := NewMCPToolSource(host, nil)

	result, err := src.Invoke(context.Background(), "optimal", json.RawMessage(`{"objective":"minimize"}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(result) != `{"ok":true}` {
		t.Errorf("unexpected result %s", result)
	}
	if host.callArgs["objective"] != "minimize" {
		t.Errorf("arguments not forwarded: %v", host.callArgs)
	}
}

func TestMCPToolSourceFallsBackForLocalTools(t *testing.T) {
	host := &fakeHost{tools: []mcpprotocol.Tool{{Name: "optimal"}}}

	reg := NewRegistry()
	reg.Register(tool.Descriptor{Name: "localOnly", Input: map[string]tool.Param{}}, echoTool)
	reg.Seal()

	src := NewMCPToolSource(host, reg)
	result, err := src.Invoke(context.Background(), "localOnly", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(result) != `{}` {
		t.Errorf("expected the local echo, got %s", result)
	}
}

func TestMCPToolSourceRejectsNonObjectArgs(t *testing.T) {
	host := &fakeHost{tools: []mcpprotocol.Tool{{Name: "optimal"}}}
	src := NewMCPToolSource(host, nil)

	_, err := src.Invoke(context.Background(), "optimal", json.RawMessage(`[1,2]`))
	var argErr *tool.ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}
