package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/isa-group/harvey/internal/domain/tool"
)

// stubRegistry is a minimal Registry for server tests.
type stubRegistry struct {
	descriptors []tool.Descriptor
	invoke      func(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

func (s *stubRegistry) List() []tool.Descriptor { return s.descriptors }

func (s *stubRegistry) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	return s.invoke(ctx, name, args)
}

func textOf(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestToolHandlerReturnsJSONResult(t *testing.T) {
	reg := &stubRegistry{
		descriptors: []tool.Descriptor{{Name: "summary", Input: map[string]tool.Param{}}},
		invoke: func(_ context.Context, name string, _ json.RawMessage) (json.RawMessage, error) {
			if name != "summary" {
				t.Errorf("unexpected tool %s", name)
			}
			return json.RawMessage(`{"numberOfFeatures":3}`), nil
		},
	}
	srv := NewServer(reg)

	req := mcplib.CallToolRequest{}
	req.Params.Name = "summary"
	req.Params.Arguments = map[string]any{"pricing_yaml": "saasName: X"}

	result, err := srv.toolHandler("summary")(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", textOf(t, result))
	}
	if !json.Valid([]byte(textOf(t, result))) {
		t.Errorf("result is not JSON: %s", textOf(t, result))
	}
}

func TestToolHandlerSurfacesArgumentErrors(t *testing.T) {
	reg := &stubRegistry{
		descriptors: []tool.Descriptor{{Name: "optimal", Input: map[string]tool.Param{}}},
		invoke: func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
			return nil, &tool.ArgumentError{Path: "objective", Reason: "must be \"minimize\" or \"maximize\""}
		},
	}
	srv := NewServer(reg)

	req := mcplib.CallToolRequest{}
	req.Params.Name = "optimal"

	result, err := srv.toolHandler("optimal")(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatal("expected an error result")
	}
	if !strings.Contains(textOf(t, result), "objective") {
		t.Errorf("error should name the offending argument, got %s", textOf(t, result))
	}
}

func TestSpecResource(t *testing.T) {
	reg := &stubRegistry{descriptors: nil, invoke: nil}
	srv := NewServer(reg)

	req := mcplib.ReadResourceRequest{}
	req.Params.URI = SpecResourceURI

	contents, err := srv.handleSpecResource(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected one content item, got %d", len(contents))
	}
	text, ok := contents[0].(mcplib.TextResourceContents)
	if !ok {
		t.Fatalf("expected text contents, got %T", contents[0])
	}
	if !strings.Contains(text.Text, "Pricing2Yaml") {
		t.Error("spec excerpt should describe Pricing2Yaml")
	}
	if SpecExcerpt() == "" {
		t.Error("embedded excerpt must not be empty")
	}
}
