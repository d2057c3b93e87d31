// Package mcp provides the Model Context Protocol integration: a host that
// embeds an external MCP server as a stdio subprocess, and a first-party
// server exposing the Harvey tool registry to external MCP clients.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/domain/tool"
	"github.com/isa-group/harvey/internal/resilience"
)

// ErrTransportLost is returned for calls that were in flight when the
// subprocess died, and for calls rejected while the transport is down.
var ErrTransportLost = errors.New("mcp transport lost")

// Host supervises a stdio MCP server subprocess. Calls are correlated by
// mcp-go's JSON-RPC layer; the host adds per-call timeouts and reconnection
// with jittered exponential backoff.
type Host struct {
	cfg config.MCP

	mu          sync.Mutex
	client      mcpclient.MCPClient
	retryDelay  time.Duration
	nextAttempt time.Time
	now         func() time.Time // for testing
}

// NewHost creates a host for the configured MCP server command. The
// subprocess is spawned lazily on first use.
func NewHost(cfg config.MCP) *Host {
	return &Host{
		cfg:        cfg,
		retryDelay: cfg.ReconnectMin,
		now:        time.Now,
	}
}

// Enabled reports whether an external MCP server is configured.
func (h *Host) Enabled() bool {
	return h.cfg.Command != ""
}

// ensure returns a connected client, spawning and initializing the
// subprocess if needed. Reconnect attempts honour the backoff window.
func (h *Host) ensure(ctx context.Context) (mcpclient.MCPClient, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client, nil
	}
	if wait := h.nextAttempt.Sub(h.now()); wait > 0 {
		return nil, fmt.Errorf("%w: reconnecting in %s", ErrTransportLost, wait.Round(time.Millisecond))
	}

	client, err := mcpclient.NewStdioMCPClient(h.cfg.Command, envMapToSlice(h.cfg.Env), h.cfg.Args...)
	if err != nil {
		h.scheduleRetry()
		return nil, fmt.Errorf("%w: spawn: %v", ErrTransportLost, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, h.cfg.InitializeTimeout)
	defer cancel()

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	// No optional client capabilities: roots, sampling and elicitation
	// stay undeclared.
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    "harvey",
		Version: "1.0.0",
	}
	result, err := client.Initialize(initCtx, initReq)
	if err != nil {
		_ = client.Close()
		h.scheduleRetry()
		return nil, fmt.Errorf("%w: initialize: %v", ErrTransportLost, err)
	}

	slog.Info("mcp server connected",
		"command", h.cfg.Command,
		"server", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
	)

	h.client = client
	h.retryDelay = h.cfg.ReconnectMin
	h.nextAttempt = time.Time{}
	return client, nil
}

// scheduleRetry must be called with h.mu held.
func (h *Host) scheduleRetry() {
	h.nextAttempt = h.now().Add(resilience.Jitter(h.retryDelay, 0.2))
	h.retryDelay *= 2
	if h.retryDelay > h.cfg.ReconnectMax {
		h.retryDelay = h.cfg.ReconnectMax
	}
}

// dropClient tears down the connection after a transport failure so the
// next call respawns the subprocess.
func (h *Host) dropClient(c mcpclient.MCPClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client == c {
		_ = h.client.Close()
		h.client = nil
		h.scheduleRetry()
	}
}

// ListTools returns the tool catalogue advertised by the server.
func (h *Host) ListTools(ctx context.Context) ([]mcpprotocol.Tool, error) {
	client, err := h.ensure(ctx)
	if err != nil {
		return nil, err
	}
	result, err := client.ListTools(ctx, mcpprotocol.ListToolsRequest{})
	if err != nil {
		h.dropClient(client)
		return nil, fmt.Errorf("%w: tools/list: %v", ErrTransportLost, err)
	}
	return result.Tools, nil
}

// CallTool invokes a remote tool and returns its text payload as JSON.
// Server-side errors come back as *tool.InternalError with the JSON-RPC
// code preserved; transport failures tear the connection down.
func (h *Host) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	client, err := h.ensure(ctx)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, h.cfg.ToolTimeout)
	defer cancel()

	req := mcpprotocol.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := client.CallTool(callCtx, req)
	if err != nil {
		if ctx.Err() != nil || callCtx.Err() != nil {
			return nil, fmt.Errorf("mcp tools/call %s: %w", name, callCtx.Err())
		}
		// A JSON-RPC level error leaves the transport healthy; a dead
		// subprocess does not answer a ping.
		if pingErr := client.Ping(ctx); pingErr != nil {
			h.dropClient(client)
			return nil, fmt.Errorf("%w: tools/call %s: %v", ErrTransportLost, name, err)
		}
		return nil, &tool.InternalError{Tool: name, Code: codeOf(err), Cause: err}
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return nil, &tool.InternalError{Tool: name, Cause: errors.New(text)}
	}
	return json.RawMessage(text), nil
}

// ReadResource fetches a resource body from the server.
func (h *Host) ReadResource(ctx context.Context, uri string) (string, error) {
	client, err := h.ensure(ctx)
	if err != nil {
		return "", err
	}

	readCtx, cancel := context.WithTimeout(ctx, h.cfg.ResourceTimeout)
	defer cancel()

	req := mcpprotocol.ReadResourceRequest{}
	req.Params.URI = uri

	result, err := client.ReadResource(readCtx, req)
	if err != nil {
		if ctx.Err() != nil || readCtx.Err() != nil {
			return "", fmt.Errorf("mcp resources/read %s: %w", uri, readCtx.Err())
		}
		h.dropClient(client)
		return "", fmt.Errorf("%w: resources/read %s: %v", ErrTransportLost, uri, err)
	}

	var parts []string
	for _, content := range result.Contents {
		if text, ok := content.(mcpprotocol.TextResourceContents); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// Close terminates the subprocess if running.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client == nil {
		return nil
	}
	err := h.client.Close()
	h.client = nil
	return err
}

// codeOf extracts a JSON-RPC error code when the error message carries one
// in mcp-go's "code: message" form; 0 otherwise.
func codeOf(err error) int {
	msg := err.Error()
	var code int
	if _, scanErr := fmt.Sscanf(msg, "request failed: %d", &code); scanErr == nil {
		return code
	}
	return 0
}

// flattenContent joins the text parts of a tool result.
func flattenContent(contents []mcpprotocol.Content) string {
	var parts []string
	for _, content := range contents {
		if text, ok := content.(mcpprotocol.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// envMapToSlice converts a map to the KEY=VALUE slice format expected by exec.Cmd.
func envMapToSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
