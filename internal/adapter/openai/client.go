// Package openai provides an OpenAI-compatible chat-completions client with
// tool calling. Any provider exposing the /chat/completions surface works;
// multiple API keys rotate across requests.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/isa-group/harvey/internal/adapter/httperr"
	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/port/llm"
	"github.com/isa-group/harvey/internal/resilience"
)

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	baseURL    string
	apiKeys    []string
	keyCursor  atomic.Uint64
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a chat completions client from config.
func NewClient(cfg config.LLM) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKeys: cfg.APIKeys,
		httpClient: &http.Client{
			Timeout: cfg.TurnTimeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// nextKey rotates through the configured API keys.
func (c *Client) nextKey() string {
	if len(c.apiKeys) == 0 {
		return ""
	}
	n := c.keyCursor.Add(1)
	return c.apiKeys[int(n-1)%len(c.apiKeys)]
}

// wire types for the /chat/completions surface.

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string          `json:"type"`
	Function wireFunctionDef `json:"function"`
}

type wireFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Complete runs one chat completion turn.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	payload := map[string]any{
		"model":    req.Model,
		"messages": toWireMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		tools := make([]wireTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, wireTool{
				Type: "function",
				Function: wireFunctionDef{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		payload["tools"] = tools
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	if req.JSONMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	var completion *llm.Completion
	call := func() error {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if reqErr != nil {
			return fmt.Errorf("create request: %w", reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if key := c.nextKey(); key != "" {
			httpReq.Header.Set("Authorization", "Bearer "+key)
		}

		resp, doErr := c.httpClient.Do(httpReq)
		if doErr != nil {
			return httperr.Transport("llm completion", doErr)
		}
		defer func() { _ = resp.Body.Close() }()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return httperr.Transport("llm completion", readErr)
		}
		if resp.StatusCode >= 400 {
			return httperr.Status("llm completion", resp.StatusCode, string(data))
		}

		parsed, parseErr := parseCompletion(data)
		if parseErr != nil {
			return parseErr
		}
		completion = parsed
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	return completion, nil
}

func toWireMessages(messages []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunction{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func parseCompletion(data []byte) (*llm.Completion, error) {
	var resp struct {
		Choices []struct {
			Message wireMessage `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, httperr.Decode("llm completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, httperr.Decode("llm completion", fmt.Errorf("response has no choices"))
	}

	msg := resp.Choices[0].Message
	completion := &llm.Completion{
		Content:   msg.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}
	for _, tc := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return completion, nil
}
