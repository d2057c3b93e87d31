// Package conversation defines the session transcript types: conversations,
// messages, and the immutable agent-step records produced by the ReAct loop.
package conversation

import (
	"encoding/json"
	"time"

	"github.com/isa-group/harvey/internal/domain/tool"
)

// Conversation is an ordered message thread bound to one session.
type Conversation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single entry in a conversation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"` // "user", "assistant", "system", "tool"
	Content        string          `json:"content"`
	ToolCalls      json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	TokensIn       int             `json:"tokens_in,omitempty"`
	TokensOut      int             `json:"tokens_out,omitempty"`
	Model          string          `json:"model,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AgentStep is the record of one loop iteration. Once appended to a session
// it is never mutated.
type AgentStep struct {
	Index        int                `json:"index"`
	Thought      string             `json:"thought,omitempty"`
	ToolCalls    []tool.Call        `json:"tool_calls,omitempty"`
	Observations []tool.Observation `json:"observations,omitempty"`
	Duration     time.Duration      `json:"duration"`
	TokensIn     int                `json:"tokens_in,omitempty"`
	TokensOut    int                `json:"tokens_out,omitempty"`
}

// SessionStatus is the agent loop state machine.
type SessionStatus string

const (
	StatusIdle            SessionStatus = "idle"
	StatusRunning         SessionStatus = "running"
	StatusAnswering       SessionStatus = "answering"
	StatusWaitingTools    SessionStatus = "waiting_tools"
	StatusAnswered        SessionStatus = "answered"
	StatusFailed          SessionStatus = "failed"
	StatusCancelled       SessionStatus = "cancelled"
	StatusBudgetExhausted SessionStatus = "budget_exhausted"
)

// Terminal reports whether the session will not run further steps.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusAnswered, StatusFailed, StatusCancelled, StatusBudgetExhausted:
		return true
	}
	return false
}

// ChatRequest is the body of POST /chat. At most one of the singular and
// plural url/yaml fields is expected; both are merged and de-duplicated
// preserving order.
type ChatRequest struct {
	Question     string   `json:"question"`
	PricingURL   string   `json:"pricing_url,omitempty"`
	PricingURLs  []string `json:"pricing_urls,omitempty"`
	PricingYAML  string   `json:"pricing_yaml,omitempty"`
	PricingYAMLs []string `json:"pricing_yamls,omitempty"`
}

// ChatResponse is the reply of POST /chat.
type ChatResponse struct {
	Answer string          `json:"answer"`
	Plan   json.RawMessage `json:"plan,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}
