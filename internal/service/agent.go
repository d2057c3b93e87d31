package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/isa-group/harvey/internal/adapter/httperr"
	"github.com/isa-group/harvey/internal/adapter/otel"
	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/domain"
	"github.com/isa-group/harvey/internal/domain/conversation"
	"github.com/isa-group/harvey/internal/domain/pricing"
	"github.com/isa-group/harvey/internal/domain/tool"
	"github.com/isa-group/harvey/internal/port/llm"
	"github.com/isa-group/harvey/internal/resilience"
)

// ToolSource advertises and dispatches tools. The registry implements it
// in-process; MCPToolSource implements it for the external-server deployment.
type ToolSource interface {
	Tools(ctx context.Context) ([]llm.ToolDef, error)
	Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// Agent runs the ReAct loop: the LLM alternates between requesting tool
// calls and emitting a final answer, bounded by the step budget and the
// per-step wall clock. Within a session the loop is sequential; tool calls
// inside one step fan out concurrently with observations appended in
// call-declaration order.
type Agent struct {
	llm     llm.Client
	tools   ToolSource
	metrics *otel.Metrics

	model       string
	llmRetries  int
	stepBudget  int
	hardCap     int
	stepTimeout time.Duration
	toolTimeout time.Duration

	// newCallID is a seedable hook so tests get deterministic call ids.
	newCallID func() string
	// retryInitial is the first LLM retry delay; tests shrink it.
	retryInitial time.Duration
}

// NewAgent wires the loop.
func NewAgent(client llm.Client, tools ToolSource, agentCfg config.Agent, llmCfg config.LLM) *Agent {
	budget := agentCfg.StepBudget
	if budget > agentCfg.HardCap {
		budget = agentCfg.HardCap
	}
	return &Agent{
		llm:          client,
		tools:        tools,
		model:        llmCfg.Model,
		llmRetries:   llmCfg.MaxRetries,
		stepBudget:   budget,
		hardCap:      agentCfg.HardCap,
		stepTimeout:  agentCfg.StepTimeout,
		toolTimeout:  agentCfg.ToolTimeout,
		newCallID:    uuid.NewString,
		retryInitial: 500 * time.Millisecond,
	}
}

// SetMetrics attaches metric instruments.
func (a *Agent) SetMetrics(m *otel.Metrics) {
	a.metrics = m
}

// SetCallIDSource replaces the call id generator (test hook).
func (a *Agent) SetCallIDSource(fn func() string) {
	a.newCallID = fn
}

// HandleQuestion runs one turn for the session and returns the answer with
// plan and result metadata. Tool errors stay local to their step; LLM
// transport errors fail the session after retries; cancellation preserves
// the partial transcript.
func (a *Agent) HandleQuestion(ctx context.Context, sess *Session, question string) (*conversation.ChatResponse, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess.BindCancel(cancel)

	sess.SetStatus(conversation.StatusRunning)
	if a.metrics != nil {
		a.metrics.SessionsStarted.Add(ctx, 1)
	}

	sess.AppendMessage(conversation.Message{Role: "user", Content: question})
	messages := a.buildMessages(sess)
	toolDefs, err := a.tools.Tools(ctx)
	if err != nil {
		return nil, a.finish(ctx, sess, conversation.StatusFailed, fmt.Errorf("%w: tool catalogue: %v", domain.ErrUpstream, err))
	}

	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return nil, a.finish(ctx, sess, conversation.StatusCancelled, fmt.Errorf("%w: turn cancelled", domain.ErrCancelled))
		}

		if step >= a.stepBudget {
			return a.forceFinal(ctx, sess, messages)
		}

		stepStart := time.Now()
		stepCtx, cancelStep := context.WithTimeout(ctx, a.stepTimeout)

		sess.SetStatus(conversation.StatusAnswering)
		completion, err := a.complete(stepCtx, llm.Request{
			Model:    a.model,
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			cancelStep()
			if ctx.Err() != nil {
				return nil, a.finish(ctx, sess, conversation.StatusCancelled, fmt.Errorf("%w: turn cancelled", domain.ErrCancelled))
			}
			return nil, a.finish(ctx, sess, conversation.StatusFailed, fmt.Errorf("%w: llm: %v", domain.ErrUpstream, err))
		}

		if len(completion.ToolCalls) == 0 {
			cancelStep()
			sess.AppendStep(conversation.AgentStep{
				Thought:   completion.Content,
				Duration:  time.Since(stepStart),
				TokensIn:  completion.TokensIn,
				TokensOut: completion.TokensOut,
			})
			sess.AppendMessage(conversation.Message{Role: "assistant", Content: completion.Content})
			return a.respond(ctx, sess, completion.Content, conversation.StatusAnswered)
		}

		sess.SetStatus(conversation.StatusWaitingTools)
		calls := a.toToolCalls(completion.ToolCalls)
		observations := a.executeCalls(stepCtx, calls)
		cancelStep()

		if ctx.Err() != nil {
			// Record the partial step before reporting cancellation.
			sess.AppendStep(conversation.AgentStep{
				Thought:      completion.Content,
				ToolCalls:    calls,
				Observations: observations,
				Duration:     time.Since(stepStart),
			})
			return nil, a.finish(ctx, sess, conversation.StatusCancelled, fmt.Errorf("%w: turn cancelled", domain.ErrCancelled))
		}

		sess.AppendStep(conversation.AgentStep{
			Thought:      completion.Content,
			ToolCalls:    calls,
			Observations: observations,
			Duration:     time.Since(stepStart),
			TokensIn:     completion.TokensIn,
			TokensOut:    completion.TokensOut,
		})

		messages = append(messages, assistantToolMessage(completion))
		for _, obs := range observations {
			messages = append(messages, observationMessage(obs))
		}
		sess.SetStatus(conversation.StatusRunning)
	}
}

// complete calls the LLM, retrying transport faults with backoff.
func (a *Agent) complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	policy := resilience.RetryPolicy{
		MaxAttempts: a.llmRetries + 1,
		Initial:     a.retryInitial,
		Cap:         5 * time.Second,
	}
	var completion *llm.Completion
	err := policy.Retry(ctx, httperr.Retryable, func() error {
		c, err := a.llm.Complete(ctx, req)
		if err != nil {
			return err
		}
		completion = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completion, nil
}

// toToolCalls normalises LLM tool calls, assigning ids when absent.
func (a *Agent) toToolCalls(calls []llm.ToolCall) []tool.Call {
	out := make([]tool.Call, 0, len(calls))
	for _, c := range calls {
		id := c.ID
		if id == "" {
			id = a.newCallID()
		}
		out = append(out, tool.Call{ID: id, Name: c.Name, Args: c.Arguments})
	}
	return out
}

// executeCalls fans the step's tool calls out concurrently and returns
// observations in call-declaration order regardless of completion order.
// Tool failures become error observations, never loop failures.
func (a *Agent) executeCalls(ctx context.Context, calls []tool.Call) []tool.Observation {
	observations := make([]tool.Observation, len(calls))

	g, groupCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			observations[i] = a.executeCall(groupCtx, call)
			return nil
		})
	}
	_ = g.Wait()
	return observations
}

func (a *Agent) executeCall(ctx context.Context, call tool.Call) tool.Observation {
	callCtx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()

	slog.Info("tool call dispatched",
		"tool", call.Name,
		"call_id", call.ID,
		"args", string(tool.CanonicalJSON(call.Args)),
	)
	if a.metrics != nil {
		a.metrics.ToolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", call.Name)))
	}

	result, err := a.tools.Invoke(callCtx, call.Name, call.Args)
	if err != nil {
		slog.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
		return tool.Observation{CallID: call.ID, Name: call.Name, Error: err.Error()}
	}
	return tool.Observation{CallID: call.ID, Name: call.Name, Result: result}
}

// forceFinal injects the budget observation and requests a final answer
// with no tools on offer.
func (a *Agent) forceFinal(ctx context.Context, sess *Session, messages []llm.Message) (*conversation.ChatResponse, error) {
	messages = append(messages, llm.Message{Role: "user", Content: budgetExhaustedObservation})

	completion, err := a.complete(ctx, llm.Request{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, a.finish(ctx, sess, conversation.StatusCancelled, fmt.Errorf("%w: turn cancelled", domain.ErrCancelled))
		}
		return nil, a.finish(ctx, sess, conversation.StatusFailed, fmt.Errorf("%w: llm: %v", domain.ErrUpstream, err))
	}

	sess.AppendStep(conversation.AgentStep{Thought: completion.Content})
	sess.AppendMessage(conversation.Message{Role: "assistant", Content: completion.Content})
	return a.respond(ctx, sess, completion.Content, conversation.StatusBudgetExhausted)
}

// finish moves the session to a terminal failure state.
func (a *Agent) finish(ctx context.Context, sess *Session, status conversation.SessionStatus, err error) error {
	sess.SetStatus(status)
	if a.metrics != nil && status == conversation.StatusFailed {
		a.metrics.SessionsFailed.Add(context.WithoutCancel(ctx), 1)
	}
	slog.Info("session finished", "session_id", sess.ID, "status", status)
	return err
}

// respond assembles the answer with plan and result metadata.
func (a *Agent) respond(ctx context.Context, sess *Session, answer string, status conversation.SessionStatus) (*conversation.ChatResponse, error) {
	sess.SetStatus(status)
	if a.metrics != nil {
		a.metrics.SessionsCompleted.Add(context.WithoutCancel(ctx), 1)
	}

	plan, result := planAndResult(sess.Steps())
	slog.Info("session answered", "session_id", sess.ID, "status", status, "steps", len(sess.Steps()))
	return &conversation.ChatResponse{Answer: answer, Plan: plan, Result: result}, nil
}

// planAndResult derives the response metadata from the step history: the
// executed actions with their grounded request echoes, and the latest
// result payload per tool.
func planAndResult(steps []conversation.AgentStep) (json.RawMessage, json.RawMessage) {
	type plannedAction struct {
		Name    string          `json:"name"`
		Request json.RawMessage `json:"request,omitempty"`
	}
	var actions []plannedAction
	results := map[string]json.RawMessage{}

	for _, step := range steps {
		for _, obs := range step.Observations {
			action := plannedAction{Name: obs.Name}
			if len(obs.Result) > 0 {
				var envelope struct {
					Request json.RawMessage `json:"request"`
				}
				if err := json.Unmarshal(obs.Result, &envelope); err == nil {
					action.Request = envelope.Request
				}
				results[obs.Name] = obs.Result
			}
			actions = append(actions, action)
		}
	}

	if len(actions) == 0 {
		return nil, nil
	}
	plan, err := json.Marshal(map[string]any{"actions": actions})
	if err != nil {
		plan = nil
	}
	result, err := json.Marshal(results)
	if err != nil {
		result = nil
	}
	return plan, result
}

// buildMessages renders the system prompt, the pricing context, and the
// prior transcript.
func (a *Agent) buildMessages(sess *Session) []llm.Message {
	var sb strings.Builder
	sb.WriteString(systemPrompt)

	items := sess.Items()
	if len(items) > 0 {
		sb.WriteString("\n\nPricing context:\n")
		uploaded := 0
		for _, item := range items {
			switch item.Kind {
			case pricing.KindYAML:
				alias := pricing.UploadedAlias(uploaded)
				uploaded++
				fmt.Fprintf(&sb, "\n--- %s (%s) ---\n%s\n", alias, item.Origin, item.Value)
			case pricing.KindURL:
				switch item.Transform {
				case pricing.TransformDone:
					if yamlText, ok := sess.Artifact(item.ArtifactRef); ok {
						fmt.Fprintf(&sb, "\n--- %s (transformed) ---\n%s\n", item.Value, yamlText)
					}
				case pricing.TransformFailed:
					fmt.Fprintf(&sb, "\n--- %s --- transformation failed: %s\n", item.Value, item.TransformError)
				default:
					fmt.Fprintf(&sb, "\n--- %s --- transformation %s; use the iPricing tool if you need its YAML\n", item.Value, item.Transform)
				}
			}
		}
	}

	messages := []llm.Message{{Role: "system", Content: sb.String()}}
	for _, msg := range sess.Messages() {
		m := llm.Message{Role: msg.Role, Content: msg.Content, ToolCallID: msg.ToolCallID, Name: msg.ToolName}
		if len(msg.ToolCalls) > 0 {
			var calls []llm.ToolCall
			if err := json.Unmarshal(msg.ToolCalls, &calls); err == nil {
				m.ToolCalls = calls
			}
		}
		messages = append(messages, m)
	}
	return messages
}

func assistantToolMessage(completion *llm.Completion) llm.Message {
	return llm.Message{
		Role:      "assistant",
		Content:   completion.Content,
		ToolCalls: completion.ToolCalls,
	}
}

func observationMessage(obs tool.Observation) llm.Message {
	content := string(obs.Result)
	if obs.Error != "" {
		payload, err := json.Marshal(map[string]string{"error": obs.Error})
		if err == nil {
			content = string(payload)
		} else {
			content = obs.Error
		}
	}
	return llm.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: obs.CallID,
		Name:       obs.Name,
	}
}
