package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/isa-group/harvey/internal/domain"
	"github.com/isa-group/harvey/internal/domain/conversation"
	"github.com/isa-group/harvey/internal/domain/pricing"
)

// ChatService orchestrates one chat turn: it builds the session's pricing
// working set, kicks off URL transformations, and dispatches the question
// to the agent loop. URL transformations that finish after the turn inject
// their YAML into the session for subsequent turns.
type ChatService struct {
	sessions *SessionManager
	cache    *PricingCache
	agent    *Agent
}

// NewChatService wires the facade logic.
func NewChatService(sessions *SessionManager, cache *PricingCache, agent *Agent) *ChatService {
	return &ChatService{
		sessions: sessions,
		cache:    cache,
		agent:    agent,
	}
}

// Handle runs one chat turn and returns the session id with the answer.
// A known sessionID continues that conversation, so URL transformations
// that completed after an earlier turn are already in context; otherwise a
// fresh session is created.
func (s *ChatService) Handle(ctx context.Context, sessionID string, req conversation.ChatRequest) (string, *conversation.ChatResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", nil, fmt.Errorf("%w: question is required", domain.ErrValidation)
	}

	urls := dedupe(collectURLs(req, question))
	yamls := dedupe(collectYAMLs(req))

	var sess *Session
	if sessionID != "" {
		if existing, err := s.sessions.Get(sessionID); err == nil {
			sess = existing
		}
	}
	if sess == nil {
		sess = s.sessions.Create()
	}

	known := make(map[string]bool)
	for _, item := range sess.Items() {
		known[item.Value] = true
	}

	for _, yamlText := range yamls {
		if known[yamlText] {
			continue
		}
		item := pricing.ContextItem{
			ID:       uuid.NewString(),
			Kind:     pricing.KindYAML,
			Origin:   pricing.OriginUser,
			Value:    yamlText,
			Uploaded: true,
		}
		if err := sess.AddItem(item); err != nil {
			return "", nil, err
		}
		known[yamlText] = true
	}

	providedSet := make(map[string]bool)
	if req.PricingURL != "" {
		providedSet[req.PricingURL] = true
	}
	for _, u := range req.PricingURLs {
		providedSet[u] = true
	}

	for _, rawURL := range urls {
		key, err := pricing.CanonicalURL(rawURL)
		if err != nil {
			return "", nil, err
		}
		if known[key] {
			continue
		}

		origin := pricing.OriginDetected
		if providedSet[rawURL] {
			origin = pricing.OriginUser
		}
		item := pricing.ContextItem{
			ID:        uuid.NewString(),
			Kind:      pricing.KindURL,
			Origin:    origin,
			Value:     key,
			Transform: pricing.TransformNotStarted,
		}
		if err := sess.AddItem(item); err != nil {
			return "", nil, err
		}
		known[key] = true

		// Serve whatever is already cached; resolve the rest off-turn.
		if yamlText, ok := s.cache.Peek(key); ok {
			sess.SetArtifact(key, yamlText)
			sess.MarkItemTransform(item.ID, pricing.TransformDone, key, "")
			continue
		}
		sess.MarkItemTransform(item.ID, pricing.TransformPending, "", "")
		go s.resolveLater(item.ID, key, sess)
	}

	resp, err := s.agent.HandleQuestion(ctx, sess, question)
	if err != nil {
		return sess.ID, nil, err
	}
	return sess.ID, resp, nil
}

// resolveLater runs a URL transformation outside the request turn and
// injects the outcome into the session context.
func (s *ChatService) resolveLater(itemID, key string, sess *Session) {
	yamlText, err := s.cache.ResolveCanonical(context.Background(), key)
	if err != nil {
		slog.Warn("context transformation failed", "session_id", sess.ID, "url", key, "error", err)
		sess.MarkItemTransform(itemID, pricing.TransformFailed, "", err.Error())
		return
	}
	sess.SetArtifact(key, yamlText)
	sess.MarkItemTransform(itemID, pricing.TransformDone, key, "")
	slog.Info("context transformation completed", "session_id", sess.ID, "url", key)
}

// Cancel aborts the running turn of a session.
func (s *ChatService) Cancel(sessionID string) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	sess.Cancel()
	return nil
}

// collectURLs merges the request url fields with URLs detected inside the
// question text.
func collectURLs(req conversation.ChatRequest, question string) []string {
	var urls []string
	if req.PricingURL != "" {
		urls = append(urls, req.PricingURL)
	}
	urls = append(urls, req.PricingURLs...)
	urls = append(urls, pricing.DetectURLs(question)...)
	return urls
}

func collectYAMLs(req conversation.ChatRequest) []string {
	var yamls []string
	if trimmed := strings.TrimSpace(req.PricingYAML); trimmed != "" {
		yamls = append(yamls, trimmed)
	}
	for _, y := range req.PricingYAMLs {
		if trimmed := strings.TrimSpace(y); trimmed != "" {
			yamls = append(yamls, trimmed)
		}
	}
	return yamls
}

// dedupe removes duplicates while preserving first-seen order.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
