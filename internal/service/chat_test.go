package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/domain"
	"github.com/isa-group/harvey/internal/domain/conversation"
	"github.com/isa-group/harvey/internal/domain/pricing"
	"github.com/isa-group/harvey/internal/port/llm"
)

func newChatFixture(ext *spyExtractor) (*ChatService, *SessionManager) {
	sessions := NewSessionManager(config.Session{IdleTTL: time.Hour, GCInterval: time.Hour})
	cache := NewPricingCache(testCacheConfig(), missStore{}, ext, nil)
	client := &scriptedLLM{script: []func(llm.Request) (*llm.Completion, error){
		answer("answered"),
	}}
	agent := newTestAgent(client, &fakeTools{})
	return NewChatService(sessions, cache, agent), sessions
}

func TestChatRejectsEmptyQuestion(t *testing.T) {
	chat, _ := newChatFixture(&spyExtractor{yaml: "saasName: X"})

	_, _, err := chat.Handle(context.Background(), "", conversation.ChatRequest{Question: "   "})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChatDeduplicatesContext(t *testing.T) {
	chat, sessions := newChatFixture(&spyExtractor{yaml: "saasName: X"})

	sessID, _, err := chat.Handle(context.Background(), "", conversation.ChatRequest{
		Question:     "compare them",
		PricingURL:   "https://Example.com/pricing",
		PricingURLs:  []string{"https://example.com/pricing"},
		PricingYAML:  "saasName: A",
		PricingYAMLs: []string{"saasName: A", "saasName: B"},
	})
	if err != nil {
		t.Fatal(err)
	}

	sess, err := sessions.Get(sessID)
	if err != nil {
		t.Fatal(err)
	}

	var urlItems, yamlItems int
	for _, item := range sess.Items() {
		switch item.Kind {
		case pricing.KindURL:
			urlItems++
		case pricing.KindYAML:
			yamlItems++
		}
	}
	if urlItems != 1 {
		t.Errorf("expected 1 url item after canonical dedup, got %d", urlItems)
	}
	if yamlItems != 2 {
		t.Errorf("expected 2 distinct yaml items, got %d", yamlItems)
	}
}

func TestChatDetectsURLsInQuestion(t *testing.T) {
	chat, sessions := newChatFixture(&spyExtractor{yaml: "saasName: X"})

	sessID, _, err := chat.Handle(context.Background(), "", conversation.ChatRequest{
		Question: "what does https://example.com/pricing cost?",
	})
	if err != nil {
		t.Fatal(err)
	}

	sess, _ := sessions.Get(sessID)
	items := sess.Items()
	if len(items) != 1 {
		t.Fatalf("expected the detected url in context, got %d items", len(items))
	}
	if items[0].Origin != pricing.OriginDetected {
		t.Errorf("expected detected origin, got %s", items[0].Origin)
	}
}

func TestChatSecondTurnSeesCompletedTransform(t *testing.T) {
	ext := &spyExtractor{yaml: "saasName: Later"}
	chat, sessions := newChatFixture(ext)
	ctx := context.Background()

	sessID, _, err := chat.Handle(ctx, "", conversation.ChatRequest{
		Question:   "first turn",
		PricingURL: "https://example.com/pricing",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Wait for the off-turn transformation to land in the session.
	sess, _ := sessions.Get(sessID)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if items := sess.Items(); len(items) == 1 && items[0].Transform == pricing.TransformDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("transformation outcome never reached the session")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The second turn reuses the session and does not re-add the item.
	secondID, _, err := chat.Handle(ctx, sessID, conversation.ChatRequest{
		Question:   "second turn",
		PricingURL: "https://example.com/pricing",
	})
	if err != nil {
		t.Fatal(err)
	}
	if secondID != sessID {
		t.Errorf("expected session reuse, got %s vs %s", secondID, sessID)
	}
	if len(sess.Items()) != 1 {
		t.Errorf("expected a single context item across turns, got %d", len(sess.Items()))
	}
	if yamlText, ok := sess.Artifact("https://example.com/pricing"); !ok || yamlText != "saasName: Later" {
		t.Errorf("expected the transformed yaml in the artifact arena, got %q", yamlText)
	}
}
