package ws

import (
	"context"
	"testing"

	"github.com/isa-group/harvey/internal/port/broadcast"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestPublishNoConnections(t *testing.T) {
	hub := NewHub()

	// Publish with no connections should not panic.
	hub.Publish(context.Background(), broadcast.Event{
		Type:    broadcast.EventURLTransform,
		Payload: broadcast.URLTransformPayload{ID: "n1", PricingURL: "https://x.example", State: "done"},
	})
}

func TestPublishMarshalError(t *testing.T) {
	hub := NewHub()

	// A channel cannot be marshaled to JSON — should log, not panic.
	hub.Publish(context.Background(), broadcast.Event{Type: "bad", Payload: make(chan int)})
}

func TestRemoveNonexistent(t *testing.T) {
	hub := NewHub()

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &conn{ws: nil, cancel: cancel, sessionID: "s1"}

	// Removing a connection that was never added should not panic.
	hub.remove(c)
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}
