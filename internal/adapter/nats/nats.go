// Package nats fans url_transform events out to a JetStream subject so
// sibling Harvey replicas observe cache completions (BUS_BACKEND=nats).
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/isa-group/harvey/internal/port/broadcast"
)

const (
	streamName    = "HARVEY"
	subjectPrefix = "pricing.events."
)

// Publisher mirrors bus events onto NATS JetStream.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the stream exists.
func Connect(ctx context.Context, url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ">"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Publisher{nc: nc, js: js}, nil
}

// Publish mirrors the event. Publish failures are logged, never propagated:
// the in-process bus remains the source of truth.
func (p *Publisher) Publish(ctx context.Context, ev broadcast.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("nats marshal event failed", "type", ev.Type, "error", err)
		return
	}
	if _, err := p.js.Publish(ctx, subjectPrefix+ev.Type, data); err != nil {
		slog.Error("nats publish failed", "type", ev.Type, "error", err)
	}
}

// Close drains the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
