// Package bus implements the in-process notification bus: bounded
// per-subscriber queues with FIFO delivery, session scoping, and lag
// shedding for slow consumers.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/isa-group/harvey/internal/port/broadcast"
)

// Subscriber receives events for one session over a bounded channel. A
// subscriber that overflows its buffer on consecutive publishes receives a
// lagged event and is dropped; events after the lagged marker may be missing.
type Subscriber struct {
	sessionID string
	ch        chan broadcast.Event
	overflows int
	dropped   bool
}

// Events returns the receive side of the subscriber queue. The channel is
// closed when the subscriber is dropped or unsubscribed.
func (s *Subscriber) Events() <-chan broadcast.Event {
	return s.ch
}

// Bus is a single-process publish/subscribe hub.
type Bus struct {
	mu          sync.Mutex
	subs        map[*Subscriber]struct{}
	queueSize   int
	maxOverflow int
}

// New creates a Bus with the given per-subscriber queue capacity and the
// number of consecutive overflows tolerated before a subscriber is dropped.
func New(queueSize, maxOverflow int) *Bus {
	if queueSize <= 0 {
		queueSize = 64
	}
	if maxOverflow <= 0 {
		maxOverflow = 2
	}
	return &Bus{
		subs:        make(map[*Subscriber]struct{}),
		queueSize:   queueSize,
		maxOverflow: maxOverflow,
	}
}

// Subscribe registers a subscriber scoped to the given session id. An empty
// session id receives every event.
func (b *Bus) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		sessionID: sessionID,
		ch:        make(chan broadcast.Event, b.queueSize),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub)
}

// Publish delivers ev to every matching subscriber without blocking.
// Delivery order is FIFO per publisher: the bus lock serialises enqueues.
func (b *Bus) Publish(_ context.Context, ev broadcast.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		if ev.SessionID != "" && sub.sessionID != "" && sub.sessionID != ev.SessionID {
			continue
		}
		select {
		case sub.ch <- ev:
			sub.overflows = 0
		default:
			sub.overflows++
			if sub.overflows >= b.maxOverflow {
				b.shed(sub)
			}
		}
	}
}

// shed marks the subscriber lagged and removes it. One queued event is
// discarded if necessary so the lagged marker is always delivered.
// Must be called with b.mu held.
func (b *Bus) shed(sub *Subscriber) {
	lagged := broadcast.Event{Type: broadcast.EventLagged, SessionID: sub.sessionID}
	select {
	case sub.ch <- lagged:
	default:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- lagged:
		default:
		}
	}
	slog.Warn("bus subscriber lagged, dropping", "session_id", sub.sessionID)
	b.remove(sub)
}

// remove must be called with b.mu held.
func (b *Bus) remove(sub *Subscriber) {
	if _, ok := b.subs[sub]; !ok {
		return
	}
	sub.dropped = true
	delete(b.subs, sub)
	close(sub.ch)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Fanout composes several publishers into one. Used to mirror events onto
// secondary transports (WebSocket hub, NATS) alongside the in-process bus.
type Fanout []broadcast.Publisher

// Publish delivers ev to every composed publisher.
func (f Fanout) Publish(ctx context.Context, ev broadcast.Event) {
	for _, p := range f {
		p.Publish(ctx, ev)
	}
}
