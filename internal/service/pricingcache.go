package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/isa-group/harvey/internal/adapter/otel"
	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/domain/pricing"
	"github.com/isa-group/harvey/internal/port/broadcast"
	"github.com/isa-group/harvey/internal/port/cache"
	"github.com/isa-group/harvey/internal/port/extractor"
)

type entryState int

const (
	stateInFlight entryState = iota
	stateReady
	stateFailed
)

// cacheEntry is the per-canonical-URL state. All fields are guarded by the
// cache mutex; done is the per-key promise waiters block on.
type cacheEntry struct {
	state      entryState
	yaml       []byte
	fetchedAt  time.Time
	err        error
	failedAt   time.Time
	done       chan struct{}
	waiters    int
	cancel     context.CancelFunc
	lastAccess time.Time
}

// PricingCache resolves canonical pricing URLs to Pricing2Yaml documents.
// It guarantees at most one concurrent transformation per canonical URL:
// concurrent requesters attach to the in-flight entry and observe the same
// result. Ready entries expire after the TTL; failed entries block retries
// for a cool-down window. Terminal transitions are published to the bus.
type PricingCache struct {
	store     cache.Cache
	extractor extractor.Client
	publisher broadcast.Publisher
	metrics   *otel.Metrics

	ttl             time.Duration
	cooldown        time.Duration
	maxEntries      int
	cancelOnAbandon bool

	mu      sync.Mutex
	entries map[string]*cacheEntry

	now   func() time.Time // for testing
	newID func() string
}

// NewPricingCache wires the cache. store is the byte backend (ristretto or
// redis); publisher receives url_transform events on terminal transitions.
func NewPricingCache(cfg config.Cache, store cache.Cache, ext extractor.Client, publisher broadcast.Publisher) *PricingCache {
	return &PricingCache{
		store:           store,
		extractor:       ext,
		publisher:       publisher,
		ttl:             cfg.TTL,
		cooldown:        cfg.ErrorCooldown,
		maxEntries:      cfg.MaxEntries,
		cancelOnAbandon: cfg.CancelOnAbandon,
		entries:         make(map[string]*cacheEntry),
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// SetMetrics attaches metric instruments.
func (c *PricingCache) SetMetrics(m *otel.Metrics) {
	c.metrics = m
}

// Resolve canonicalises rawURL and returns its Pricing2Yaml document.
func (c *PricingCache) Resolve(ctx context.Context, rawURL string) (string, error) {
	key, err := pricing.CanonicalURL(rawURL)
	if err != nil {
		return "", err
	}
	return c.ResolveCanonical(ctx, key)
}

// ResolveCanonical resolves an already-canonical URL.
func (c *PricingCache) ResolveCanonical(ctx context.Context, key string) (string, error) {
	for {
		yaml, done, err := c.fastPath(ctx, key)
		if err != nil || done {
			return yaml, err
		}

		// Wait on the in-flight promise, then re-read the entry state.
		again, yaml, err := c.await(ctx, key)
		if !again {
			return yaml, err
		}
	}
}

// fastPath serves fresh ready entries, replays cool-down errors, consults
// the byte backend, and starts a transformation when the entry is empty.
// done=false means an in-flight entry exists and the caller must await it.
func (c *PricingCache) fastPath(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()

	ent := c.entries[key]
	if ent != nil {
		switch ent.state {
		case stateInFlight:
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.CacheJoins.Add(ctx, 1)
			}
			return "", false, nil
		case stateReady:
			if c.now().Sub(ent.fetchedAt) < c.ttl {
				ent.lastAccess = c.now()
				yaml := string(ent.yaml)
				c.mu.Unlock()
				if c.metrics != nil {
					c.metrics.CacheHits.Add(ctx, 1)
				}
				slog.Info("pricing cache hit", "url", key)
				return yaml, true, nil
			}
			// Expired: back to empty, then fall through to restart.
			delete(c.entries, key)
		case stateFailed:
			if c.now().Sub(ent.failedAt) < c.cooldown {
				err := ent.err
				c.mu.Unlock()
				return "", true, fmt.Errorf("transformation recently failed: %w", err)
			}
			delete(c.entries, key)
		}
	}

	// Check the byte backend before paying for a transformation; a sibling
	// replica may have populated it.
	if data, ok, err := c.store.Get(ctx, key); err == nil && ok {
		ent := &cacheEntry{
			state:      stateReady,
			yaml:       data,
			fetchedAt:  c.now(),
			lastAccess: c.now(),
		}
		c.entries[key] = ent
		c.evictLocked()
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.CacheHits.Add(ctx, 1)
		}
		return string(data), true, nil
	}

	// Empty: become the single flight.
	flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ent = &cacheEntry{
		state:      stateInFlight,
		done:       make(chan struct{}),
		cancel:     cancel,
		lastAccess: c.now(),
	}
	c.entries[key] = ent
	c.evictLocked()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheMisses.Add(ctx, 1)
	}
	slog.Info("pricing cache miss, starting transformation", "url", key)

	go c.transform(flightCtx, key, ent)
	return "", false, nil
}

// await blocks on the in-flight promise for key. again=true means the
// entry vanished or expired and the caller should retry the fast path.
func (c *PricingCache) await(ctx context.Context, key string) (again bool, yaml string, err error) {
	c.mu.Lock()
	ent := c.entries[key]
	if ent == nil || ent.state != stateInFlight {
		c.mu.Unlock()
		return true, "", nil
	}
	ent.waiters++
	done := ent.done
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.detach(key, ent)
		return false, "", fmt.Errorf("pricing resolve: %w", ctx.Err())
	case <-done:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ent.waiters--
	switch ent.state {
	case stateReady:
		ent.lastAccess = c.now()
		return false, string(ent.yaml), nil
	case stateFailed:
		return false, "", ent.err
	default:
		return true, "", nil
	}
}

// detach removes a cancelled waiter. When the last waiter leaves and the
// abandon policy is enabled, the in-flight transformation is cancelled too.
func (c *PricingCache) detach(key string, ent *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent.waiters--
	if c.cancelOnAbandon && ent.waiters <= 0 && ent.state == stateInFlight {
		slog.Info("last waiter gone, cancelling transformation", "url", key)
		ent.cancel()
	}
}

// transform runs the single flight for key and resolves the promise.
func (c *PricingCache) transform(ctx context.Context, key string, ent *cacheEntry) {
	started := c.now()
	yamlText, err := c.extractor.Transform(ctx, key)

	c.mu.Lock()
	if err != nil {
		ent.state = stateFailed
		ent.err = err
		ent.failedAt = c.now()
	} else {
		ent.state = stateReady
		ent.yaml = []byte(yamlText)
		ent.fetchedAt = c.now()
		ent.lastAccess = c.now()
	}
	close(ent.done)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.TransformDuration.Record(ctx, c.now().Sub(started).Seconds())
	}

	// Publish the terminal transition. Best effort, never blocks the flight.
	payload := broadcast.URLTransformPayload{
		ID:         c.newID(),
		PricingURL: key,
	}
	if err != nil {
		payload.State = string(pricing.TransformFailed)
		payload.Error = err.Error()
		slog.Error("transformation failed", "url", key, "error", err)
	} else {
		payload.State = string(pricing.TransformDone)
		payload.YAMLContent = yamlText
		slog.Info("transformation completed", "url", key, "bytes", len(yamlText))
		if setErr := c.store.Set(context.WithoutCancel(ctx), key, []byte(yamlText), c.ttl); setErr != nil {
			slog.Warn("pricing byte cache set failed", "url", key, "error", setErr)
		}
	}
	if c.publisher != nil {
		c.publisher.Publish(context.WithoutCancel(ctx), broadcast.Event{
			Type:    broadcast.EventURLTransform,
			Payload: payload,
		})
	}
}

// evictLocked drops least-recently-used settled entries while over the
// entry cap. In-flight entries are never evicted. Must hold c.mu.
func (c *PricingCache) evictLocked() {
	for len(c.entries) > c.maxEntries {
		oldestKey := ""
		var oldest time.Time
		for key, ent := range c.entries {
			if ent.state == stateInFlight {
				continue
			}
			if oldestKey == "" || ent.lastAccess.Before(oldest) {
				oldestKey = key
				oldest = ent.lastAccess
			}
		}
		if oldestKey == "" {
			return
		}
		delete(c.entries, oldestKey)
	}
}

// Peek returns the YAML for key only when a fresh ready entry exists.
// It never starts a transformation.
func (c *PricingCache) Peek(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.entries[key]
	if !ok || ent.state != stateReady || c.now().Sub(ent.fetchedAt) >= c.ttl {
		return "", false
	}
	ent.lastAccess = c.now()
	return string(ent.yaml), true
}

// Invalidate drops the settled entry for key so the next resolve
// re-transforms. An in-flight entry is left alone: its waiters keep their
// promise.
func (c *PricingCache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	if ent, ok := c.entries[key]; ok && ent.state != stateInFlight {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	if err := c.store.Delete(ctx, key); err != nil {
		slog.Warn("pricing byte cache delete failed", "url", key, "error", err)
	}
}

// EntryCount reports the number of tracked entries.
func (c *PricingCache) EntryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
