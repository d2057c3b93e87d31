package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/domain"
	"github.com/isa-group/harvey/internal/domain/conversation"
	"github.com/isa-group/harvey/internal/domain/pricing"
)

// Session holds one conversation's state: transcript, step history, the
// pricing working set, and the cancellation token for the running turn.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	status     conversation.SessionStatus
	messages   []conversation.Message
	steps      []conversation.AgentStep
	items      []pricing.ContextItem
	artifacts  map[string]string
	cancelTurn context.CancelFunc
	lastActive time.Time
}

// Status returns the current loop state.
func (s *Session) Status() conversation.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus moves the loop state machine.
func (s *Session) SetStatus(status conversation.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.lastActive = time.Now()
}

// BindCancel stores the cancellation function for the running turn.
func (s *Session) BindCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTurn = cancel
}

// Cancel aborts the running turn, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancelTurn
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// AppendMessage appends to the transcript.
func (s *Session) AppendMessage(msg conversation.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.CreatedAt = time.Now()
	s.messages = append(s.messages, msg)
	s.lastActive = time.Now()
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conversation.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// AppendStep records one loop iteration. Step indexes are assigned here and
// are strictly increasing and contiguous from 0.
func (s *Session) AppendStep(step conversation.AgentStep) conversation.AgentStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	step.Index = len(s.steps)
	s.steps = append(s.steps, step)
	s.lastActive = time.Now()
	return step
}

// Steps returns a copy of the step history.
func (s *Session) Steps() []conversation.AgentStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conversation.AgentStep, len(s.steps))
	copy(out, s.steps)
	return out
}

// AddItem places a context item into the working set after validation.
// Item ids are unique within the session.
func (s *Session) AddItem(item pricing.ContextItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == item.ID {
			return fmt.Errorf("context item %s: %w", item.ID, domain.ErrConflict)
		}
	}
	s.items = append(s.items, item)
	s.lastActive = time.Now()
	return nil
}

// Items returns a copy of the working set.
func (s *Session) Items() []pricing.ContextItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pricing.ContextItem, len(s.items))
	copy(out, s.items)
	return out
}

// MarkItemTransform records the outcome of a url item's transformation.
// Kind and origin never change; only the transform lifecycle fields do.
func (s *Session) MarkItemTransform(itemID string, state pricing.TransformState, artifactRef, cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == itemID {
			s.items[i].Transform = state
			s.items[i].ArtifactRef = artifactRef
			s.items[i].TransformError = cause
			return
		}
	}
}

// SetArtifact stores YAML bytes under an artifact reference. The artifact
// arena is append-only: references are opaque ids, never object graphs.
func (s *Session) SetArtifact(ref, yamlText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifacts == nil {
		s.artifacts = make(map[string]string)
	}
	if _, exists := s.artifacts[ref]; !exists {
		s.artifacts[ref] = yamlText
	}
}

// Artifact returns the YAML stored under ref.
func (s *Session) Artifact(ref string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	yamlText, ok := s.artifacts[ref]
	return yamlText, ok
}

// SessionManager owns every live session and garbage-collects idle ones.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	idleTTL    time.Duration
	gcInterval time.Duration
	now        func() time.Time // for testing
}

// NewSessionManager creates the manager from config.
func NewSessionManager(cfg config.Session) *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*Session),
		idleTTL:    cfg.IdleTTL,
		gcInterval: cfg.GCInterval,
		now:        time.Now,
	}
}

// Create registers a new idle session.
func (m *SessionManager) Create() *Session {
	sess := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  m.now(),
		status:     conversation.StatusIdle,
		lastActive: m.now(),
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess
}

// Get returns a session by id.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return sess, nil
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartGC runs the idle sweep until ctx is cancelled.
func (m *SessionManager) StartGC(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.gcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// sweep drops sessions idle past the TTL. Running turns are cancelled.
func (m *SessionManager) sweep() {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var expired []*Session
	for id, sess := range m.sessions {
		sess.mu.Lock()
		idle := sess.lastActive.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.Cancel()
		slog.Info("session garbage collected", "session_id", sess.ID)
	}
}
