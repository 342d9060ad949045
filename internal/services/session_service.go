// Package services – SessionService
//
// This file implements SessionService, the application-level component that
// owns in-memory conversation sessions. It validates incoming messages,
// creates session state on first contact, and serializes turns per session so
// the conversation controller never sees concurrent mutation of one session.
//
// Sessions are ephemeral: they live for the lifetime of the process and are
// dropped on an explicit clear. Complaints persisted during a conversation
// outlive the session that produced them.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// the session identifier and resulting conversation state.
package services

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-complaint-backend/internal/convo"
	"github.com/tbourn/go-complaint-backend/internal/llm"
)

// Stepper is the conversation controller contract required by SessionService.
type Stepper interface {
	Step(ctx context.Context, s *convo.Session, msg string) string
}

// ConverseResult is the outcome of one conversation turn.
type ConverseResult struct {
	Reply       string
	State       convo.State
	ComplaintID string
}

// sessionEntry pairs a session with the mutex that serializes its turns.
type sessionEntry struct {
	mu sync.Mutex
	s  *convo.Session
}

// SessionService manages per-session conversation state and routes turns
// through the conversation controller.
type SessionService struct {
	Controller Stepper

	// MaxPromptRunes caps incoming messages by rune length. Zero disables
	// the check.
	MaxPromptRunes int

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// NewSessionService constructs a SessionService around the given controller.
func NewSessionService(c Stepper) *SessionService {
	return &SessionService{
		Controller: c,
		sessions:   make(map[string]*sessionEntry),
	}
}

// Converse runs one turn for the given session, creating the session on first
// contact. Turns for the same session are serialized; different sessions
// proceed concurrently.
func (s *SessionService) Converse(ctx context.Context, sessionID, message string) (*ConverseResult, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Converse",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(message) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	entry := s.entry(sessionID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	reply := s.Controller.Step(ctx, entry.s, message)
	span.SetAttributes(attribute.String("session.state", string(entry.s.State)))

	return &ConverseResult{
		Reply:       reply,
		State:       entry.s.State,
		ComplaintID: entry.s.CurrentComplaintID,
	}, nil
}

// History returns a copy of the session's message log, oldest first. It
// returns ErrSessionNotFound when the session has no state on this server.
func (s *SessionService) History(ctx context.Context, sessionID string) ([]llm.Message, error) {
	_, span := otel.Tracer("services/SessionService").Start(ctx, "History",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := make([]llm.Message, len(entry.s.Log))
	copy(out, entry.s.Log)
	return out, nil
}

// Clear drops the session's state entirely. Clearing an unknown session is a
// no-op. Persisted complaints are untouched.
func (s *SessionService) Clear(ctx context.Context, sessionID string) {
	_, span := otel.Tracer("services/SessionService").Start(ctx, "Clear",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// entry returns the session's entry, creating it when absent.
func (s *SessionService) entry(sessionID string) *sessionEntry {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[sessionID]; ok {
		return e
	}
	e = &sessionEntry{s: convo.NewSession()}
	s.sessions[sessionID] = e
	return e
}
