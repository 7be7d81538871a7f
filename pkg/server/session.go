package server

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/atrilabs/atri-runtime/pkg/routes"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

// Status is the processing state of a session.
type Status int32

const (
	StatusInitializing Status = iota // Init hook running
	StatusIdle                       // No event in flight
	StatusProcessing                 // Draining the mailbox
	StatusClosed                     // Terminal
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusIdle:
		return "idle"
	case StatusProcessing:
		return "processing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Envelope is one client event addressed to a session. It is consumed
// exactly once.
type Envelope struct {
	SessionID  string
	EventType  string
	Payload    state.Value
	ReceivedAt time.Time
}

// NewEnvelope returns an Envelope received now.
func NewEnvelope(sessionID, eventType string, payload state.Value) *Envelope {
	return &Envelope{
		SessionID:  sessionID,
		EventType:  eventType,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
}

// Session is the isolated running state of one route for one client.
type Session struct {
	// Identity
	ID        string
	Route     *routes.Route // Resolved at creation, never replaced
	CreatedAt time.Time

	// mu guards everything below it. The committed state is replaced on
	// commit, never modified in place.
	mu         sync.Mutex
	status     Status
	state      state.Map
	lastActive time.Time
	inflight   bool
	conn       Conn
	seq        uint64
	detachedAt time.Time

	mailbox *mailbox
	logger  *slog.Logger

	// Counters
	eventCount  atomic.Uint64
	failedCount atomic.Uint64
	deltaCount  atomic.Uint64
}

// SessionStats is a point-in-time summary of a session.
type SessionStats struct {
	ID         string
	Route      string
	Status     Status
	Keys       int
	Pending    int
	Detached   bool
	Seq        uint64
	Events     uint64
	Failed     uint64
	Deltas     uint64
	CreatedAt  time.Time
	LastActive time.Time
}

// newSession creates a session for rt seeded with a copy of its defaults.
func newSession(rt *routes.Route, conn Conn, config *SessionConfig, logger *slog.Logger) *Session {
	now := time.Now()
	id := uuid.NewString()
	return &Session{
		ID:         id,
		Route:      rt,
		CreatedAt:  now,
		status:     StatusInitializing,
		state:      rt.Defaults.Clone(),
		lastActive: now,
		conn:       conn,
		mailbox:    newMailbox(config.MaxEventQueue),
		logger:     logger.With("session_id", id, "route", rt.Path),
	}
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns a copy of the committed state.
func (s *Session) State() state.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// LastActive returns the time of the last client activity.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// IsDetached reports whether the session has no connection.
func (s *Session) IsDetached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == nil && s.status != StatusClosed
}

// IsClosed reports whether the session is closed.
func (s *Session) IsClosed() bool {
	return s.Status() == StatusClosed
}

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Stats returns a summary of the session.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.mailbox.len()
	if s.inflight {
		pending++
	}
	return SessionStats{
		ID:         s.ID,
		Route:      s.Route.Path,
		Status:     s.status,
		Keys:       len(s.state),
		Pending:    pending,
		Detached:   s.conn == nil && s.status != StatusClosed,
		Seq:        s.seq,
		Events:     s.eventCount.Load(),
		Failed:     s.failedCount.Load(),
		Deltas:     s.deltaCount.Load(),
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
	}
}

// Touch records client activity.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}
