package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/atrilabs/atri-runtime/pkg/routes"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

// Close reasons reported to clients and recorded in metrics.
const (
	ReasonDisconnected  = "disconnected"
	ReasonResumeExpired = "resume_expired"
	ReasonIdle          = "idle"
	ReasonClientClosed  = "client_closed"
	ReasonShutdown      = "shutdown"
)

// SessionManager creates, drives and tears down sessions.
type SessionManager struct {
	registry *routes.Registry
	sessions *SessionStore
	pool     *ants.Pool
	config   *SessionConfig
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger

	// Lifecycle
	closing      atomic.Bool
	done         chan struct{}
	cleanupDone  chan struct{}
	shutdownOnce sync.Once

	// Counters
	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64
	peak         atomic.Int64

	// Callbacks
	onSessionCreate func(*Session)
	onSessionClose  func(*Session)
}

// ManagerStats summarizes the sessions of a manager.
type ManagerStats struct {
	Active       int
	Detached     int
	TotalCreated uint64
	TotalClosed  uint64
	Peak         int
	Workers      int
}

// NewSessionManager creates a SessionManager resolving routes from registry.
// metrics may be nil. The idle sweep starts immediately and runs until
// Shutdown.
func NewSessionManager(registry *routes.Registry, config *SessionConfig, logger *slog.Logger, metrics *Metrics) (*SessionManager, error) {
	if config == nil {
		config = DefaultSessionConfig()
	} else {
		config = config.Clone()
		config.fillDefaults()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("server: invalid session config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sessions")

	pool, err := ants.NewPool(config.WorkerPoolSize,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			logger.Error("worker panic", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("server: create worker pool: %w", err)
	}

	sm := &SessionManager{
		registry:    registry,
		sessions:    NewSessionStore(),
		pool:        pool,
		config:      config,
		metrics:     metrics,
		tracer:      newTracer(),
		logger:      logger,
		done:        make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	metrics.observePool(pool.Running, pool.Cap)

	go sm.cleanupLoop()
	return sm, nil
}

// Connect creates a session for the route at routePath and runs its Init
// hook. A failing Init hook does not prevent the session: it is admitted
// with whatever state the hook had produced. conn then receives the
// state_init snapshot.
func (sm *SessionManager) Connect(ctx context.Context, routePath string, conn Conn) (*Session, error) {
	if sm.closing.Load() {
		return nil, ErrShuttingDown
	}
	rt, err := sm.registry.Resolve(routePath)
	if err != nil {
		return nil, err
	}

	s := newSession(rt, conn, sm.config, sm.logger)
	sm.sessions.Add(s)
	sm.trackCreated()
	if sm.onSessionCreate != nil {
		sm.onSessionCreate(s)
	}
	s.logger.Info("session created")

	sm.initialize(ctx, s)
	return s, nil
}

// initialize runs the Init hook and moves the session to Idle.
func (sm *SessionManager) initialize(ctx context.Context, s *Session) {
	s.mu.Lock()
	defaults := s.state
	s.mu.Unlock()

	ctx, span := startHookSpan(ctx, sm.tracer, s, phaseInit, "")
	next, err := sm.invoke(ctx, s, s.Route.Init, phaseInit, defaults.Clone(), nil)
	if err != nil {
		s.failedCount.Add(1)
		s.logger.Error("init hook failed, admitting partial state", "error", err, "keys", len(next))
		logPanicStack(s.logger, err)
	}
	next = sm.sanitize(s, next, defaults)
	sm.metrics.initDone(s.Route.Path, err)
	endHookSpan(span, len(next), err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return
	}
	s.state = next
	s.status = StatusIdle
	sm.pushLocked(s, s.snapshotLocked())
	if s.mailbox.len() > 0 {
		sm.startDrainLocked(s)
	}
}

// sanitize replaces init results that cannot be serialized: the key falls
// back to its default, or is removed when it has none.
func (sm *SessionManager) sanitize(s *Session, next, defaults state.Map) state.Map {
	if next.Validate() == nil {
		return next
	}
	for _, k := range next.Keys() {
		err := state.Validate(k, next[k])
		if err == nil {
			continue
		}
		s.logger.Warn("dropping unserializable init value", "key", k, "error", err)
		if d, ok := defaults[k]; ok && state.Validate(k, d) == nil {
			next[k] = d
		} else {
			delete(next, k)
		}
	}
	return next
}

// Reconnect attaches conn to an existing session. The client receives a full
// state_init snapshot before anything else, whatever it missed while away.
func (sm *SessionManager) Reconnect(sessionID string, conn Conn) (*Session, error) {
	s := sm.sessions.Get(sessionID)
	if s == nil {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}
	if s.conn == nil {
		sm.metrics.sessionReattached()
	} else if s.conn != conn {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.detachedAt = time.Time{}
	s.lastActive = time.Now()
	if s.status != StatusInitializing {
		sm.pushLocked(s, s.snapshotLocked())
	}
	s.logger.Info("session reconnected")
	return s, nil
}

// Disconnect reports that conn dropped. Stale connections, already replaced
// by a reconnect, are ignored. Without a resume window the session closes.
func (sm *SessionManager) Disconnect(sessionID string, conn Conn) {
	s := sm.sessions.Get(sessionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.status == StatusClosed || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	if sm.config.ResumeWindow > 0 {
		s.detachedAt = time.Now()
		s.mu.Unlock()
		sm.metrics.sessionDetached()
		s.logger.Info("session detached", "resume_window", sm.config.ResumeWindow)
		return
	}
	s.mu.Unlock()
	sm.Close(sessionID, ReasonDisconnected)
}

// Close tears down a session: queued events are discarded, the connection is
// told why and closed, and the session leaves the store. Closing an unknown
// session is a no-op.
func (sm *SessionManager) Close(sessionID, reason string) {
	s, ok := sm.sessions.Remove(sessionID)
	if !ok {
		return
	}
	sm.closeSession(s, reason)
}

func (sm *SessionManager) closeSession(s *Session, reason string) {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	s.status = StatusClosed
	discarded := s.mailbox.dispose()
	conn := s.conn
	s.conn = nil
	detached := conn == nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Send(newCloseMessage(s.ID, reason))
		_ = conn.Close()
	}

	sm.totalClosed.Add(1)
	sm.metrics.sessionClosed(reason, discarded, detached)
	if sm.onSessionClose != nil {
		sm.onSessionClose(s)
	}
	s.logger.Info("session closed",
		"reason", reason,
		"events", s.eventCount.Load(),
		"failed", s.failedCount.Load(),
		"deltas", s.deltaCount.Load(),
		"discarded", discarded)
}

// cleanupLoop periodically closes expired sessions until Shutdown.
func (sm *SessionManager) cleanupLoop() {
	defer close(sm.cleanupDone)

	ticker := time.NewTicker(sm.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			sm.cleanupExpired(now)
		case <-sm.done:
			return
		}
	}
}

// cleanupExpired closes detached sessions past the resume window and idle
// sessions past the idle timeout. Sessions with an event in flight are
// never idle.
func (sm *SessionManager) cleanupExpired(now time.Time) {
	type expiry struct {
		id     string
		reason string
	}
	var expired []expiry

	for _, s := range sm.sessions.All() {
		s.mu.Lock()
		switch {
		case s.status == StatusClosed:
		case s.conn == nil && !s.detachedAt.IsZero() && now.Sub(s.detachedAt) > sm.config.ResumeWindow:
			expired = append(expired, expiry{s.ID, ReasonResumeExpired})
		case sm.config.IdleTimeout > 0 && s.status == StatusIdle && now.Sub(s.lastActive) > sm.config.IdleTimeout:
			expired = append(expired, expiry{s.ID, ReasonIdle})
		}
		s.mu.Unlock()
	}

	for _, e := range expired {
		sm.Close(e.id, e.reason)
	}
	if len(expired) > 0 {
		sm.logger.Info("cleaned up expired sessions",
			"count", len(expired),
			"remaining", sm.sessions.Count())
	}
}

// Shutdown stops the sweep, closes every session and releases the worker
// pool. It is safe to call more than once.
func (sm *SessionManager) Shutdown() {
	sm.shutdownOnce.Do(func() {
		sm.closing.Store(true)
		close(sm.done)
		<-sm.cleanupDone

		sessions := sm.sessions.All()
		var wg sync.WaitGroup
		for _, s := range sessions {
			wg.Add(1)
			go func(s *Session) {
				defer wg.Done()
				sm.Close(s.ID, ReasonShutdown)
			}(s)
		}
		wg.Wait()

		if err := sm.pool.ReleaseTimeout(5 * time.Second); err != nil {
			sm.logger.Warn("worker pool release", "error", err)
		}
		sm.logger.Info("session manager shut down", "closed", len(sessions))
	})
}

// Get returns the live session for id, or nil.
func (sm *SessionManager) Get(id string) *Session {
	return sm.sessions.Get(id)
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	return sm.sessions.Count()
}

// Stats returns manager-wide statistics.
func (sm *SessionManager) Stats() ManagerStats {
	stats := ManagerStats{
		Active:       sm.sessions.Count(),
		TotalCreated: sm.totalCreated.Load(),
		TotalClosed:  sm.totalClosed.Load(),
		Peak:         int(sm.peak.Load()),
		Workers:      sm.pool.Running(),
	}
	for _, s := range sm.sessions.All() {
		if s.IsDetached() {
			stats.Detached++
		}
	}
	return stats
}

// ForEach calls fn for each live session until fn returns false.
func (sm *SessionManager) ForEach(fn func(*Session) bool) {
	sm.sessions.ForEach(fn)
}

// Registry returns the route registry.
func (sm *SessionManager) Registry() *routes.Registry {
	return sm.registry
}

// Config returns the session configuration in effect.
func (sm *SessionManager) Config() *SessionConfig {
	return sm.config
}

// PoolClosed reports whether the worker pool has been released.
func (sm *SessionManager) PoolClosed() bool {
	return sm.pool.IsClosed()
}

// SetOnSessionCreate sets a callback run after a session is created.
func (sm *SessionManager) SetOnSessionCreate(fn func(*Session)) {
	sm.onSessionCreate = fn
}

// SetOnSessionClose sets a callback run after a session is closed.
func (sm *SessionManager) SetOnSessionClose(fn func(*Session)) {
	sm.onSessionClose = fn
}

func (sm *SessionManager) trackCreated() {
	sm.totalCreated.Add(1)
	sm.metrics.sessionCreated()
	n := int64(sm.sessions.Count())
	for {
		peak := sm.peak.Load()
		if n <= peak || sm.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}
