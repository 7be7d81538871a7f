package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/atrilabs/atri-runtime/pkg/diff"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

// Dispatch hands env to its session without blocking.
//
// It returns a *SessionNotFoundError when the session does not exist or is
// closed, and a *BusyError when the session already holds
// SessionConfig.MaxEventQueue unfinished events or no worker is available.
// A rejected envelope is dropped. An accepted envelope is processed after
// every envelope accepted before it for the same session.
func (sm *SessionManager) Dispatch(env *Envelope) error {
	s := sm.sessions.Get(env.SessionID)
	if s == nil {
		err := &SessionNotFoundError{SessionID: env.SessionID}
		sm.metrics.eventRejected(err)
		return err
	}
	if err := sm.dispatch(s, env); err != nil {
		sm.metrics.eventRejected(err)
		s.logger.Debug("event rejected", "event", env.EventType, "error", err)
		return err
	}
	return nil
}

func (sm *SessionManager) dispatch(s *Session, env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusClosed {
		return &SessionNotFoundError{SessionID: s.ID}
	}

	pending := s.mailbox.len()
	if s.inflight {
		pending++
	}
	if pending >= sm.config.MaxEventQueue {
		return &BusyError{SessionID: s.ID, Limit: sm.config.MaxEventQueue}
	}

	if s.status == StatusIdle {
		// The drain task blocks on s.mu until the envelope is queued.
		if err := sm.submitLocked(s); err != nil {
			return err
		}
	}
	if err := s.mailbox.push(env); err != nil {
		return &SessionNotFoundError{SessionID: s.ID}
	}
	s.lastActive = time.Now()
	return nil
}

// submitLocked schedules a drain task and moves the session to Processing.
// The caller holds s.mu and the session is Idle.
func (sm *SessionManager) submitLocked(s *Session) error {
	if err := sm.pool.Submit(func() { sm.drain(s) }); err != nil {
		if sm.pool.IsClosed() {
			return ErrShuttingDown
		}
		return &BusyError{SessionID: s.ID, Limit: sm.config.MaxEventQueue}
	}
	s.status = StatusProcessing
	return nil
}

// startDrainLocked drains envelopes queued while the session was
// initializing. They were already accepted, so when the pool refuses the
// task the drain runs on its own goroutine.
func (sm *SessionManager) startDrainLocked(s *Session) {
	if err := sm.submitLocked(s); err != nil {
		s.status = StatusProcessing
		go sm.drain(s)
	}
}

// drain processes the session's envelopes one at a time until the mailbox
// is empty, then returns the session to Idle.
func (sm *SessionManager) drain(s *Session) {
	for {
		s.mu.Lock()
		s.inflight = false
		if s.status == StatusClosed {
			s.mu.Unlock()
			return
		}
		env := s.mailbox.pop()
		if env == nil {
			s.status = StatusIdle
			s.mu.Unlock()
			return
		}
		s.inflight = true
		baseline := s.state
		s.mu.Unlock()

		sm.process(s, env, baseline)
	}
}

// process runs the Event hook for env over a copy of baseline. On success
// the result is committed and its delta pushed. On failure the committed
// state stays at baseline and one error message is pushed.
func (sm *SessionManager) process(s *Session, env *Envelope, baseline state.Map) {
	start := time.Now()
	s.eventCount.Add(1)

	ev := &state.Event{Type: env.EventType, Payload: env.Payload, ReceivedAt: env.ReceivedAt}
	ctx, span := startHookSpan(context.Background(), sm.tracer, s, phaseEvent, env.EventType)

	next, err := sm.invoke(ctx, s, s.Route.Event, phaseEvent, baseline.Clone(), ev)
	var delta diff.Delta
	if err == nil {
		delta = diff.Diff(baseline, next)
		err = delta.Validate()
	}

	elapsed := time.Since(start)
	sm.metrics.eventDone(s.Route.Path, elapsed, err)
	endHookSpan(span, len(delta), err)

	if err != nil {
		s.failedCount.Add(1)
		s.logger.Error("event failed, state rolled back",
			"event", env.EventType,
			"error", err,
			"duration", elapsed)
		logPanicStack(s.logger, err)
		sm.PushError(s, err)
		return
	}

	sm.commit(s, next, delta)
	s.logger.Debug("event processed",
		"event", env.EventType,
		"ops", len(delta),
		"duration", elapsed)
}

// commit makes next the committed state and pushes delta when it is not
// empty. A session closed meanwhile keeps its state.
func (sm *SessionManager) commit(s *Session, next state.Map, delta diff.Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return
	}
	s.state = next
	if delta.Empty() {
		return
	}
	s.deltaCount.Add(1)
	sm.metrics.deltaPushed(len(delta))
	sm.pushLocked(s, newDeltaMessage(s.ID, delta))
}

func logPanicStack(logger *slog.Logger, err error) {
	var he *HandlerError
	if errors.As(err, &he) && he.Panic != nil {
		logger.Error("hook panic", "panic", he.Panic, "stack", string(he.Stack))
	}
}
