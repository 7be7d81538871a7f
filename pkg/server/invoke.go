package server

import (
	"context"
	"runtime/debug"

	"github.com/atrilabs/atri-runtime/pkg/routes"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

const (
	phaseInit  = "init"
	phaseEvent = "event"
)

// invoke runs hook over working and returns the state the hook left behind
// together with its failure, if any.
//
// The hook runs on its own goroutine. When the handler timeout expires the
// handle is revoked and the invocation reports a *TimeoutError at once; the
// hook's context is cancelled and anything it writes afterwards is ignored.
// Panics are recovered into a *HandlerError carrying the stack.
func (sm *SessionManager) invoke(ctx context.Context, s *Session, hook routes.Hook, phase string, working state.Map, ev *state.Event) (state.Map, error) {
	h := state.NewHandle(working, ev)

	eventType := ""
	if ev != nil {
		eventType = ev.Type
	}

	timeout := sm.config.HandlerTimeout
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &HandlerError{
					SessionID: s.ID,
					Route:     s.Route.Path,
					Phase:     phase,
					EventType: eventType,
					Panic:     r,
					Stack:     debug.Stack(),
				}
			}
		}()
		if err := hook(ctx, h); err != nil {
			done <- &HandlerError{
				SessionID: s.ID,
				Route:     s.Route.Path,
				Phase:     phase,
				EventType: eventType,
				Err:       err,
			}
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return h.Revoke(), err
	case <-ctx.Done():
		final := h.Revoke()
		// A hook may finish in the same instant the deadline passes.
		select {
		case err := <-done:
			return final, err
		default:
		}
		return final, &TimeoutError{
			SessionID: s.ID,
			Route:     s.Route.Path,
			Phase:     phase,
			EventType: eventType,
			Timeout:   timeout,
		}
	}
}
