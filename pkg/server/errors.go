package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/atrilabs/atri-runtime/pkg/protocol"
	"github.com/atrilabs/atri-runtime/pkg/routes"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

// Sentinel errors for common session and server error conditions.
var (
	// ErrSessionClosed is returned when an operation is attempted on a closed session.
	ErrSessionClosed = errors.New("server: session closed")

	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrSlowConsumer is returned when a connection's send buffer is full.
	// The connection is closed; the client resyncs on reconnect.
	ErrSlowConsumer = errors.New("server: slow consumer")

	// ErrShuttingDown is returned when the manager no longer accepts work.
	ErrShuttingDown = errors.New("server: shutting down")
)

// SessionNotFoundError is returned when an event or reconnect targets a
// session that does not exist or is closed.
type SessionNotFoundError struct {
	SessionID string
}

// Error returns the error message.
func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("server: session %q not found", e.SessionID)
}

// BusyError is returned when a session already holds the maximum number of
// unfinished events. The rejected event is dropped.
type BusyError struct {
	SessionID string
	Limit     int
}

// Error returns the error message.
func (e *BusyError) Error() string {
	return fmt.Sprintf("server: session %s busy: %d events pending", e.SessionID, e.Limit)
}

// HandlerError wraps an error returned by, or a panic raised in, a hook.
type HandlerError struct {
	SessionID string
	Route     string
	Phase     string // "init" or "event"
	EventType string
	Err       error
	Panic     any
	Stack     []byte
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("server: %s hook panic in session %s, route %s, event %q: %v",
			e.Phase, e.SessionID, e.Route, e.EventType, e.Panic)
	}
	return fmt.Sprintf("server: %s hook failed in session %s, route %s, event %q: %v",
		e.Phase, e.SessionID, e.Route, e.EventType, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a hook exceeds the handler timeout.
type TimeoutError struct {
	SessionID string
	Route     string
	Phase     string
	EventType string
	Timeout   time.Duration
}

// Error returns the error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("server: %s hook in session %s, route %s, event %q exceeded %s",
		e.Phase, e.SessionID, e.Route, e.EventType, e.Timeout)
}

// CodeFor maps an error to the protocol error code reported to clients.
func CodeFor(err error) protocol.ErrorCode {
	var (
		timeout  *TimeoutError
		serial   *state.SerializationError
		handler  *HandlerError
		busy     *BusyError
		notFound *SessionNotFoundError
		unknown  *routes.UnknownRouteError
		decode   *protocol.DecodeError
	)
	switch {
	case errors.As(err, &timeout):
		return protocol.CodeTimeout
	case errors.As(err, &serial):
		return protocol.CodeSerializationError
	case errors.As(err, &handler):
		return protocol.CodeHandlerError
	case errors.As(err, &busy):
		return protocol.CodeBusy
	case errors.As(err, &notFound), errors.Is(err, ErrSessionClosed):
		return protocol.CodeSessionNotFound
	case errors.As(err, &unknown):
		return protocol.CodeUnknownRoute
	case errors.As(err, &decode):
		return protocol.CodeInvalidMessage
	}
	return protocol.CodeInternal
}

// clientMessage describes err for the client. Panic values and stacks stay
// in the server log.
func clientMessage(err error) string {
	var (
		handler *HandlerError
		timeout *TimeoutError
		serial  *state.SerializationError
	)
	switch {
	case errors.As(err, &timeout):
		return fmt.Sprintf("%s hook timed out after %s", timeout.Phase, timeout.Timeout)
	case errors.As(err, &serial):
		return serial.Error()
	case errors.As(err, &handler):
		if handler.Panic != nil {
			return fmt.Sprintf("%s hook panicked", handler.Phase)
		}
		return fmt.Sprintf("%s hook failed: %v", handler.Phase, handler.Err)
	}
	return err.Error()
}
