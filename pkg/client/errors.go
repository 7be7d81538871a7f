package client

import (
	"errors"
	"fmt"

	"github.com/atrilabs/atri-runtime/pkg/protocol"
)

var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client: closed")

	// ErrNotConnected is returned by Send while the client is reconnecting.
	ErrNotConnected = errors.New("client: not connected")
)

// ServerError is an error message received from the server.
type ServerError struct {
	Code    protocol.ErrorCode
	Message string
	Seq     uint64
}

// Error returns the error message.
func (e *ServerError) Error() string {
	return fmt.Sprintf("client: server error %s: %s", e.Code, e.Message)
}

// SessionClosedError reports that the server closed the session.
type SessionClosedError struct {
	SessionID string
	Reason    string
}

// Error returns the error message.
func (e *SessionClosedError) Error() string {
	return fmt.Sprintf("client: session %s closed: %s", e.SessionID, e.Reason)
}

func serverError(m *protocol.Message) *ServerError {
	return &ServerError{Code: m.Code, Message: m.Message, Seq: m.Seq}
}
