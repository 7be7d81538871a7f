package protocol

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/atrilabs/atri-runtime/pkg/diff"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

// MessageType identifies the kind of a Message.
type MessageType string

const (
	TypeStateInit  MessageType = "state_init"
	TypeStateDelta MessageType = "state_delta"
	TypeEvent      MessageType = "event"
	TypeError      MessageType = "error"
	TypeResync     MessageType = "resync"
	TypePing       MessageType = "ping"
	TypePong       MessageType = "pong"
	TypeClose      MessageType = "close"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeStateInit, TypeStateDelta, TypeEvent, TypeError,
		TypeResync, TypePing, TypePong, TypeClose:
		return true
	}
	return false
}

// Sequenced reports whether messages of type t consume a sequence number.
func (t MessageType) Sequenced() bool {
	return t == TypeStateInit || t == TypeStateDelta || t == TypeError
}

// ErrorCode classifies an error message.
type ErrorCode string

const (
	CodeHandlerError       ErrorCode = "handler_error"
	CodeTimeout            ErrorCode = "timeout"
	CodeSerializationError ErrorCode = "serialization_error"
	CodeBusy               ErrorCode = "busy"
	CodeSessionNotFound    ErrorCode = "session_not_found"
	CodeUnknownRoute       ErrorCode = "unknown_route"
	CodeInvalidMessage     ErrorCode = "invalid_message"
	CodeInternal           ErrorCode = "internal"
)

// Message is a single protocol frame.
type Message struct {
	Type      MessageType  `json:"type"`
	SessionID string       `json:"sessionId,omitempty"`
	Seq       uint64       `json:"seq,omitempty"`
	Route     string       `json:"route,omitempty"`
	State     state.Map    `json:"state,omitempty"`
	Ops       diff.Delta   `json:"ops,omitempty"`
	EventType string       `json:"eventType,omitempty"`
	Payload   *state.Value `json:"payload,omitempty"`
	Code      ErrorCode    `json:"code,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type plainMessage Message

// MarshalJSON encodes m. A state_init always carries its state, as {} when
// the session state is empty.
func (m Message) MarshalJSON() ([]byte, error) {
	w := struct {
		plainMessage
		State *state.Map `json:"state,omitempty"`
	}{plainMessage: plainMessage(m)}
	if m.Type == TypeStateInit {
		st := m.State
		if st == nil {
			st = state.Map{}
		}
		w.State = &st
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// NewStateInit returns a snapshot message. The sequence number is assigned
// when the message is pushed.
func NewStateInit(sessionID, route string, st state.Map) *Message {
	return &Message{Type: TypeStateInit, SessionID: sessionID, Route: route, State: st}
}

// NewStateDelta returns a delta message.
func NewStateDelta(sessionID string, ops diff.Delta) *Message {
	return &Message{Type: TypeStateDelta, SessionID: sessionID, Ops: ops}
}

// NewError returns an error message.
func NewError(sessionID string, code ErrorCode, message string) *Message {
	return &Message{Type: TypeError, SessionID: sessionID, Code: code, Message: message}
}

// NewEvent returns an event message.
func NewEvent(sessionID, eventType string, payload state.Value) *Message {
	return &Message{Type: TypeEvent, SessionID: sessionID, EventType: eventType, Payload: &payload}
}

// NewResync returns a resync request.
func NewResync(sessionID string) *Message {
	return &Message{Type: TypeResync, SessionID: sessionID}
}

// NewPing returns a ping stamped with now.
func NewPing(now time.Time) *Message {
	return &Message{Type: TypePing, Timestamp: now.UnixMilli()}
}

// NewPong answers ping.
func NewPong(ping *Message) *Message {
	return &Message{Type: TypePong, Timestamp: ping.Timestamp}
}

// NewClose returns a close notice.
func NewClose(sessionID, reason string) *Message {
	return &Message{Type: TypeClose, SessionID: sessionID, Message: reason}
}

// EventPayload returns the payload of an event message, null when absent.
func (m *Message) EventPayload() state.Value {
	if m.Payload == nil {
		return state.Null()
	}
	return *m.Payload
}

// Error implements the error interface for error messages.
func (m *Message) Error() string {
	return string(m.Code) + ": " + m.Message
}
