package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// MaxEventTypeLen bounds the length of an event type.
const MaxEventTypeLen = 256

// Decode errors.
var (
	ErrMessageTooLarge = errors.New("protocol: message too large")
	ErrUnknownType     = errors.New("protocol: unknown message type")
	ErrMissingField    = errors.New("protocol: missing field")
)

// DecodeError wraps a frame that could not be decoded.
type DecodeError struct {
	Err error
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: invalid message: %v", e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

var buffers bytebufferpool.Pool

// Encode serializes m. Non-finite numbers in m yield an error.
func Encode(m *Message) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Type, err)
	}
	// json.Encoder appends a newline.
	b := buf.B[:len(buf.B)-1]
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Decode parses and validates a frame. limit bounds the frame size; zero
// means no limit. All failures are *DecodeError.
func Decode(data []byte, limit int) (*Message, error) {
	if limit > 0 && len(data) > limit {
		return nil, &DecodeError{Err: ErrMessageTooLarge}
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if err := m.validate(); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &m, nil
}

func (m *Message) validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w %q", ErrUnknownType, m.Type)
	}
	switch m.Type {
	case TypeEvent:
		if m.EventType == "" {
			return fmt.Errorf("%w: eventType", ErrMissingField)
		}
		if len(m.EventType) > MaxEventTypeLen {
			return fmt.Errorf("eventType longer than %d bytes", MaxEventTypeLen)
		}
	case TypeError:
		if m.Code == "" {
			return fmt.Errorf("%w: code", ErrMissingField)
		}
	}
	return nil
}
