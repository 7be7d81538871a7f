package state

import "fmt"

// SerializationError reports a value that cannot be represented on the wire.
type SerializationError struct {
	Key    string // state key or path into it, may be empty
	Reason string
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	if e.Key == "" {
		return "state: cannot serialize value: " + e.Reason
	}
	return fmt.Sprintf("state: cannot serialize %q: %s", e.Key, e.Reason)
}
