package state

import (
	"sync"
	"time"
)

// Event is the read-only context of the event being handled.
type Event struct {
	Type       string
	Payload    Value
	ReceivedAt time.Time
}

// Handle is the mutation interface given to a hook for one invocation.
//
// A Handle wraps a working copy of the session state. Once the runtime
// revokes it (the hook returned, failed or timed out) every further
// mutation is ignored, so a hook that keeps running after its deadline can
// never change what was committed.
type Handle struct {
	mu      sync.Mutex
	data    Map
	event   *Event
	revoked bool
}

// NewHandle returns a Handle over data. The Handle takes ownership of data;
// callers pass a clone when the original must stay untouched. ev is nil
// for init hooks.
func NewHandle(data Map, ev *Event) *Handle {
	if data == nil {
		data = Map{}
	}
	return &Handle{data: data, event: ev}
}

// Get returns the current value for key.
func (h *Handle) Get(key string) (Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.data[key]
	return v, ok
}

// Has reports whether key is present.
func (h *Handle) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Set stores v under key.
func (h *Handle) Set(key string, v Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.revoked {
		return
	}
	h.data[key] = v
}

// SetAny converts x with FromAny and stores it under key.
func (h *Handle) SetAny(key string, x any) error {
	v, err := FromAny(x)
	if err != nil {
		if se, ok := err.(*SerializationError); ok {
			se.Key = join(key, se.Key)
		}
		return err
	}
	h.Set(key, v)
	return nil
}

// Delete removes key.
func (h *Handle) Delete(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.revoked {
		return
	}
	delete(h.data, key)
}

// Keys returns the present keys in lexicographic order.
func (h *Handle) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data.Keys()
}

// Len returns the number of keys.
func (h *Handle) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.data)
}

// Event returns the event being handled. ok is false inside init hooks.
func (h *Handle) Event() (ev Event, ok bool) {
	if h.event == nil {
		return Event{}, false
	}
	return *h.event, true
}

// Snapshot returns a copy of the working state.
func (h *Handle) Snapshot() Map {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data.Clone()
}

// Revoke ends the Handle's invocation and returns the working state as it
// stands. Later mutations are ignored. Revoke is idempotent.
func (h *Handle) Revoke() Map {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revoked = true
	return h.data.Clone()
}

// Revoked reports whether the Handle has been revoked.
func (h *Handle) Revoked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.revoked
}
