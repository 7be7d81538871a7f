package state

import "sort"

// Map is the state of a session keyed by name.
type Map map[string]Value

// Clone returns a copy of m. Values are immutable, so the copy is independent
// of m. Clone of a nil Map is an empty Map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal reports whether m and o hold the same keys with equal values.
func (m Map) Equal(o Map) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Keys returns the keys of m in lexicographic order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate returns a *SerializationError for the first key, in key order,
// that is empty or whose value cannot be serialized.
func (m Map) Validate() error {
	for _, k := range m.Keys() {
		if err := Validate(k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

// Validate returns a *SerializationError if key is empty or v, stored under
// key, cannot be serialized.
func Validate(key string, v Value) error {
	if key == "" {
		return &SerializationError{Reason: "empty state key"}
	}
	return v.check(key)
}

// Plain converts m to a map of plain Go values.
func (m Map) Plain() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}
