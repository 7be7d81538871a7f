package diff

import (
	"sort"

	"github.com/atrilabs/atri-runtime/pkg/state"
)

// Delta is an ordered sequence of operations transforming one snapshot into
// another.
type Delta []Op

// Diff returns the operations that transform prev into next: a Set for every
// key that is new or whose value is not structurally equal, and a Delete for
// every key that disappeared. Operations are sorted by key.
func Diff(prev, next state.Map) Delta {
	var delta Delta
	for k, nv := range next {
		pv, ok := prev[k]
		if !ok || !pv.Equal(nv) {
			delta = append(delta, Set(k, nv))
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			delta = append(delta, Delete(k))
		}
	}
	sort.Slice(delta, func(i, j int) bool { return delta[i].Key < delta[j].Key })
	return delta
}

// Empty reports whether d changes nothing.
func (d Delta) Empty() bool { return len(d) == 0 }

// Keys returns the keys touched by d, in order.
func (d Delta) Keys() []string {
	keys := make([]string, len(d))
	for i, op := range d {
		keys[i] = op.Key
	}
	return keys
}

// Equal reports whether d and o hold the same operations in the same order.
func (d Delta) Equal(o Delta) bool {
	if len(d) != len(o) {
		return false
	}
	for i := range d {
		if !d[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Apply returns a new map with d applied to m. m is not modified.
func (d Delta) Apply(m state.Map) state.Map {
	out := m.Clone()
	for _, op := range d {
		switch op.Kind {
		case OpSet:
			out[op.Key] = op.Value
		case OpDelete:
			delete(out, op.Key)
		}
	}
	return out
}

// Validate returns a *state.SerializationError for the first Set whose value
// cannot be serialized.
func (d Delta) Validate() error {
	for _, op := range d {
		if op.Kind != OpSet {
			continue
		}
		if err := state.Validate(op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}
