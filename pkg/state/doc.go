// Package state defines the values a route's hooks read and write.
//
// A [Value] is a tagged union over null, boolean, number, string, list and
// map. Values are immutable: constructors copy their inputs and accessors
// return copies, so a Value can never contain itself.
//
// A [Map] is the complete state of one session, keyed by state name.
//
// Hooks never touch a session's committed Map directly. They receive a
// [Handle] over a working copy; the runtime decides afterwards whether the
// working copy is committed or discarded.
//
//	func HandleEvent(ctx context.Context, h *state.Handle) error {
//	    n, _ := h.Get("count")
//	    c, _ := n.AsNumber()
//	    h.Set("count", state.Number(c+1))
//	    return nil
//	}
package state
