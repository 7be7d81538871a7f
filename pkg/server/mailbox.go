package server

import (
	"github.com/Workiva/go-datastructures/queue"
)

// mailbox is the FIFO of envelopes waiting for a session. Callers hold the
// session lock; the capacity bound is enforced by the dispatcher.
type mailbox struct {
	q *queue.Queue
}

func newMailbox(hint int) *mailbox {
	if hint > 64 {
		hint = 64
	}
	return &mailbox{q: queue.New(int64(hint))}
}

func (m *mailbox) push(env *Envelope) error {
	return m.q.Put(env)
}

// pop returns the oldest envelope, or nil when the mailbox is empty or
// disposed.
func (m *mailbox) pop() *Envelope {
	if m.q.Len() == 0 {
		return nil
	}
	items, err := m.q.Get(1)
	if err != nil || len(items) == 0 {
		return nil
	}
	return items[0].(*Envelope)
}

func (m *mailbox) len() int {
	return int(m.q.Len())
}

// dispose discards the pending envelopes and returns how many there were.
// Later pushes fail with queue.ErrDisposed.
func (m *mailbox) dispose() int {
	if m.q.Disposed() {
		return 0
	}
	return len(m.q.Dispose())
}
