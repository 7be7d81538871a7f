package server

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// SessionStore holds the live sessions keyed by id. It is safe for
// concurrent use.
type SessionStore struct {
	sessions cmap.ConcurrentMap[string, *Session]
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: cmap.New[*Session]()}
}

// Add stores s under its id. It reports false if the id is taken.
func (st *SessionStore) Add(s *Session) bool {
	return st.sessions.SetIfAbsent(s.ID, s)
}

// Get returns the session for id, or nil.
func (st *SessionStore) Get(id string) *Session {
	s, ok := st.sessions.Get(id)
	if !ok {
		return nil
	}
	return s
}

// Remove deletes and returns the session for id.
func (st *SessionStore) Remove(id string) (*Session, bool) {
	return st.sessions.Pop(id)
}

// Count returns the number of sessions.
func (st *SessionStore) Count() int {
	return st.sessions.Count()
}

// All returns the sessions in no particular order.
func (st *SessionStore) All() []*Session {
	out := make([]*Session, 0, st.sessions.Count())
	for item := range st.sessions.IterBuffered() {
		out = append(out, item.Val)
	}
	return out
}

// ForEach calls fn for each session until fn returns false.
func (st *SessionStore) ForEach(fn func(*Session) bool) {
	for _, s := range st.All() {
		if !fn(s) {
			return
		}
	}
}
