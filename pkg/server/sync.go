package server

import (
	"github.com/atrilabs/atri-runtime/pkg/diff"
	"github.com/atrilabs/atri-runtime/pkg/protocol"
)

// Conn is the outbound half of a client connection.
//
// Send must not block on the network: the session lock is held while it
// runs so that messages reach the connection in the order they were
// produced. A Conn that cannot keep up should drop the connection rather
// than wait.
type Conn interface {
	Send(m *protocol.Message) error
	Close() error
}

// pushLocked stamps m with the session's next sequence number and hands it
// to the attached connection. Messages for a detached session are dropped;
// the client receives a snapshot when it reconnects. The caller holds s.mu.
func (sm *SessionManager) pushLocked(s *Session, m *protocol.Message) {
	if m.Type.Sequenced() {
		s.seq++
		m.Seq = s.seq
	}
	if s.conn == nil {
		sm.metrics.messageDropped()
		s.logger.Debug("no connection, message dropped", "type", m.Type, "seq", m.Seq)
		return
	}
	if err := s.conn.Send(m); err != nil {
		s.logger.Warn("send failed", "type", m.Type, "seq", m.Seq, "error", err)
		return
	}
	sm.metrics.messageSent(m.Type)
}

// snapshotLocked returns a state_init message for the committed state. The
// caller holds s.mu.
func (s *Session) snapshotLocked() *protocol.Message {
	return protocol.NewStateInit(s.ID, s.Route.Path, s.state.Clone())
}

// PushError reports err to the session's client as an error message.
func (sm *SessionManager) PushError(s *Session, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return
	}
	sm.pushLocked(s, protocol.NewError(s.ID, CodeFor(err), clientMessage(err)))
}

// Resync pushes a fresh state_init snapshot, for clients that detected a
// sequence gap.
func (sm *SessionManager) Resync(sessionID string) error {
	s := sm.sessions.Get(sessionID)
	if s == nil {
		return &SessionNotFoundError{SessionID: sessionID}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return &SessionNotFoundError{SessionID: sessionID}
	}
	if s.status == StatusInitializing {
		// The snapshot follows when Init completes.
		return nil
	}
	sm.pushLocked(s, s.snapshotLocked())
	return nil
}

func newDeltaMessage(sessionID string, delta diff.Delta) *protocol.Message {
	return protocol.NewStateDelta(sessionID, delta)
}

func newCloseMessage(sessionID, reason string) *protocol.Message {
	return protocol.NewClose(sessionID, reason)
}
