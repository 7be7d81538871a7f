package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atrilabs/atri-runtime/pkg/protocol"
)

// wsConn adapts a WebSocket to Conn. Send only queues; writePump owns all
// writes to the socket.
type wsConn struct {
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	config *SessionConfig
	logger *slog.Logger

	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, config *SessionConfig, logger *slog.Logger) *wsConn {
	return &wsConn{
		ws:     ws,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
		config: config,
		logger: logger,
	}
}

// Send encodes m and queues it for the write pump. A full buffer closes the
// connection.
func (c *wsConn) Send(m *protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("send buffer full, closing connection", "buffer", cap(c.send))
		c.Close()
		return ErrSlowConsumer
	}
}

// Close stops the write pump, which flushes what is queued and closes the
// socket.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writePump writes queued messages and heartbeat pings until Close.
func (c *wsConn) writePump() {
	defer c.ws.Close()

	var heartbeat <-chan time.Time
	if c.config.HeartbeatInterval > 0 {
		ticker := time.NewTicker(c.config.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				c.logger.Debug("write error", "error", err)
				c.Close()
				return
			}

		case now := <-heartbeat:
			data, err := protocol.Encode(protocol.NewPing(now))
			if err == nil {
				err = c.write(data)
			}
			if err != nil {
				c.logger.Debug("ping error", "error", err)
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return
		}
	}
}

func (c *wsConn) write(data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// flush writes what is still queued, best effort.
func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			if c.write(data) != nil {
				return
			}
		default:
			return
		}
	}
}

// readLoop receives client frames for s until the socket fails or the
// client closes the session.
func (srv *Server) readLoop(s *Session, ws *websocket.Conn, conn *wsConn) {
	defer srv.sessions.Disconnect(s.ID, conn)
	defer conn.Close()

	cfg := srv.sessions.Config()
	ws.SetReadLimit(cfg.MaxMessageSize)

	for {
		ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "error", err)
			}
			return
		}

		msg, err := protocol.Decode(data, int(cfg.MaxMessageSize))
		if err != nil {
			s.logger.Debug("invalid message", "error", err)
			_ = conn.Send(protocol.NewError(s.ID, protocol.CodeInvalidMessage, err.Error()))
			continue
		}

		switch msg.Type {
		case protocol.TypeEvent:
			env := NewEnvelope(s.ID, msg.EventType, msg.EventPayload())
			if err := srv.sessions.Dispatch(env); err != nil {
				// Rejections answer the event directly and carry no sequence number.
				_ = conn.Send(protocol.NewError(s.ID, CodeFor(err), err.Error()))
			}

		case protocol.TypePing:
			s.Touch()
			_ = conn.Send(protocol.NewPong(msg))

		case protocol.TypePong:
			s.Touch()

		case protocol.TypeResync:
			s.Touch()
			if err := srv.sessions.Resync(s.ID); err != nil {
				_ = conn.Send(protocol.NewError(s.ID, CodeFor(err), err.Error()))
			}

		case protocol.TypeClose:
			srv.sessions.Close(s.ID, ReasonClientClosed)
			return

		default:
			_ = conn.Send(protocol.NewError(s.ID, protocol.CodeInvalidMessage,
				"unexpected message type "+string(msg.Type)))
		}
	}
}
