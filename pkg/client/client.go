package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/atrilabs/atri-runtime/pkg/diff"
	"github.com/atrilabs/atri-runtime/pkg/protocol"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

// Update is one change applied to the mirrored state, or an error reported
// by the server.
type Update struct {
	Type  protocol.MessageType
	Seq   uint64
	State state.Map  // the mirror after the update
	Ops   diff.Delta // for state_delta
	Err   *ServerError
}

// Client mirrors the state of one session.
type Client struct {
	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	sessionID string
	seq       uint64
	state     state.Map
	resyncing bool
	changed   chan struct{}
	err       error

	updates chan Update
	done    chan struct{}
}

// Dial opens a session on opts.Route and waits for its initial snapshot.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.URL == "" || opts.Route == "" {
		return nil, errors.New("client: URL and Route are required")
	}
	opts = opts.withDefaults()

	c := &Client{
		opts:    opts,
		logger:  opts.Logger.With("component", "client", "route", opts.Route),
		state:   state.Map{},
		changed: make(chan struct{}),
		updates: make(chan Update, opts.UpdateBuffer),
		done:    make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	conn, err := c.connect(ctx)
	if err != nil {
		c.cancel()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.run(conn)
	return c, nil
}

// connect dials the endpoint, resuming the current session if there is
// one, and applies the snapshot the server sends first. Errors that a retry
// cannot fix are wrapped with backoff.Permanent.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("client: parse URL: %w", err))
	}
	q := u.Query()
	q.Set("route", c.opts.Route)
	if id := c.SessionID(); id != "" {
		q.Set("session", id)
	}
	u.RawQuery = q.Encode()

	conn, resp, err := c.opts.Dialer.DialContext(ctx, u.String(), c.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		err = fmt.Errorf("client: dial %s: %w", u.Redacted(), err)
		if errors.Is(err, websocket.ErrBadHandshake) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: read snapshot: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	m, err := protocol.Decode(data, 0)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: read snapshot: %w", err)
	}
	switch m.Type {
	case protocol.TypeStateInit:
		c.apply(m)
		c.logger.Debug("connected", "session_id", m.SessionID, "seq", m.Seq)
		return conn, nil
	case protocol.TypeError:
		conn.Close()
		return nil, backoff.Permanent(serverError(m))
	default:
		conn.Close()
		return nil, fmt.Errorf("client: expected %s, got %s", protocol.TypeStateInit, m.Type)
	}
}

// run reads from conn and reconnects until the client is closed, the
// server closes the session, or reconnecting fails.
func (c *Client) run(conn *websocket.Conn) {
	defer close(c.done)
	for {
		err := c.readLoop(conn)
		conn.Close()

		c.mu.Lock()
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()

		var sessionClosed *SessionClosedError
		switch {
		case closed:
			c.finish(ErrClosed)
			return
		case errors.As(err, &sessionClosed), c.opts.DisableReconnect:
			c.finish(err)
			return
		}

		c.logger.Warn("connection lost, reconnecting", "error", err)
		conn, err = c.reconnect()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				c.finish(ErrClosed)
				return
			}
			c.logger.Error("reconnect failed", "error", err)
			c.finish(err)
			return
		}
		c.logger.Info("reconnected", "session_id", c.SessionID())
	}
}

func (c *Client) reconnect() (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectInterval
	b.MaxInterval = c.opts.MaxReconnectInterval
	b.MaxElapsedTime = c.opts.ReconnectTimeout

	var conn *websocket.Conn
	err := backoff.RetryNotify(func() error {
		var err error
		conn, err = c.connect(c.ctx)
		return err
	}, backoff.WithContext(b, c.ctx), func(err error, next time.Duration) {
		c.logger.Debug("reconnect attempt failed", "error", err, "retry_in", next)
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return nil, ErrClosed
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m, err := protocol.Decode(data, 0)
		if err != nil {
			c.logger.Debug("invalid message", "error", err)
			continue
		}

		switch m.Type {
		case protocol.TypeStateInit, protocol.TypeStateDelta, protocol.TypeError:
			if c.apply(m) {
				c.logger.Warn("sequence gap, requesting resync", "seq", m.Seq)
				if err := c.write(conn, protocol.NewResync(c.SessionID())); err != nil {
					return err
				}
			}
		case protocol.TypePing:
			if err := c.write(conn, protocol.NewPong(m)); err != nil {
				return err
			}
		case protocol.TypeClose:
			return &SessionClosedError{SessionID: m.SessionID, Reason: m.Message}
		}
	}
}

// apply folds m into the mirror. It reports true when m reveals a sequence
// gap; the mirror then ignores sequenced messages until the next snapshot.
func (c *Client) apply(m *protocol.Message) (gap bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	u := Update{Type: m.Type, Seq: m.Seq}
	switch {
	case m.Type == protocol.TypeStateInit:
		c.sessionID = m.SessionID
		c.state = m.State.Clone()
		c.seq = m.Seq
		c.resyncing = false
	case m.Seq == 0:
		// Unsequenced rejection of a single event.
	case c.resyncing:
		return false
	case m.Seq != c.seq+1:
		c.resyncing = true
		return true
	default:
		c.seq = m.Seq
		if m.Type == protocol.TypeStateDelta {
			c.state = m.Ops.Apply(c.state)
			u.Ops = m.Ops
		}
	}
	if m.Type == protocol.TypeError {
		u.Err = serverError(m)
	}
	u.State = c.state.Clone()
	c.publishLocked(u)
	return false
}

func (c *Client) publishLocked(u Update) {
	select {
	case c.updates <- u:
	default:
		c.logger.Debug("update dropped", "type", u.Type, "seq", u.Seq)
	}
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Client) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	close(c.changed)
	c.changed = make(chan struct{})
	close(c.updates)
	c.cancel()
}

func (c *Client) write(conn *websocket.Conn, m *protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Send sends an event to the session. It returns ErrNotConnected while the
// client is reconnecting.
func (c *Client) Send(eventType string, payload state.Value) error {
	c.mu.Lock()
	conn, id, closed := c.conn, c.sessionID, c.closed || c.err != nil
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, protocol.NewEvent(id, eventType, payload))
}

// SendAny converts payload with state.FromAny and sends it.
func (c *Client) SendAny(eventType string, payload any) error {
	v, err := state.FromAny(payload)
	if err != nil {
		return err
	}
	return c.Send(eventType, v)
}

// State returns a copy of the mirrored state.
func (c *Client) State() state.Map {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SessionID returns the id of the current session.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Seq returns the sequence number of the last applied message.
func (c *Client) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Updates returns the channel of applied updates. It is closed when the
// client stops.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Wait blocks until cond holds for the mirrored state and returns that
// state. It fails when ctx ends or the client stops first.
func (c *Client) Wait(ctx context.Context, cond func(state.Map) bool) (state.Map, error) {
	for {
		c.mu.Lock()
		st, changed, err := c.state.Clone(), c.changed, c.err
		c.mu.Unlock()

		if cond(st) {
			return st, nil
		}
		if err != nil {
			return nil, err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Done is closed when the client stops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the client stopped, or nil while it runs.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the session and stops the client.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	conn, id := c.conn, c.sessionID
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		if err := c.write(conn, protocol.NewClose(id, "")); err != nil {
			conn.Close()
		}
	}

	select {
	case <-c.done:
	case <-time.After(c.opts.WriteTimeout):
		if conn != nil {
			conn.Close()
		}
		<-c.done
	}
	return nil
}

// dropConnection closes the socket without ending the session.
func (c *Client) dropConnection() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
