package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/atrilabs/atri-runtime/pkg/protocol"
	"github.com/atrilabs/atri-runtime/pkg/routes"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

// mockConn records the messages pushed to a client.
type mockConn struct {
	mu     sync.Mutex
	msgs   []*protocol.Message
	closed bool
}

func newMockConn() *mockConn {
	return &mockConn{}
}

func (c *mockConn) Send(m *protocol.Message) error {
	if _, err := protocol.Encode(m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) messages() []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protocol.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// waitFor blocks until at least n messages arrived.
func (c *mockConn) waitFor(t *testing.T, n int) []*protocol.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs := c.messages()
		if len(msgs) >= n {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d messages, want %d: %v", len(msgs), n, describe(msgs))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func describe(msgs []*protocol.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Type) + ":" + string(m.Code)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.HandlerTimeout = time.Second
	cfg.CleanupInterval = time.Hour
	return cfg
}

func newTestManager(t *testing.T, cfg *SessionConfig, defs ...routes.Route) *SessionManager {
	t.Helper()
	reg := routes.NewRegistry()
	for _, d := range defs {
		if err := reg.RegisterRoute(d); err != nil {
			t.Fatalf("RegisterRoute: %v", err)
		}
	}
	sm, err := NewSessionManager(reg, cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	t.Cleanup(sm.Shutdown)
	return sm
}

// counterRoute increments "count" on "inc", appends the payload to "log" on
// "append", fails on "fail" and panics on "panic".
func counterRoute() routes.Route {
	return routes.Route{
		Path: "/counter",
		Init: func(ctx context.Context, h *state.Handle) error {
			h.Set("count", state.Int(0))
			return nil
		},
		Event: func(ctx context.Context, h *state.Handle) error {
			ev, _ := h.Event()
			switch ev.Type {
			case "inc":
				v, _ := h.Get("count")
				n, _ := v.AsNumber()
				h.Set("count", state.Number(n+1))
			case "append":
				v, _ := h.Get("log")
				items, _ := v.AsList()
				h.Set("log", state.List(append(items, ev.Payload)...))
			case "fail":
				h.Set("count", state.Int(-1))
				return io.ErrUnexpectedEOF
			case "panic":
				h.Set("count", state.Int(-2))
				panic("boom")
			}
			return nil
		},
	}
}

func countOf(t *testing.T, m state.Map) float64 {
	t.Helper()
	n, ok := m["count"].AsNumber()
	if !ok {
		t.Fatalf("count = %v, want a number", m["count"])
	}
	return n
}
