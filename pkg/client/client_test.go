package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrilabs/atri-runtime/pkg/diff"
	"github.com/atrilabs/atri-runtime/pkg/protocol"
	"github.com/atrilabs/atri-runtime/pkg/routes"
	"github.com/atrilabs/atri-runtime/pkg/server"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

func counter() routes.Route {
	return routes.Route{
		Path:     "/counter",
		Defaults: state.Map{"count": state.Int(0)},
		Event: func(ctx context.Context, h *state.Handle) error {
			ev, _ := h.Event()
			if ev.Type == "inc" {
				v, _ := h.Get("count")
				n, _ := v.AsNumber()
				h.Set("count", state.Number(n+1))
			}
			return nil
		},
	}
}

func startServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	reg := routes.NewRegistry()
	require.NoError(t, reg.RegisterRoute(counter()))

	cfg := server.DefaultServerConfig()
	cfg.SessionConfig.CleanupInterval = time.Hour
	srv, err := server.New(reg, cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialCounter(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, Options{
		URL:               url,
		Route:             "/counter",
		ReconnectInterval: 10 * time.Millisecond,
		ReconnectTimeout:  5 * time.Second,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func countIs(n int) func(state.Map) bool {
	return func(m state.Map) bool { return m["count"].Equal(state.Int(n)) }
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDialReceivesSnapshot(t *testing.T) {
	srv, url := startServer(t)
	c := dialCounter(t, url)

	assert.NotEmpty(t, c.SessionID())
	assert.Equal(t, uint64(1), c.Seq())
	assert.True(t, c.State().Equal(state.Map{"count": state.Int(0)}))
	assert.NotNil(t, srv.Sessions().Get(c.SessionID()))

	u := <-c.Updates()
	assert.Equal(t, protocol.TypeStateInit, u.Type)
}

func TestSendMirrorsDeltas(t *testing.T) {
	_, url := startServer(t)
	c := dialCounter(t, url)
	<-c.Updates()

	require.NoError(t, c.Send("inc", state.Null()))
	require.NoError(t, c.SendAny("inc", nil))

	st, err := c.Wait(waitCtx(t), countIs(2))
	require.NoError(t, err)
	assert.Equal(t, float64(2), mustNumber(t, st["count"]))
	assert.Equal(t, uint64(3), c.Seq())

	u := <-c.Updates()
	assert.Equal(t, protocol.TypeStateDelta, u.Type)
	assert.Equal(t, diff.Delta{diff.Set("count", state.Int(1))}, u.Ops)
}

func TestDialUnknownRoute(t *testing.T) {
	_, url := startServer(t)
	_, err := Dial(context.Background(), Options{URL: url, Route: "/missing"})
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, protocol.CodeUnknownRoute, se.Code)
}

func TestDialRequiresURLAndRoute(t *testing.T) {
	_, err := Dial(context.Background(), Options{URL: "ws://localhost/ws"})
	assert.Error(t, err)
}

func TestReconnectResumesSession(t *testing.T) {
	srv, url := startServer(t)
	c := dialCounter(t, url)
	id := c.SessionID()

	require.NoError(t, c.Send("inc", state.Null()))
	_, err := c.Wait(waitCtx(t), countIs(1))
	require.NoError(t, err)

	c.dropConnection()

	require.Eventually(t, func() bool {
		return c.Send("inc", state.Null()) == nil
	}, 5*time.Second, 10*time.Millisecond)

	_, err = c.Wait(waitCtx(t), countIs(2))
	require.NoError(t, err)
	assert.Equal(t, id, c.SessionID())
	assert.Equal(t, 1, srv.Sessions().Count())
}

func TestServerCloseStopsClient(t *testing.T) {
	srv, url := startServer(t)
	c := dialCounter(t, url)

	srv.Sessions().Close(c.SessionID(), server.ReasonIdle)

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}
	var closed *SessionClosedError
	require.ErrorAs(t, c.Err(), &closed)
	assert.Equal(t, server.ReasonIdle, closed.Reason)
	assert.ErrorIs(t, c.Send("inc", state.Null()), ErrClosed)

	_, err := c.Wait(waitCtx(t), countIs(99))
	assert.Error(t, err)
}

func TestCloseEndsSession(t *testing.T) {
	srv, url := startServer(t)
	c := dialCounter(t, url)
	id := c.SessionID()

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Err(), ErrClosed)
	require.Eventually(t, func() bool {
		return srv.Sessions().Get(id) == nil
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Close())
}

func TestApplySequenceGap(t *testing.T) {
	c := &Client{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		changed: make(chan struct{}),
		updates: make(chan Update, 8),
	}
	c.apply(&protocol.Message{Type: protocol.TypeStateInit, SessionID: "s1", Seq: 1, State: state.Map{"a": state.Int(1)}})

	gap := c.apply(&protocol.Message{Type: protocol.TypeStateDelta, Seq: 3,
		Ops: diff.Delta{diff.Set("a", state.Int(3))}})
	assert.True(t, gap)
	assert.True(t, c.State().Equal(state.Map{"a": state.Int(1)}))

	// Deltas are ignored until the snapshot arrives.
	assert.False(t, c.apply(&protocol.Message{Type: protocol.TypeStateDelta, Seq: 4,
		Ops: diff.Delta{diff.Set("a", state.Int(4))}}))
	assert.True(t, c.State().Equal(state.Map{"a": state.Int(1)}))

	c.apply(&protocol.Message{Type: protocol.TypeStateInit, SessionID: "s1", Seq: 5, State: state.Map{"a": state.Int(4)}})
	assert.False(t, c.apply(&protocol.Message{Type: protocol.TypeStateDelta, Seq: 6,
		Ops: diff.Delta{diff.Delete("a")}}))
	assert.Empty(t, c.State())
	assert.Equal(t, uint64(6), c.Seq())

	// Unsequenced errors do not move the sequence.
	assert.False(t, c.apply(protocol.NewError("s1", protocol.CodeBusy, "busy")))
	assert.Equal(t, uint64(6), c.Seq())
}

func mustNumber(t *testing.T, v state.Value) float64 {
	t.Helper()
	n, ok := v.AsNumber()
	require.True(t, ok, "value %v is not a number", v)
	return n
}
