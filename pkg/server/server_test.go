package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrilabs/atri-runtime/pkg/protocol"
	"github.com/atrilabs/atri-runtime/pkg/routes"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

func newTestServer(t *testing.T, defs ...routes.Route) (*Server, *httptest.Server) {
	t.Helper()
	return newTestServerWithConfig(t, &ServerConfig{SessionConfig: testConfig()}, defs...)
}

func newTestServerWithConfig(t *testing.T, cfg *ServerConfig, defs ...routes.Route) (*Server, *httptest.Server) {
	t.Helper()
	reg := routes.NewRegistry()
	for _, d := range defs {
		require.NoError(t, reg.RegisterRoute(d))
	}
	srv, err := New(reg, cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMsg(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	m, err := protocol.Decode(data, 0)
	require.NoError(t, err)
	return m
}

func sendMsg(t *testing.T, ws *websocket.Conn, m *protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

func TestWebSocketRoundTrip(t *testing.T) {
	_, ts := newTestServer(t, counterRoute())
	ws := dial(t, ts, "route=/counter")

	snap := readMsg(t, ws)
	require.Equal(t, protocol.TypeStateInit, snap.Type)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Equal(t, "/counter", snap.Route)
	assert.NotEmpty(t, snap.SessionID)

	sendMsg(t, ws, protocol.NewEvent(snap.SessionID, "inc", state.Null()))
	delta := readMsg(t, ws)
	require.Equal(t, protocol.TypeStateDelta, delta.Type)
	assert.Equal(t, uint64(2), delta.Seq)
	require.Len(t, delta.Ops, 1)
	assert.Equal(t, "count", delta.Ops[0].Key)

	sendMsg(t, ws, protocol.NewEvent(snap.SessionID, "fail", state.Null()))
	failed := readMsg(t, ws)
	require.Equal(t, protocol.TypeError, failed.Type)
	assert.Equal(t, protocol.CodeHandlerError, failed.Code)
	assert.Equal(t, uint64(3), failed.Seq)

	sendMsg(t, ws, &protocol.Message{Type: protocol.TypePing, Timestamp: 42})
	pong := readMsg(t, ws)
	assert.Equal(t, protocol.TypePong, pong.Type)
	assert.Equal(t, int64(42), pong.Timestamp)

	sendMsg(t, ws, protocol.NewResync(snap.SessionID))
	again := readMsg(t, ws)
	require.Equal(t, protocol.TypeStateInit, again.Type)
	assert.Equal(t, uint64(4), again.Seq)
	assert.Equal(t, float64(1), countOf(t, again.State))
}

func TestWebSocketInvalidMessage(t *testing.T) {
	_, ts := newTestServer(t, counterRoute())
	ws := dial(t, ts, "route=/counter")
	readMsg(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	m := readMsg(t, ws)
	assert.Equal(t, protocol.TypeError, m.Type)
	assert.Equal(t, protocol.CodeInvalidMessage, m.Code)
	assert.Zero(t, m.Seq)
}

func TestWebSocketUnknownRoute(t *testing.T) {
	_, ts := newTestServer(t, counterRoute())
	ws := dial(t, ts, "route=/nowhere")

	m := readMsg(t, ws)
	assert.Equal(t, protocol.TypeError, m.Type)
	assert.Equal(t, protocol.CodeUnknownRoute, m.Code)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebSocketResume(t *testing.T) {
	srv, ts := newTestServer(t, counterRoute())
	first := dial(t, ts, "route=/counter")
	snap := readMsg(t, first)
	sendMsg(t, first, protocol.NewEvent(snap.SessionID, "inc", state.Null()))
	readMsg(t, first)
	first.Close()

	require.Eventually(t, func() bool {
		s := srv.Sessions().Get(snap.SessionID)
		return s != nil && s.IsDetached()
	}, 2*time.Second, 5*time.Millisecond)

	second := dial(t, ts, "route=/counter&session="+snap.SessionID)
	resumed := readMsg(t, second)
	require.Equal(t, protocol.TypeStateInit, resumed.Type)
	assert.Equal(t, snap.SessionID, resumed.SessionID)
	assert.Equal(t, float64(1), countOf(t, resumed.State))
	assert.Equal(t, 1, srv.Sessions().Count())
}

func TestWebSocketResumeFallsBackToNewSession(t *testing.T) {
	srv, ts := newTestServer(t, counterRoute())
	ws := dial(t, ts, "route=/counter&session=gone")

	m := readMsg(t, ws)
	require.Equal(t, protocol.TypeStateInit, m.Type)
	assert.NotEqual(t, "gone", m.SessionID)
	assert.Equal(t, 1, srv.Sessions().Count())
}

func TestWebSocketResumeWithoutRoute(t *testing.T) {
	_, ts := newTestServer(t, counterRoute())
	ws := dial(t, ts, "session=gone")

	m := readMsg(t, ws)
	assert.Equal(t, protocol.TypeError, m.Type)
	assert.Equal(t, protocol.CodeSessionNotFound, m.Code)
}

func TestWebSocketClientClose(t *testing.T) {
	srv, ts := newTestServer(t, counterRoute())
	ws := dial(t, ts, "route=/counter")
	snap := readMsg(t, ws)

	sendMsg(t, ws, protocol.NewClose(snap.SessionID, ""))
	m := readMsg(t, ws)
	assert.Equal(t, protocol.TypeClose, m.Type)
	assert.Equal(t, ReasonClientClosed, m.Message)
	assert.Nil(t, srv.Sessions().Get(snap.SessionID))
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t, counterRoute())

	code, _ := get(t, ts.URL+"/live")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get(t, ts.URL+"/ready")
	assert.Equal(t, http.StatusOK, code)
}

func TestReadyFailsWithoutRoutes(t *testing.T) {
	_, ts := newTestServer(t)
	code, _ := get(t, ts.URL+"/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, counterRoute())
	ws := dial(t, ts, "route=/counter")
	readMsg(t, ws)

	code, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "atri_sessions_active 1")
	assert.Contains(t, body, `atri_init_total{route="/counter",status="ok"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestWebSocketEmptySnapshotCarriesState(t *testing.T) {
	_, ts := newTestServer(t, routes.Route{Path: "/"})
	ws := dial(t, ts, "route=/")

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":{}`)
}

func TestConfiguredLoggerReachesSessions(t *testing.T) {
	var buf syncBuffer
	cfg := &ServerConfig{
		SessionConfig: testConfig(),
		Logger:        slog.New(slog.NewTextHandler(&buf, nil)),
	}
	_, ts := newTestServerWithConfig(t, cfg, counterRoute())
	ws := dial(t, ts, "route=/counter")
	readMsg(t, ws)

	assert.Contains(t, buf.String(), "session created")
	assert.Contains(t, buf.String(), "component=sessions")
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
