// Package server is the per-session runtime: it owns sessions, serializes
// their events, contains handler failures and streams state to clients.
//
// # Architecture
//
//   - SessionStore: live sessions keyed by id
//   - SessionManager: lifecycle (connect, init, reconnect, teardown, idle
//     sweep), event dispatch and the sync channel
//   - Server: HTTP surface with the WebSocket endpoint, health checks and
//     Prometheus metrics
//
// # Session Lifecycle
//
// A session is created when a client connects to a route. The route's Init
// hook runs once over the route defaults; whatever state it leaves behind is
// committed even if it fails, and the client receives a full state_init
// snapshot. When the connection drops the session is detached for the
// resume window, after which it is closed.
//
// # Event Processing
//
// Events of one session run strictly one at a time in arrival order; events
// of different sessions run in parallel on a shared worker pool. Each event
// runs the route's Event hook over a working copy of the committed state.
// On success the copy is diffed against the committed state, committed and
// the delta pushed; on failure (error, panic, timeout, unserializable value)
// the copy is discarded and one error message is pushed.
//
// A session accepts at most SessionConfig.MaxEventQueue unfinished events,
// counting the one being processed. Further events fail fast with
// *BusyError.
package server
