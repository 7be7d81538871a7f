// Package protocol implements the JSON wire protocol between the runtime and
// its clients.
//
// Every WebSocket text frame carries one Message. The Type field selects
// which other fields are meaningful:
//
//	state_init   server → client  full snapshot (Seq, Route, State)
//	state_delta  server → client  ordered key-level changes (Seq, Ops)
//	error        server → client  contained failure (Seq, Code, Message)
//	close        server → client  session ended (Message)
//	event        client → server  user event (EventType, Payload)
//	resync       client → server  request a fresh state_init
//	ping, pong   either way       heartbeat (Timestamp)
//
// Server messages carry a per-session sequence number that increases by one
// for every state_init, state_delta and error. A client that observes a gap
// sends resync and replaces its state with the next snapshot.
package protocol
