// Package client is a Go client for the session runtime.
//
// A Client opens a session on one route, mirrors the session state from the
// state_init and state_delta messages it receives, and sends events. When the
// connection drops it reconnects with exponential backoff and resumes the
// same session; the server answers with a fresh snapshot.
//
//	c, err := client.Dial(ctx, client.Options{
//	    URL:   "ws://localhost:8080/ws",
//	    Route: "/counter",
//	})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	c.Send("increment", state.Null())
//	st, err := c.Wait(ctx, func(m state.Map) bool { return m["count"].Equal(state.Int(1)) })
//
// A sequence gap, which only happens when messages were lost, makes the
// client drop further deltas and request a resync.
package client
