package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Options configures a Client.
type Options struct {
	// URL is the WebSocket endpoint, e.g. "ws://localhost:8080/ws".
	URL string

	// Route is the route the session runs.
	Route string

	// Header is sent with every handshake.
	Header http.Header

	// Dialer opens connections.
	// Default: websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// HandshakeTimeout bounds the wait for the initial snapshot.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ReconnectInterval is the first reconnect delay.
	// Default: 100 milliseconds.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the reconnect delay.
	// Default: 10 seconds.
	MaxReconnectInterval time.Duration

	// ReconnectTimeout is how long the client keeps trying to reconnect.
	// Default: 1 minute.
	ReconnectTimeout time.Duration

	// DisableReconnect ends the client on the first connection loss.
	DisableReconnect bool

	// UpdateBuffer is the capacity of the Updates channel. Updates that do
	// not fit are dropped.
	// Default: 64.
	UpdateBuffer int

	// Logger receives connection events.
	// Default: slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReconnectInterval == 0 {
		o.ReconnectInterval = 100 * time.Millisecond
	}
	if o.MaxReconnectInterval == 0 {
		o.MaxReconnectInterval = 10 * time.Second
	}
	if o.ReconnectTimeout == 0 {
		o.ReconnectTimeout = time.Minute
	}
	if o.UpdateBuffer == 0 {
		o.UpdateBuffer = 64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
