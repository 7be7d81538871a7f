package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionConfig holds configuration for individual sessions.
type SessionConfig struct {
	// Timeouts

	// ReadTimeout is the maximum time to wait for a message from the client.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// IdleTimeout is the time after which an inactive session is closed.
	// 0 disables idle expiry.
	// Default: 5 minutes.
	IdleTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings. 0 disables pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// HandlerTimeout bounds a single Init or Event hook invocation.
	// 0 means no timeout.
	// Default: 5 seconds.
	HandlerTimeout time.Duration

	// ResumeWindow is how long a session survives without a connection.
	// 0 closes sessions as soon as their connection drops.
	// Default: 30 seconds.
	ResumeWindow time.Duration

	// CleanupInterval is the interval of the idle and resume-window sweep.
	// Default: 30 seconds.
	CleanupInterval time.Duration

	// Limits

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxEventQueue bounds the unfinished events of one session, counting
	// the event being processed.
	// Default: 256.
	MaxEventQueue int

	// SendBuffer is the number of outgoing messages buffered per connection.
	// A connection whose buffer fills up is closed.
	// Default: 256.
	SendBuffer int

	// WorkerPoolSize caps the number of events processed concurrently across
	// all sessions. 0 means unbounded.
	// Default: 0.
	WorkerPoolSize int
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       5 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		HandlerTimeout:    5 * time.Second,
		ResumeWindow:      30 * time.Second,
		CleanupInterval:   30 * time.Second,
		MaxMessageSize:    64 * 1024, // 64KB
		MaxEventQueue:     256,
		SendBuffer:        256,
		WorkerPoolSize:    0,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Validate reports invalid settings.
func (c *SessionConfig) Validate() error {
	var errs []error
	if c.MaxEventQueue < 1 {
		errs = append(errs, fmt.Errorf("MaxEventQueue must be at least 1, got %d", c.MaxEventQueue))
	}
	if c.SendBuffer < 1 {
		errs = append(errs, fmt.Errorf("SendBuffer must be at least 1, got %d", c.SendBuffer))
	}
	if c.WorkerPoolSize < 0 {
		errs = append(errs, fmt.Errorf("WorkerPoolSize must not be negative, got %d", c.WorkerPoolSize))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("CleanupInterval must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"ReadTimeout":       c.ReadTimeout,
		"WriteTimeout":      c.WriteTimeout,
		"IdleTimeout":       c.IdleTimeout,
		"HeartbeatInterval": c.HeartbeatInterval,
		"HandlerTimeout":    c.HandlerTimeout,
		"ResumeWindow":      c.ResumeWindow,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

// fillDefaults sets every zero-valued limit to its default. Durations where
// zero is meaningful are left alone.
func (c *SessionConfig) fillDefaults() {
	d := DefaultSessionConfig()
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.MaxEventQueue == 0 {
		c.MaxEventQueue = d.MaxEventQueue
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = d.SendBuffer
	}
}

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":8080" or "localhost:3000").
	// Default: ":8080".
	Address string

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// SessionConfig is the configuration for individual sessions.
	// Default: DefaultSessionConfig().
	SessionConfig *SessionConfig

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// MetricsRegistry receives the runtime and health check metrics and is
	// served on /metrics.
	// Default: a new registry with Go and process collectors.
	MetricsRegistry *prometheus.Registry

	// MetricsNamespace prefixes every metric name.
	// Default: "atri".
	MetricsNamespace string

	// MaxGoroutines fails the liveness check above this count. 0 disables it.
	MaxGoroutines int

	// MaxMemoryBytes fails the readiness check when the process RSS exceeds
	// it. 0 disables it.
	MaxMemoryBytes uint64

	// Logger receives the server and session logs.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8080",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		SessionConfig:     DefaultSessionConfig(),
		ShutdownTimeout:   30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MetricsNamespace:  "atri",
	}
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.SessionConfig = c.SessionConfig.Clone()
	return &clone
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
// Requests without an Origin header (non-browser clients) are accepted.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return r.Host != "" && originURL.Host == r.Host
}

// AllowOrigins returns a CheckOrigin function accepting same-origin requests
// and the listed origins. "*" accepts everything.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSuffix(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		if allowed["*"] || SameOriginCheck(r) {
			return true
		}
		return allowed[strings.ToLower(r.Header.Get("Origin"))]
	}
}
