package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atrilabs/atri-runtime/pkg/protocol"
	"github.com/atrilabs/atri-runtime/pkg/routes"
)

// Server is the HTTP/WebSocket front of the runtime.
//
// Routes:
//
//	GET /ws?route=<path>[&session=<id>]  WebSocket; resumes <id> when it is live
//	GET /live, GET /ready                health checks
//	GET /metrics                         Prometheus exposition
type Server struct {
	sessions   *SessionManager
	config     *ServerConfig
	upgrader   websocket.Upgrader
	router     chi.Router
	health     healthcheck.Handler
	metrics    *Metrics
	registry   *prometheus.Registry
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server serving the routes of registry.
func New(registry *routes.Registry, config *ServerConfig) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	} else {
		// Fill in defaults for any unset fields
		config = config.Clone()
		defaults := DefaultServerConfig()
		if config.Address == "" {
			config.Address = defaults.Address
		}
		if config.ReadBufferSize == 0 {
			config.ReadBufferSize = defaults.ReadBufferSize
		}
		if config.WriteBufferSize == 0 {
			config.WriteBufferSize = defaults.WriteBufferSize
		}
		if config.CheckOrigin == nil {
			config.CheckOrigin = defaults.CheckOrigin
		}
		if config.SessionConfig == nil {
			config.SessionConfig = defaults.SessionConfig
		}
		if config.ShutdownTimeout == 0 {
			config.ShutdownTimeout = defaults.ShutdownTimeout
		}
		if config.ReadHeaderTimeout == 0 {
			config.ReadHeaderTimeout = defaults.ReadHeaderTimeout
		}
		if config.MetricsNamespace == "" {
			config.MetricsNamespace = defaults.MetricsNamespace
		}
	}

	promRegistry := config.MetricsRegistry
	if promRegistry == nil {
		promRegistry = prometheus.NewRegistry()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	base := config.Logger
	if base == nil {
		base = slog.Default()
	}
	logger := base.With("component", "server")
	metrics := NewMetrics(promRegistry, config.MetricsNamespace)

	sessions, err := NewSessionManager(registry, config.SessionConfig, base, metrics)
	if err != nil {
		return nil, err
	}

	s := &Server{
		sessions: sessions,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		health:   healthcheck.NewMetricsHandler(promRegistry, config.MetricsNamespace),
		metrics:  metrics,
		registry: promRegistry,
		logger:   logger,
	}
	s.registerChecks()
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.HandleWebSocket)
	r.Get("/live", s.health.LiveEndpoint)
	r.Get("/ready", s.health.ReadyEndpoint)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry: s.registry,
	}))
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HandleWebSocket upgrades the request and runs the session's read loop.
//
// With a session parameter naming a live session the session is resumed.
// Otherwise a new session is created for the route parameter. Failures are
// reported to the client as an error message before the socket closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	conn := newWSConn(ws, s.sessions.Config(), s.logger.With("remote", r.RemoteAddr))
	go conn.writePump()

	query := r.URL.Query()
	routePath := query.Get("route")
	sessionID := query.Get("session")

	var sess *Session
	if sessionID != "" {
		sess, err = s.sessions.Reconnect(sessionID, conn)
		var notFound *SessionNotFoundError
		if err != nil && !(errors.As(err, &notFound) && routePath != "") {
			s.reject(conn, err)
			return
		}
		if err != nil {
			s.logger.Info("resume failed, creating new session", "session_id", sessionID, "route", routePath)
		}
	}
	if sess == nil {
		// The request context ends with the upgrade; keep its values only.
		sess, err = s.sessions.Connect(context.WithoutCancel(r.Context()), routePath, conn)
		if err != nil {
			s.reject(conn, err)
			return
		}
	}

	s.readLoop(sess, ws, conn)
}

func (s *Server) reject(conn *wsConn, err error) {
	s.logger.Info("connection rejected", "error", err)
	_ = conn.Send(protocol.NewError("", CodeFor(err), err.Error()))
	_ = conn.Close()
}

// Run starts the HTTP server and blocks until it fails or the process
// receives SIGINT or SIGTERM.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	// Set up graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address, "routes", s.sessions.Registry().Len())
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes every session and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	// Close all sessions first
	s.sessions.Shutdown()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Metrics returns the runtime metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogger replaces the logger of the HTTP and WebSocket layer. Session
// logs keep going to ServerConfig.Logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger.With("component", "server")
}
