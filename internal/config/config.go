package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atrilabs/atri-runtime/internal/errors"
	"github.com/atrilabs/atri-runtime/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "atri.json"

	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultAppSource is the default app definition location.
	DefaultAppSource = "app.yaml"
)

// Config represents the complete atri.json configuration.
type Config struct {
	// Server contains HTTP and WebSocket settings.
	Server ServerConfig `json:"server,omitempty"`

	// Session contains per-session settings.
	Session SessionConfig `json:"session,omitempty"`

	// Workers contains event worker pool settings.
	Workers WorkersConfig `json:"workers,omitempty"`

	// Log contains logging settings.
	Log LogConfig `json:"log,omitempty"`

	// Health contains health check thresholds.
	Health HealthConfig `json:"health,omitempty"`

	// App locates the app definition.
	App AppConfig `json:"app,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP and WebSocket settings.
type ServerConfig struct {
	// Address is the address to listen on.
	Address string `json:"address,omitempty"`

	// ReadBufferSize is the WebSocket read buffer size in bytes.
	ReadBufferSize int `json:"readBufferSize,omitempty"`

	// WriteBufferSize is the WebSocket write buffer size in bytes.
	WriteBufferSize int `json:"writeBufferSize,omitempty"`

	// AllowedOrigins lists cross-origin clients allowed to connect.
	// Same-origin clients are always allowed.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "30s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty"`
}

// SessionConfig contains per-session settings.
type SessionConfig struct {
	// MaxEventQueue bounds the unfinished events of a session.
	MaxEventQueue int `json:"maxEventQueue,omitempty"`

	// HandlerTimeout bounds one hook invocation (e.g., "5s").
	HandlerTimeout string `json:"handlerTimeout,omitempty"`

	// IdleTimeout closes inactive sessions (e.g., "5m"). "0s" disables it.
	IdleTimeout string `json:"idleTimeout,omitempty"`

	// ResumeWindow is how long a disconnected session waits for its
	// client (e.g., "30s"). "0s" closes sessions on disconnect.
	ResumeWindow string `json:"resumeWindow,omitempty"`

	// HeartbeatInterval is the time between server pings (e.g., "30s").
	HeartbeatInterval string `json:"heartbeatInterval,omitempty"`

	// ReadTimeout is the longest silence tolerated from a client.
	ReadTimeout string `json:"readTimeout,omitempty"`

	// WriteTimeout bounds one write to a client.
	WriteTimeout string `json:"writeTimeout,omitempty"`

	// SendBuffer is the number of outgoing messages buffered per client.
	SendBuffer int `json:"sendBuffer,omitempty"`

	// MaxMessageSize is the largest accepted client message in bytes.
	MaxMessageSize int64 `json:"maxMessageSize,omitempty"`
}

// WorkersConfig contains event worker pool settings.
type WorkersConfig struct {
	// PoolSize caps concurrently processed events. 0 means unbounded.
	PoolSize int `json:"poolSize,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// HealthConfig contains health check thresholds. Zero disables a check.
type HealthConfig struct {
	// MaxGoroutines fails the liveness check above this count.
	MaxGoroutines int `json:"maxGoroutines,omitempty"`

	// MaxMemoryMB fails the readiness check above this resident size.
	MaxMemoryMB int `json:"maxMemoryMB,omitempty"`
}

// AppConfig locates the app definition.
type AppConfig struct {
	// Source is a file path, relative to the config file, or an
	// s3://bucket/key URL.
	Source string `json:"source,omitempty"`

	// Region is the AWS region of an s3:// source. Default: $AWS_REGION.
	Region string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	Endpoint string `json:"endpoint,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	d := server.DefaultSessionConfig()
	return &Config{
		Server: ServerConfig{
			Address:         DefaultAddress,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			ShutdownTimeout: "30s",
		},
		Session: SessionConfig{
			MaxEventQueue:     d.MaxEventQueue,
			HandlerTimeout:    d.HandlerTimeout.String(),
			IdleTimeout:       d.IdleTimeout.String(),
			ResumeWindow:      d.ResumeWindow.String(),
			HeartbeatInterval: d.HeartbeatInterval.String(),
			ReadTimeout:       d.ReadTimeout.String(),
			WriteTimeout:      d.WriteTimeout.String(),
			SendBuffer:        d.SendBuffer,
			MaxMessageSize:    d.MaxMessageSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		App: AppConfig{
			Source: DefaultAppSource,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for atri.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E100").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path))
		}
		return nil, errors.New("E101").Wrap(err)
	}

	cfg := New()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.New("E101").
			WithDetail("Failed to parse " + path + ": " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()

	if c.Server.Address == "" {
		c.Server.Address = d.Server.Address
	}
	if c.Server.ReadBufferSize == 0 {
		c.Server.ReadBufferSize = d.Server.ReadBufferSize
	}
	if c.Server.WriteBufferSize == 0 {
		c.Server.WriteBufferSize = d.Server.WriteBufferSize
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if c.Session.MaxEventQueue == 0 {
		c.Session.MaxEventQueue = d.Session.MaxEventQueue
	}
	if c.Session.HandlerTimeout == "" {
		c.Session.HandlerTimeout = d.Session.HandlerTimeout
	}
	if c.Session.IdleTimeout == "" {
		c.Session.IdleTimeout = d.Session.IdleTimeout
	}
	if c.Session.ResumeWindow == "" {
		c.Session.ResumeWindow = d.Session.ResumeWindow
	}
	if c.Session.HeartbeatInterval == "" {
		c.Session.HeartbeatInterval = d.Session.HeartbeatInterval
	}
	if c.Session.ReadTimeout == "" {
		c.Session.ReadTimeout = d.Session.ReadTimeout
	}
	if c.Session.WriteTimeout == "" {
		c.Session.WriteTimeout = d.Session.WriteTimeout
	}
	if c.Session.SendBuffer == 0 {
		c.Session.SendBuffer = d.Session.SendBuffer
	}
	if c.Session.MaxMessageSize == 0 {
		c.Session.MaxMessageSize = d.Session.MaxMessageSize
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	if c.App.Source == "" {
		c.App.Source = d.App.Source
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := c.ServerConfig(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return invalid(err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid(fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Health.MaxGoroutines < 0 || c.Health.MaxMemoryMB < 0 {
		return invalid("health thresholds must not be negative")
	}
	if strings.HasPrefix(c.App.Source, "s3://") {
		if _, _, err := parseS3URL(c.App.Source); err != nil {
			return invalid(err.Error())
		}
	}
	return nil
}

func invalid(detail string) error {
	return errors.New("E102").WithDetail(detail)
}

// ServerConfig converts the file settings into the server's runtime
// configuration.
func (c *Config) ServerConfig() (*server.ServerConfig, error) {
	durations := map[string]string{
		"server.shutdownTimeout":    c.Server.ShutdownTimeout,
		"session.handlerTimeout":    c.Session.HandlerTimeout,
		"session.idleTimeout":       c.Session.IdleTimeout,
		"session.resumeWindow":      c.Session.ResumeWindow,
		"session.heartbeatInterval": c.Session.HeartbeatInterval,
		"session.readTimeout":       c.Session.ReadTimeout,
		"session.writeTimeout":      c.Session.WriteTimeout,
	}
	parsed := make(map[string]time.Duration, len(durations))
	for name, s := range durations {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, invalid(fmt.Sprintf("%s: %v", name, err))
		}
		parsed[name] = d
	}

	cfg := server.DefaultServerConfig()
	cfg.Address = c.Server.Address
	cfg.ReadBufferSize = c.Server.ReadBufferSize
	cfg.WriteBufferSize = c.Server.WriteBufferSize
	cfg.ShutdownTimeout = parsed["server.shutdownTimeout"]
	if len(c.Server.AllowedOrigins) > 0 {
		cfg.CheckOrigin = server.AllowOrigins(c.Server.AllowedOrigins)
	}
	cfg.MaxGoroutines = c.Health.MaxGoroutines
	cfg.MaxMemoryBytes = uint64(c.Health.MaxMemoryMB) << 20

	sc := cfg.SessionConfig
	sc.MaxEventQueue = c.Session.MaxEventQueue
	sc.HandlerTimeout = parsed["session.handlerTimeout"]
	sc.IdleTimeout = parsed["session.idleTimeout"]
	sc.ResumeWindow = parsed["session.resumeWindow"]
	sc.HeartbeatInterval = parsed["session.heartbeatInterval"]
	sc.ReadTimeout = parsed["session.readTimeout"]
	sc.WriteTimeout = parsed["session.writeTimeout"]
	sc.SendBuffer = c.Session.SendBuffer
	sc.MaxMessageSize = c.Session.MaxMessageSize
	sc.WorkerPoolSize = c.Workers.PoolSize

	if err := sc.Validate(); err != nil {
		return nil, invalid(err.Error())
	}
	return cfg, nil
}

// Logger builds the logger described by the log section, writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// AppSource returns the app definition location. Relative paths are
// resolved against the config file's directory.
func (c *Config) AppSource() string {
	src := c.App.Source
	if strings.HasPrefix(src, "s3://") || filepath.IsAbs(src) || c.Dir() == "" {
		return src
	}
	return filepath.Join(c.Dir(), src)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the directory containing
// atri.json.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E100").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}
