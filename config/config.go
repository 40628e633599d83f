// Package config loads client settings from a YAML file and turns them
// into [client.Option] values.
package config

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/fbclient/client"
	"github.com/adamwoolhether/fbclient/client/conn"
	"github.com/adamwoolhether/fbclient/client/request"
	"github.com/adamwoolhether/fbclient/internal/validate"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Client   ClientConfig   `yaml:"client"`
	LogLevel string         `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// DatabaseConfig names the location to read or stream.
type DatabaseConfig struct {
	URL     string `yaml:"url" validate:"required"`
	Path    string `yaml:"path" validate:"required,startswith=/"`
	Filters string `yaml:"filters"` // comma separated stream events to deliver
}

// AuthConfig holds the credential sent with every request. Token may
// reference environment variables as $NAME or ${NAME}.
type AuthConfig struct {
	Type  string `yaml:"type" validate:"oneof=none access id custom key"`
	Token string `yaml:"token" validate:"required_unless=Type none"`
}

// ClientConfig holds connection and scheduling settings.
type ClientConfig struct {
	UserAgent        string         `yaml:"user_agent"`
	QueueLimit       int            `yaml:"queue_limit" validate:"gte=1"`
	Insecure         bool           `yaml:"insecure"` // plain TCP instead of TLS
	DialTimeout      time.Duration  `yaml:"dial_timeout" validate:"gt=0"`
	SendTimeout      time.Duration  `yaml:"send_timeout" validate:"gt=0"`
	ReadTimeout      time.Duration  `yaml:"read_timeout" validate:"gt=0"`
	SSETimeout       time.Duration  `yaml:"sse_timeout" validate:"gt=0"`
	ReconnectTimeout time.Duration  `yaml:"reconnect_timeout" validate:"gte=0"`
	SessionTimeout   time.Duration  `yaml:"session_timeout" validate:"gte=0"`
	Throttle         ThrottleConfig `yaml:"throttle"`
}

// ThrottleConfig limits task starts. Zero RPS disables it.
type ThrottleConfig struct {
	RPS   int `yaml:"rps" validate:"gte=0"`
	Burst int `yaml:"burst" validate:"gte=0"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "/.json",
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Client: ClientConfig{
			UserAgent:        "fbclient",
			QueueLimit:       client.DefaultQueueLimit,
			DialTimeout:      conn.ConnectTimeout,
			SendTimeout:      request.WriteTimeout,
			ReadTimeout:      client.ReadTimeout,
			SSETimeout:       client.SSETimeout,
			ReconnectTimeout: client.ReconnectTimeout,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Auth.Token = os.ExpandEnv(cfg.Auth.Token)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if err := validate.Check(c); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if c.Client.SessionTimeout != 0 && c.Client.SessionTimeout < client.MinSessionTimeout {
		return fmt.Errorf("client.session_timeout must be zero or at least %s, got %s", client.MinSessionTimeout, c.Client.SessionTimeout)
	}
	if (c.Client.Throttle.RPS == 0) != (c.Client.Throttle.Burst == 0) {
		return fmt.Errorf("client.throttle needs both rps and burst, got rps=%d burst=%d", c.Client.Throttle.RPS, c.Client.Throttle.Burst)
	}

	return nil
}

// Options maps the config onto client options. The socket dials TLS
// unless Client.Insecure is set.
func (c *Config) Options(logger *slog.Logger) []client.Option {
	var tlsConfig *tls.Config
	if !c.Client.Insecure {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	opts := []client.Option{
		client.WithSocket(conn.NewNetSocket(tlsConfig, c.Client.DialTimeout)),
		client.WithQueueLimit(c.Client.QueueLimit),
		client.WithSendTimeout(c.Client.SendTimeout),
		client.WithReadTimeout(c.Client.ReadTimeout),
		client.WithSSETimeout(c.Client.SSETimeout),
		client.WithReconnectTimeout(c.Client.ReconnectTimeout),
		client.WithSessionTimeout(c.Client.SessionTimeout),
		client.WithUserAgent(c.Client.UserAgent),
		client.WithSSEFilters(c.Database.Filters),
	}
	if c.Client.Throttle.RPS > 0 {
		opts = append(opts, client.WithThrottle(c.Client.Throttle.RPS, c.Client.Throttle.Burst))
	}
	if typ := authType(c.Auth.Type); typ != request.AuthNone {
		opts = append(opts, client.WithTokenProvider(staticToken{token: c.Auth.Token, typ: typ}))
	}
	if logger != nil {
		opts = append(opts, client.WithLogger(logger))
	}

	return opts
}

// StreamRequest returns the event stream request for the configured
// location.
func (c *Config) StreamRequest() client.Request {
	return client.Request{
		Method: client.MethodGet,
		URL:    c.Database.URL,
		Path:   c.Database.Path,
		SSE:    true,
	}
}

// ParseLogLevel converts a level name to a slog.Level. Unknown names
// fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func authType(name string) request.AuthType {
	switch name {
	case "access":
		return request.AuthAccessToken
	case "id":
		return request.AuthIDToken
	case "custom":
		return request.AuthCustomToken
	case "key":
		return request.AuthKey
	default:
		return request.AuthNone
	}
}

type staticToken struct {
	token string
	typ   request.AuthType
}

func (s staticToken) Token() (string, request.AuthType, bool) {
	return s.token, s.typ, s.token != ""
}
