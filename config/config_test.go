package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/fbclient/client"
	"github.com/adamwoolhether/fbclient/client/request"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Auth.Type != "none" {
		t.Errorf("Auth.Type = %q, want %q", cfg.Auth.Type, "none")
	}
	if cfg.Client.QueueLimit != client.DefaultQueueLimit {
		t.Errorf("Client.QueueLimit = %d, want %d", cfg.Client.QueueLimit, client.DefaultQueueLimit)
	}
	if cfg.Client.SSETimeout != client.SSETimeout {
		t.Errorf("Client.SSETimeout = %s, want %s", cfg.Client.SSETimeout, client.SSETimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
database:
  url: my-db.firebaseio.com
  path: /sensors.json
  filters: put,patch
auth:
  type: id
  token: abc
client:
  queue_limit: 4
  sse_timeout: 90s
  session_timeout: 5m
  throttle:
    rps: 2
    burst: 4
log_level: debug
`
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	exp := Default()
	exp.Database = DatabaseConfig{URL: "my-db.firebaseio.com", Path: "/sensors.json", Filters: "put,patch"}
	exp.Auth = AuthConfig{Type: "id", Token: "abc"}
	exp.Client.QueueLimit = 4
	exp.Client.SSETimeout = 90 * time.Second
	exp.Client.SessionTimeout = 5 * time.Minute
	exp.Client.Throttle = ThrottleConfig{RPS: 2, Burst: 4}
	exp.LogLevel = "debug"

	if diff := cmp.Diff(exp, cfg); diff != "" {
		t.Errorf("config mismatch (-exp +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_ExpandsTokenEnv(t *testing.T) {
	t.Setenv("FBCLIENT_TEST_TOKEN", "from-env")

	cfg, err := Parse([]byte("auth:\n  type: access\n  token: ${FBCLIENT_TEST_TOKEN}\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Auth.Token != "from-env" {
		t.Errorf("Auth.Token = %q, want %q", cfg.Auth.Token, "from-env")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("expected read error, got %v", err)
	}

	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte("database: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errStr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing url", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"relative path", func(c *Config) { c.Database.Path = "a.json" }, "database.path"},
		{"bad auth type", func(c *Config) { c.Auth.Type = "basic" }, "auth.type"},
		{"token required", func(c *Config) { c.Auth.Type = "id" }, "auth.token"},
		{"zero queue", func(c *Config) { c.Client.QueueLimit = 0 }, "client.queue_limit"},
		{"zero read timeout", func(c *Config) { c.Client.ReadTimeout = 0 }, "client.read_timeout"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"short session", func(c *Config) { c.Client.SessionTimeout = time.Minute }, "client.session_timeout"},
		{"half throttle", func(c *Config) { c.Client.Throttle.RPS = 3 }, "client.throttle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.URL = "my-db.firebaseio.com"
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.errStr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errStr) {
				t.Errorf("expected error containing %q, got %v", tt.errStr, err)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "my-db.firebaseio.com"
	cfg.Auth = AuthConfig{Type: "access", Token: "tok"}
	cfg.Client.Throttle = ThrottleConfig{RPS: 1, Burst: 1}
	cfg.Client.Insecure = true

	c, err := client.New(cfg.Options(slog.New(slog.NewTextHandler(t.Output(), nil)))...)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	req := cfg.StreamRequest()
	if !req.SSE || req.URL != "my-db.firebaseio.com" || req.Path != "/.json" {
		t.Errorf("unexpected stream request: %+v", req)
	}
}

func TestAuthType(t *testing.T) {
	tests := []struct {
		input string
		want  request.AuthType
	}{
		{"none", request.AuthNone},
		{"access", request.AuthAccessToken},
		{"id", request.AuthIDToken},
		{"custom", request.AuthCustomToken},
		{"key", request.AuthKey},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := authType(tt.input); got != tt.want {
				t.Errorf("authType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	tok := staticToken{token: "abc", typ: request.AuthIDToken}
	if got, typ, ok := tok.Token(); got != "abc" || typ != request.AuthIDToken || !ok {
		t.Errorf("Token() = %q, %v, %v", got, typ, ok)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
