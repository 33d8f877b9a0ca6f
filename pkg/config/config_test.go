package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 5
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MaxConcurrent = 10
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid, got: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http rps must be > 0", func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 }},
		{"http burst must be > 0", func(c *Config) { c.RateLimiting.HTTP.Burst = 0 }},
		{"http max concurrent must be >= 0", func(c *Config) { c.RateLimiting.HTTP.MaxConcurrent = -1 }},
		{"ws connections per minute must be > 0", func(c *Config) { c.RateLimiting.WebSocket.ConnectionsPerMinute = 0 }},
		{"unknown database driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"sql driver needs dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }},
		{"redis driver needs redis", func(c *Config) { c.Database.Driver = "redis"; c.Redis.Enabled = false }},
		{"ingest workers", func(c *Config) { c.Ingest.Workers = 0 }},
		{"ytdlp path", func(c *Config) { c.Ingest.YtDlpPath = "" }},
		{"listener buffer", func(c *Config) { c.Playback.ListenerBuffer = 0 }},
		{"pong shorter than ping", func(c *Config) { c.Notifier.PongTimeout = c.Notifier.PingInterval }},
		{"mirror without redis", func(c *Config) { c.Monitoring.MirrorEnabled = true }},
		{"backup without dir", func(c *Config) { c.Backup.Enabled = true; c.Backup.Dir = "" }},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.JaegerEndpoint = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "memory" {
		t.Fatalf("expected memory driver, got %q", cfg.Database.Driver)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  address: ":9000"
database:
  driver: sqlite
  dsn: "file:vinyl.db"
playback:
  listener_buffer: 8
ingest:
  socket_timeout: 20s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VINYL_LOG_LEVEL", "debug")
	t.Setenv("VINYL_SERVER_ADDRESS", ":9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":9100" {
		t.Fatalf("env override not applied, got %q", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "file:vinyl.db" {
		t.Fatalf("database section not loaded: %+v", cfg.Database)
	}
	if cfg.Playback.ListenerBuffer != 8 {
		t.Fatalf("expected listener buffer 8, got %d", cfg.Playback.ListenerBuffer)
	}
	if cfg.Ingest.SocketTimeout != 20*time.Second {
		t.Fatalf("expected 20s socket timeout, got %v", cfg.Ingest.SocketTimeout)
	}
	if cfg.Playback.SampleRate != 44100 {
		t.Fatalf("defaults should survive partial yaml, got sample rate %d", cfg.Playback.SampleRate)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  driver: oracle\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected invalid configuration error")
	}
}
