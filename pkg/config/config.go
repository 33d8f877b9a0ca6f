package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	// Database selects the room repository backend: memory, redis, sqlite,
	// postgres or mysql.
	Database struct {
		Driver          string        `yaml:"driver"`
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret"`
		AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
		RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int `yaml:"connections_per_minute"`
			MaxConcurrent        int `yaml:"max_concurrent_connections"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`

	Ingest struct {
		Workers         int           `yaml:"workers"`
		YtDlpPath       string        `yaml:"ytdlp_path"`
		SocketTimeout   time.Duration `yaml:"socket_timeout"`
		ProbeEndpoint   string        `yaml:"probe_endpoint"`
		ProbeTimeout    time.Duration `yaml:"probe_timeout"`
		MaxAttempts     int           `yaml:"max_attempts"`
		BreakerFailures int           `yaml:"breaker_failures"`
		BreakerReset    time.Duration `yaml:"breaker_reset"`
	} `yaml:"ingest"`

	Playback struct {
		FFmpegPath     string        `yaml:"ffmpeg_path"`
		SampleRate     int           `yaml:"sample_rate"`
		Channels       int           `yaml:"channels"`
		ChunkSize      int           `yaml:"chunk_size"`
		ListenerBuffer int           `yaml:"listener_buffer"`
		IdlePoll       time.Duration `yaml:"idle_poll"`
	} `yaml:"playback"`

	Notifier struct {
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		SendBuffer   int           `yaml:"send_buffer"`
	} `yaml:"notifier"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		MaxBusLag         int           `yaml:"max_bus_lag"`
		MirrorEnabled     bool          `yaml:"mirror_enabled"`
		MirrorChannel     string        `yaml:"mirror_channel"`
		MirrorBatchSize   int           `yaml:"mirror_batch_size"`
		MirrorFlush       time.Duration `yaml:"mirror_flush"`
	} `yaml:"monitoring"`

	// Backup snapshots the room table to JSON files. RestoreOnStart replays
	// the newest snapshot into an empty repository, which gives the memory
	// driver persistence across restarts.
	Backup struct {
		Enabled        bool          `yaml:"enabled"`
		Dir            string        `yaml:"dir"`
		Interval       time.Duration `yaml:"interval"`
		Retention      time.Duration `yaml:"retention"`
		RestoreOnStart bool          `yaml:"restore_on_start"`
	} `yaml:"backup"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint"`
		SampleRate     float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

var databaseDrivers = map[string]bool{
	"memory":   true,
	"redis":    true,
	"sqlite":   true,
	"postgres": true,
	"mysql":    true,
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if !databaseDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must not be empty for driver %s", c.Database.Driver)
		}
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("database.driver=redis requires redis.enabled=true")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth.refresh_token_ttl must be > 0")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}

	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	if c.Ingest.YtDlpPath == "" {
		return fmt.Errorf("ingest.ytdlp_path must not be empty")
	}
	if c.Ingest.SocketTimeout <= 0 {
		return fmt.Errorf("ingest.socket_timeout must be > 0")
	}
	if c.Ingest.ProbeEndpoint == "" {
		return fmt.Errorf("ingest.probe_endpoint must not be empty")
	}
	if c.Ingest.MaxAttempts <= 0 {
		return fmt.Errorf("ingest.max_attempts must be > 0")
	}

	if c.Playback.FFmpegPath == "" {
		return fmt.Errorf("playback.ffmpeg_path must not be empty")
	}
	if c.Playback.SampleRate <= 0 || c.Playback.Channels <= 0 {
		return fmt.Errorf("playback.sample_rate and playback.channels must be > 0")
	}
	if c.Playback.ChunkSize <= 0 {
		return fmt.Errorf("playback.chunk_size must be > 0")
	}
	if c.Playback.ListenerBuffer <= 0 {
		return fmt.Errorf("playback.listener_buffer must be > 0")
	}

	if c.Notifier.PingInterval <= 0 {
		return fmt.Errorf("notifier.ping_interval must be > 0")
	}
	if c.Notifier.PongTimeout <= c.Notifier.PingInterval {
		return fmt.Errorf("notifier.pong_timeout must be greater than notifier.ping_interval")
	}
	if c.Notifier.SendBuffer <= 0 {
		return fmt.Errorf("notifier.send_buffer must be > 0")
	}

	if c.Monitoring.MirrorEnabled {
		if !c.Redis.Enabled {
			return fmt.Errorf("monitoring.mirror_enabled requires redis.enabled=true")
		}
		if c.Monitoring.MirrorChannel == "" {
			return fmt.Errorf("monitoring.mirror_channel must not be empty when mirroring is enabled")
		}
	}

	if c.Backup.Enabled {
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup.dir must not be empty when backups are enabled")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backups are enabled")
		}
	}

	if c.Tracing.Enabled && c.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing is enabled")
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Logging.Level = "info"

	cfg.Database.Driver = "memory"
	cfg.Database.MaxOpenConns = 10
	cfg.Database.MaxIdleConns = 5
	cfg.Database.ConnMaxLifetime = time.Hour

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 12 * time.Hour
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60

	cfg.Ingest.Workers = 4
	cfg.Ingest.YtDlpPath = "yt-dlp"
	cfg.Ingest.SocketTimeout = 15 * time.Second
	cfg.Ingest.ProbeEndpoint = "https://www.youtube.com/oembed"
	cfg.Ingest.ProbeTimeout = 10 * time.Second
	cfg.Ingest.MaxAttempts = 2
	cfg.Ingest.BreakerFailures = 5
	cfg.Ingest.BreakerReset = 30 * time.Second

	cfg.Playback.FFmpegPath = "ffmpeg"
	cfg.Playback.SampleRate = 44100
	cfg.Playback.Channels = 2
	cfg.Playback.ChunkSize = 16 * 1024
	cfg.Playback.ListenerBuffer = 32
	cfg.Playback.IdlePoll = 5 * time.Second

	cfg.Notifier.PingInterval = 30 * time.Second
	cfg.Notifier.PongTimeout = 60 * time.Second
	cfg.Notifier.SendBuffer = 64

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MaxBusLag = 1000
	cfg.Monitoring.MirrorChannel = "vinyl:events"
	cfg.Monitoring.MirrorBatchSize = 50
	cfg.Monitoring.MirrorFlush = 500 * time.Millisecond

	cfg.Backup.Dir = "backups"
	cfg.Backup.Interval = time.Hour
	cfg.Backup.Retention = 7 * 24 * time.Hour
	cfg.Backup.RestoreOnStart = true

	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 0.1

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("VINYL_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("VINYL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("VINYL_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if driver := os.Getenv("VINYL_DATABASE_DRIVER"); driver != "" {
		c.Database.Driver = strings.ToLower(driver)
	}
	if dsn := os.Getenv("VINYL_DATABASE_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if addr := os.Getenv("VINYL_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
}
