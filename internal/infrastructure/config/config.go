package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sandbox   SandboxConfig
	Storage   StorageConfig
	Bus       BusConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Fetch     FetchConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// AllowedOrigins restricts CORS and WebSocket origins; empty allows any
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// SandboxConfig holds limits for app script execution.
type SandboxConfig struct {
	ExecTimeout     time.Duration `envconfig:"SANDBOX_EXEC_TIMEOUT" default:"5s"`
	CallbackTimeout time.Duration `envconfig:"SANDBOX_CALLBACK_TIMEOUT" default:"2s"`
	MaxCallStack    int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	ConsoleLimit    int           `envconfig:"SANDBOX_CONSOLE_LIMIT" default:"200"`
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	DataDir string `envconfig:"DATA_DIR" default:"data"`
	AppsDir string `envconfig:"APPS_DIR" default:"apps"`
}

// BusConfig holds pub/sub bus configuration.
type BusConfig struct {
	History         int           `envconfig:"BUS_HISTORY" default:"100"`
	ClientTimeout   time.Duration `envconfig:"BUS_CLIENT_TIMEOUT" default:"5m"`
	CleanupInterval time.Duration `envconfig:"BUS_CLEANUP_INTERVAL" default:"1m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// FetchConfig holds the outbound HTTP capability configuration.
type FetchConfig struct {
	Timeout           time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	Retries           int           `envconfig:"FETCH_RETRIES" default:"3"`
	RequestsPerSecond float64       `envconfig:"FETCH_RPS" default:"10"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Sandbox: SandboxConfig{
			ExecTimeout:     5 * time.Second,
			CallbackTimeout: 2 * time.Second,
			MaxCallStack:    1024,
			ConsoleLimit:    200,
		},
		Storage: StorageConfig{
			DataDir: "data",
			AppsDir: "apps",
		},
		Bus: BusConfig{
			History:         100,
			ClientTimeout:   5 * time.Minute,
			CleanupInterval: time.Minute,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Fetch: FetchConfig{
			Timeout:           30 * time.Second,
			Retries:           3,
			RequestsPerSecond: 10,
		},
	}
}
