// Package config loads runtime configuration for the marketplace daemon.
// Precedence is defaults, then the optional YAML file, then environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/parallax-protocol/service-marketplace/pkg/logger"
)

// Config is the full daemon configuration.
type Config struct {
	Server  ServerConfig         `yaml:"server"`
	Storage StorageConfig        `yaml:"storage"`
	Auth    AuthConfig           `yaml:"auth"`
	Rate    RateConfig           `yaml:"rate_limit"`
	Logging logger.LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"MARKETD_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"MARKETD_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"MARKETD_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"MARKETD_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"MARKETD_SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects the ledger backend. Backend is "memory" or
// "postgres"; DSN is required for postgres.
type StorageConfig struct {
	Backend string `yaml:"backend" env:"MARKETD_STORAGE_BACKEND"`
	DSN     string `yaml:"dsn" env:"MARKETD_STORAGE_DSN"`
	Migrate bool   `yaml:"migrate" env:"MARKETD_STORAGE_MIGRATE"`
}

// AuthConfig holds bearer tokens accepted by the API. An empty list
// leaves the API open.
type AuthConfig struct {
	Tokens []string `yaml:"tokens" env:"MARKETD_AUTH_TOKENS"`
}

// RateConfig controls per-client request throttling.
type RateConfig struct {
	PerSecond int `yaml:"per_second" env:"MARKETD_RATE_PER_SECOND"`
	Burst     int `yaml:"burst" env:"MARKETD_RATE_BURST"`
}

// Default returns the configuration used when neither file nor
// environment overrides a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{Backend: "memory", Migrate: true},
		Rate:    RateConfig{PerSecond: 50, Burst: 100},
		Logging: logger.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// Load reads configuration. A .env file in the working directory is
// applied first if present, then the YAML file at path (skipped when
// path is empty), then environment variables on top.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	// An empty environment is fine; file and built-in defaults stand.
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage backend postgres requires a DSN")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Rate.PerSecond <= 0 {
		return fmt.Errorf("rate limit per_second must be positive")
	}
	if c.Rate.Burst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1")
	}
	return nil
}
