package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

var validate = validator.New()

type AppConfig struct {
	Port     string `env:"PORT" envDefault:"8080" validate:"required,numeric"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error"`

	// PublicOrigin is the origin pages are served from; only its requests
	// are answered from the cache.
	PublicOrigin string `env:"PUBLIC_ORIGIN" envDefault:"http://localhost:8080" validate:"required,url"`
	// UpstreamOrigin serves the built dashboard assets.
	UpstreamOrigin string `env:"UPSTREAM_ORIGIN" envDefault:"http://localhost:3000" validate:"required,url"`

	WeatherAPIKey     string `env:"WEATHERAPI_API_KEY"`
	WeatherAPIBaseURL string `env:"WEATHERAPI_BASE_URL" envDefault:"https://api.weatherapi.com/v1" validate:"required,url"`

	HTTPTimeout          time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	PeriodicSyncInterval time.Duration `env:"PERIODIC_SYNC_INTERVAL" envDefault:"1h" validate:"gte=0"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	// Cache and kv persistence.
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory" validate:"oneof=memory sqlite"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"weather-shell.db" validate:"required_if=StorageDriver sqlite"`

	RefreshConcurrency int `env:"REFRESH_CONCURRENCY" envDefault:"4" validate:"gte=1,lte=8"`
}

// Load reads .env (if present) and then the environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("config: no .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv parses and validates the environment without touching .env files.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Origin returns the parsed public origin.
func (c *AppConfig) Origin() (*url.URL, error) {
	return parseOrigin("PUBLIC_ORIGIN", c.PublicOrigin)
}

// Upstream returns the parsed upstream origin.
func (c *AppConfig) Upstream() (*url.URL, error) {
	return parseOrigin("UPSTREAM_ORIGIN", c.UpstreamOrigin)
}

func parseOrigin(name, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("invalid %s: %q is not an absolute origin", name, raw)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, nil
}

// Level returns the logrus level for LogLevel.
func (c *AppConfig) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
