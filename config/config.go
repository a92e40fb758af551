/*
Package config loads process configuration from the environment.

SOURCES (later wins):
  1. envDefault tags below
  2. .env, then .env.local, when present in the working directory
  3. the process environment
  4. command-line flags applied by cmd/server

Values already present in the process environment are never overwritten by
.env files.
*/
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// DefaultEnvFiles are loaded by Load when they exist.
var DefaultEnvFiles = []string{".env", ".env.local"}

type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"personnel.db"`

	// RedisURL selects the warning feed backend. Empty keeps the feed in
	// process memory.
	RedisURL          string        `env:"REDIS_URL"`
	WarningFeedKey    string        `env:"WARNING_FEED_KEY" envDefault:"personnel:intern_warnings"`
	WarningTTL        time.Duration `env:"WARNING_TTL" envDefault:"24h"`
	WarningWindowDays int           `env:"WARNING_WINDOW_DAYS" envDefault:"7"`

	SweepEnabled  bool          `env:"SWEEP_ENABLED" envDefault:"true"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	IDMaxAttempts int `env:"ID_MAX_ATTEMPTS" envDefault:"100"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsPath    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Load reads env files (missing ones are skipped) and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	if c.WarningTTL <= 0 {
		return fmt.Errorf("WARNING_TTL must be positive, got %s", c.WarningTTL)
	}
	if c.WarningWindowDays <= 0 {
		return fmt.Errorf("WARNING_WINDOW_DAYS must be positive, got %d", c.WarningWindowDays)
	}
	if c.SweepEnabled && c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.IDMaxAttempts <= 0 {
		return fmt.Errorf("ID_MAX_ATTEMPTS must be positive, got %d", c.IDMaxAttempts)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("METRICS_PATH must start with /, got %q", c.MetricsPath)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
