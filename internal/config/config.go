// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultLowStockChannel is the Redis channel low-stock alerts are published on.
const DefaultLowStockChannel = "inventory:low-stock"

// Config holds the settings shared by every binary.
type Config struct {
	DatabaseURL     string
	RedisAddr       string // empty disables alert publishing
	LowStockChannel string
	LogLevel        slog.Level
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. DATABASE_URL is required.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseURL:     strings.TrimSpace(getenv("DATABASE_URL")),
		RedisAddr:       strings.TrimSpace(getenv("REDIS_ADDR")),
		LowStockChannel: strings.TrimSpace(getenv("LOW_STOCK_CHANNEL")),
		LogLevel:        slog.LevelInfo,
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.LowStockChannel == "" {
		cfg.LowStockChannel = DefaultLowStockChannel
	}

	if raw := strings.TrimSpace(getenv("LOG_LEVEL")); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", raw, err)
		}
	}
	return cfg, nil
}

// NewLogger returns a text logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}
