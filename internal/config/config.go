// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Port             string
	DBDSN            string
	TypeCatalogPath  string // optional YAML overriding the built-in message types
	SchedulerEnabled bool
	DispatchRate     float64 // sends per second
	BatchSize        int     // recipients per campaign per cycle
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBDSN:            getEnv("DB_DSN", "file:comply.db?_foreign_keys=on"),
		TypeCatalogPath:  getEnv("TYPE_CATALOG", ""),
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		DispatchRate:     getEnvFloat("DISPATCH_RATE", 1),
		BatchSize:        getEnvInt("BATCH_SIZE", 25),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN cannot be empty")
	}
	if c.DispatchRate <= 0 {
		return fmt.Errorf("DISPATCH_RATE must be > 0")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}
