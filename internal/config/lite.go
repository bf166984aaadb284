// Package config provides configuration management for the triage server.
// This file contains the lightweight configuration used by the MCP tool server.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/clinical-triage-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir    string // Base directory for data files
	SQLitePath string // Record store file; defaults to DataDir/triage.db

	// Cache settings
	CacheMaxItems int           // Maximum bundles in memory cache
	CacheTTL      time.Duration // Bundle cache TTL

	// Scan settings
	MaxConcurrency int // Parallel overview assembly during critical scans

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".clinical-triage")

	return &LiteConfig{
		DataDir:        dataDir,
		CacheMaxItems:  1000,
		CacheTTL:       5 * time.Minute,
		MaxConcurrency: 4,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("TRIAGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TRIAGE_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}

	if v := os.Getenv("TRIAGE_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("TRIAGE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("TRIAGE_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrency = n
		}
	}

	if v := os.Getenv("TRIAGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRIAGE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// RecordStorePath returns the path to the SQLite record store.
func (c *LiteConfig) RecordStorePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.DataDir, "triage.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// Logging returns the logging settings in the shared form. MCP stdio owns
// stdout, so logs always go to stderr.
func (c *LiteConfig) Logging() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}

// AppConfig maps the lite settings onto the full configuration: SQLite
// store, in-process bundle cache, default breaker and page sizes.
func (c *LiteConfig) AppConfig() *domain.Config {
	return &domain.Config{
		Environment: "lite",
		Store: domain.StoreConfig{
			Driver:     domain.StoreDriverSQLite,
			SQLitePath: c.RecordStorePath(),
		},
		Cache: domain.CacheConfig{
			Enabled:    c.CacheMaxItems > 0,
			MemorySize: c.CacheMaxItems,
			DefaultTTL: c.CacheTTL,
		},
		Triage: domain.TriageConfig{
			MaxConcurrency: c.MaxConcurrency,
		},
		Logging: c.Logging(),
	}
}
