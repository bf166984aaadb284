package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-triage-server/internal/domain"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearLiteEnv(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Empty(t, cfg.SQLitePath)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearLiteEnv(t)
	t.Setenv("TRIAGE_DATA_DIR", "/tmp/test-triage")
	t.Setenv("TRIAGE_SQLITE_PATH", "/srv/records.db")
	t.Setenv("TRIAGE_CACHE_MAX_ITEMS", "500")
	t.Setenv("TRIAGE_CACHE_TTL", "12h")
	t.Setenv("TRIAGE_MAX_CONCURRENCY", "16")
	t.Setenv("TRIAGE_LOG_LEVEL", "debug")
	t.Setenv("TRIAGE_LOG_FORMAT", "text")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-triage", cfg.DataDir)
	assert.Equal(t, "/srv/records.db", cfg.RecordStorePath())
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 16, cfg.MaxConcurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.Logging().Format)
}

func TestLoadLiteConfig_IgnoresInvalidNumbers(t *testing.T) {
	clearLiteEnv(t)
	t.Setenv("TRIAGE_CACHE_MAX_ITEMS", "-3")
	t.Setenv("TRIAGE_MAX_CONCURRENCY", "many")
	t.Setenv("TRIAGE_CACHE_TTL", "soon")

	cfg := LoadLiteConfig()

	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
}

func TestLiteConfig_RecordStorePath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.clinical-triage"}

	assert.Equal(t, "/home/user/.clinical-triage/triage.db", cfg.RecordStorePath())
}

func TestLiteConfig_Logging(t *testing.T) {
	cfg := &LiteConfig{LogLevel: "warn", LogFormat: "json"}

	logging := cfg.Logging()

	assert.Equal(t, "warn", logging.Level)
	assert.Equal(t, "stderr", logging.Output)
}

func TestLiteConfig_AppConfig(t *testing.T) {
	cfg := &LiteConfig{
		DataDir:        "/var/lib/triage",
		CacheMaxItems:  200,
		CacheTTL:       time.Minute,
		MaxConcurrency: 2,
		LogLevel:       "debug",
	}

	app := cfg.AppConfig()

	assert.Equal(t, domain.StoreDriverSQLite, app.Store.Driver)
	assert.Equal(t, "/var/lib/triage/triage.db", app.Store.SQLitePath)
	assert.True(t, app.Cache.Enabled)
	assert.Empty(t, app.Cache.RedisURL)
	assert.Equal(t, 200, app.Cache.MemorySize)
	assert.Equal(t, 2, app.Triage.MaxConcurrency)
	assert.Equal(t, "stderr", app.Logging.Output)
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "triage")}

	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, cfg.DataDir)
}

// clearLiteEnv blanks every lite variable for the duration of the test.
func clearLiteEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"TRIAGE_DATA_DIR",
		"TRIAGE_SQLITE_PATH",
		"TRIAGE_CACHE_MAX_ITEMS",
		"TRIAGE_CACHE_TTL",
		"TRIAGE_MAX_CONCURRENCY",
		"TRIAGE_LOG_LEVEL",
		"TRIAGE_LOG_FORMAT",
	}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}
