package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
logger:
  level: debug
database:
  driver: postgres
  dsn: host=localhost
quote:
  rate_limit: 1
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), content, 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "stdout", cfg.Logger.Output)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, float64(1), cfg.Quote.RateLimit)
	assert.Equal(t, 2, cfg.Quote.RateLimitBurst)
	assert.True(t, cfg.Matching.ExcludeSettled)
	assert.Equal(t, 300, cfg.Reconciler.Interval)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("server:\n  port: 8080\n"), 0o644))
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}
