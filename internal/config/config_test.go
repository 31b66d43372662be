package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gis-ops/hannibal/internal/sevas"
)

// chTempDir keeps stray config.yaml files out of the working directory.
func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, sevas.DefaultBaseURL, cfg.SEVAS.BaseURL)
	assert.Equal(t, "2.0.0", cfg.SEVAS.Version)
	assert.Equal(t, 2, cfg.Download.Concurrency)
	assert.Equal(t, 1.0, cfg.Download.RequestsPerSecond)
	assert.Equal(t, 300, cfg.Download.TimeoutSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.RunDB)
}

func TestLoadEnvOverrides(t *testing.T) {
	chTempDir(t)
	t.Setenv("SEVAS_LOG_LEVEL", "debug")
	t.Setenv("SEVAS_DOWNLOAD_CONCURRENCY", "5")
	t.Setenv("SEVAS_SEVAS_BASE_URL", "http://localhost:8080/wfs")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Download.Concurrency)
	assert.Equal(t, "http://localhost:8080/wfs", cfg.SEVAS.BaseURL)
}

func TestLoadConfigFile(t *testing.T) {
	dir := chTempDir(t)
	yaml := `
sevas:
  version: 1.1.0
log:
  level: warn
run_db: runs.db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "1.1.0", cfg.SEVAS.Version)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "runs.db", cfg.RunDB)
	// untouched keys keep their defaults
	assert.Equal(t, sevas.DefaultBaseURL, cfg.SEVAS.BaseURL)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))

	err := InitLogger(LogConfig{Level: "bogus", Format: "console"})
	assert.Error(t, err)
}
