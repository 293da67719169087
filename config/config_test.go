package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "stockledger.db", cfg.DB.Path)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, 10, cfg.Report.TopN)
	assert.Equal(t, 30, cfg.Report.WindowDays)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LEDGER_DB_PATH", "/var/lib/stockledger/kitchen.db")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("REPORT_WINDOW_DAYS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "/var/lib/stockledger/kitchen.db", cfg.DB.Path)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 7, cfg.Report.WindowDays)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL: debug\nREPORT_TOP_N: 3\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 3, cfg.Report.TopN)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "70000")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("LOG_LEVEL", "loud")
	_, err = Load("")
	assert.Error(t, err)
}
