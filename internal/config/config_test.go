package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(4), cfg.Server.MaxConcurrentRuns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 500, cfg.Discovery.MaxCompaniesCeiling)
	assert.Equal(t, int64(600000), cfg.Discovery.TimeBudgetCeilingMs)
	assert.Contains(t, cfg.Discovery.DirectoryBlocklist, "yelp.com")
	assert.Equal(t, "intents.yaml", cfg.Intents.Path)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
store:
  driver: sqlite
  database_url: prospect.db
server:
  port: 9090
discovery:
  max_companies_ceiling: 50
schedule:
  entries:
    - cron: "0 6 * * *"
      intent: marketing-agencies
      dry_run: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "prospect.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Discovery.MaxCompaniesCeiling)
	require.Len(t, cfg.Schedule.Entries, 1)
	assert.Equal(t, "marketing-agencies", cfg.Schedule.Entries[0].Intent)
	assert.True(t, cfg.Schedule.Entries[0].DryRun)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PROSPECT_STORE_DRIVER", "sqlite")
	t.Setenv("PROSPECT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "chatty", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
