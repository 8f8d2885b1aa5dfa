package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "cellar.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.EnrichModel)
	assert.Equal(t, 10, cfg.Anthropic.TimeoutSecs)
	assert.Equal(t, 4, cfg.Ingest.MinLineLength)
	assert.Equal(t, 20, cfg.Ingest.SampleSize)
	assert.Equal(t, 1, cfg.Ingest.Workers)
	assert.Equal(t, 1000, cfg.Enrich.ItemDelayMS)
	assert.Equal(t, 75, cfg.Enrich.MinNotesLength)

	require.Len(t, cfg.Ingest.Tiers, 4)
	assert.Equal(t, 25, cfg.Ingest.Tiers[0].BatchSize)
	assert.Equal(t, 250, cfg.Ingest.Tiers[0].ItemDelayMS)
	assert.Equal(t, 200, cfg.Ingest.Tiers[3].BatchSize)
	assert.Equal(t, 50, cfg.Ingest.Tiers[3].ItemDelayMS)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/cellar
log:
  level: debug
  format: console
server:
  port: 9090
ingest:
  min_line_length: 6
  tiers:
    - min_lines: 0
      batch_size: 10
      item_delay_ms: 5
      batch_pause_ms: 10
enrich:
  min_notes_length: 100
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/cellar", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Ingest.MinLineLength)
	assert.Equal(t, 100, cfg.Enrich.MinNotesLength)
	require.Len(t, cfg.Ingest.Tiers, 1)
	assert.Equal(t, 10, cfg.Ingest.Tiers[0].BatchSize)
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
