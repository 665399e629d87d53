package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HOST", "")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)
	require.Equal(t, defaultConfig(), cfg)
	require.Equal(t, time.Minute, cfg.BatchOptions().TaskTimeout)
	require.Equal(t, 30*time.Second, cfg.PortalOptions().RequestTimeout)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	err := os.WriteFile(path, []byte(`{
		// only a few fields, the rest fall back to defaults
		port: 8080,
		allowed_origins: ["https://app.example"],
		batch: { workers: 4 },
	}`), 0644)
	require.NoError(t, err)

	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, []string{"https://app.example"}, cfg.AllowedOrigins)
	require.Equal(t, 4, cfg.Batch.Workers)
	require.Equal(t, 60, cfg.Batch.TaskTimeout)
	require.Equal(t, defaultConfig().Portal, cfg.Portal)

	t.Setenv("PORT", "9000")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)

	t.Setenv("PORT", "not a port")
	_, err = LoadConfig(path)
	require.Error(t, err)
}
