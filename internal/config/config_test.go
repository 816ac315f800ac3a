package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.GapThreshold)
	assert.Equal(t, 30*time.Minute, cfg.ContextWindow)
	assert.Equal(t, 25, cfg.SearchLimit)
	assert.Equal(t, 60*time.Second, cfg.SearchCacheTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)

	// The ~ prefix is expanded to an absolute path.
	assert.True(t, filepath.IsAbs(cfg.DBPath))
	assert.Contains(t, cfg.DBPath, ".lifelogd")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LIFELOG_DB_PATH", "/tmp/test.db")
	t.Setenv("LIFELOG_GAP_THRESHOLD", "10m")
	t.Setenv("LIFELOG_SEARCH_LIMIT", "50")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, 10*time.Minute, cfg.GapThreshold)
	assert.Equal(t, 50, cfg.SearchLimit)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadBadDuration(t *testing.T) {
	t.Setenv("LIFELOG_GAP_THRESHOLD", "sometimes")

	_, err := Load()
	assert.Error(t, err)
}
