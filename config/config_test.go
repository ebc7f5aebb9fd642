package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	// Isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "filehaven.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, 5, cfg.Jobs.PollIntervalSeconds)
	assert.Equal(t, 3, cfg.Jobs.MaxAttempts)
	assert.Equal(t, 30, cfg.Jobs.RetentionDays)
	assert.Equal(t, 3600, cfg.Jobs.JobTimeoutSeconds)
	assert.Equal(t, 30, cfg.Jobs.ShutdownTimeoutSeconds)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 60, cfg.Scheduler.IntervalSeconds)
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "filehaven.toml")

	content := `
[database]
path = "/var/lib/filehaven/data.db"

[jobs]
workers = 8
retention_days = 7

[scheduler]
enabled = false
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/filehaven/data.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Jobs.Workers)
	assert.Equal(t, 7, cfg.Jobs.RetentionDays)
	// Unset keys fall back to defaults
	assert.Equal(t, 5, cfg.Jobs.PollIntervalSeconds)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/filehaven.toml")
	assert.Error(t, err)
}

func TestLoadCaches(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first, err := Load()
	require.NoError(t, err)

	second, err := Load()
	require.NoError(t, err)
	assert.Same(t, first, second)
}
