package config

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DataDir_FromEnvVar(t *testing.T) {
	t.Setenv("SENTINEL_DATA_DIR", "")
	tmpDir := t.TempDir()
	t.Setenv("SENTINEL_DATA_DIR", tmpDir)

	cfg, err := Load()
	require.NoError(t, err)

	absPath, err := filepath.Abs(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, absPath, cfg.DataDir)
}

func TestLoad_DataDir_CLIOverrideWinsOverEnv(t *testing.T) {
	envDir := t.TempDir()
	overrideDir := t.TempDir()
	t.Setenv("SENTINEL_DATA_DIR", envDir)

	cfg, err := Load(overrideDir)
	require.NoError(t, err)

	absOverride, err := filepath.Abs(overrideDir)
	require.NoError(t, err)
	assert.Equal(t, absOverride, cfg.DataDir)
}

func TestLoad_DefaultsAppliedWhenUnset(t *testing.T) {
	t.Setenv("SENTINEL_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.True(t, cfg.DefaultSlippagePercent.Equal(decimal.NewFromFloat(0.05)))
	assert.True(t, cfg.DefaultCommission.Equal(decimal.NewFromInt(20)))
	assert.False(t, cfg.Archive.Enabled, "archive is disabled until a bucket is configured")
}

func TestLoad_ArchiveEnabledWhenBucketSet(t *testing.T) {
	t.Setenv("SENTINEL_DATA_DIR", t.TempDir())
	t.Setenv("ARCHIVE_BUCKET", "sentinel-artifacts")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "sentinel-artifacts", cfg.Archive.Bucket)
}

func TestLoad_BrokerCredsCollectedFromEnvironment(t *testing.T) {
	t.Setenv("SENTINEL_DATA_DIR", t.TempDir())
	t.Setenv("BROKER_ZERODHA_API_KEY", "demo-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "demo-key", cfg.BrokerCreds["zerodha_api_key"])
}

func TestValidate_RejectsCriticalThresholdAboveWarningThreshold(t *testing.T) {
	cfg := &Config{MinFreeDiskGB: 1, CriticalFreeDiskGB: 5}
	err := cfg.Validate()
	assert.Error(t, err)
}
