package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPlatform = PlatformConfig{GroupName: "ScoreStream", ChannelStart: 900}

func TestLoadChannelConfigMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadChannelConfig(filepath.Join(t.TempDir(), "nope.json"), testPlatform)
	require.NoError(t, err)

	assert.Equal(t, NumberingAuto, cfg.Numbering.Mode)
	assert.Equal(t, 900, cfg.Numbering.BaseNumber)
	assert.Equal(t, LayoutBoth, cfg.Numbering.Layout)
	assert.Equal(t, "ScoreStream", cfg.Platform.GroupName)
	assert.Equal(t, ProfilesAll, cfg.Platform.Profiles.Mode)
}

func TestLoadChannelConfigMergesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"numbering": {"mode": "manual", "channels": {"nfl": {"number": 1000, "enabled": false}}},
		"platform": {"profiles": {"mode": "specific", "profile_ids": [1, 2]}}
	}`), 0o644))

	cfg, err := LoadChannelConfig(path, testPlatform)
	require.NoError(t, err)

	assert.Equal(t, NumberingManual, cfg.Numbering.Mode)
	assert.Equal(t, 900, cfg.Numbering.BaseNumber)
	require.Contains(t, cfg.Numbering.Channels, "nfl")
	assert.Equal(t, 1000, *cfg.Numbering.Channels["nfl"].Number)
	assert.False(t, *cfg.Numbering.Channels["nfl"].Enabled)
	assert.Equal(t, "ScoreStream", cfg.Platform.GroupName)
	assert.Equal(t, []int{1, 2}, cfg.Platform.Profiles.ProfileIDs)
}

func TestChannelConfigValidation(t *testing.T) {
	t.Parallel()

	cfg := DefaultChannelConfig(testPlatform)
	cfg.Numbering.Mode = "random"
	assert.Error(t, cfg.Validate())

	cfg = DefaultChannelConfig(testPlatform)
	cfg.Platform.Profiles.Mode = ProfilesSpecific
	assert.ErrorContains(t, cfg.Validate(), "profile_ids")

	cfg = DefaultChannelConfig(testPlatform)
	cfg.Platform.GroupName = ""
	assert.Error(t, cfg.Validate())
}

func TestSaveChannelConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultChannelConfig(testPlatform)
	cfg.Numbering.BaseNumber = 500

	require.NoError(t, SaveChannelConfig(path, cfg))

	loaded, err := LoadChannelConfig(path, testPlatform)
	require.NoError(t, err)
	assert.Equal(t, 500, loaded.Numbering.BaseNumber)

	cfg.Numbering.Mode = "bogus"
	assert.Error(t, SaveChannelConfig(path, cfg))
}
