package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// Numbering modes
const (
	NumberingAuto   = "auto"
	NumberingManual = "manual"
)

// Channel layouts select which canonical channels take part
const (
	LayoutCombined = "combined"
	LayoutPerSport = "per_sport"
	LayoutBoth     = "both"
)

// Profile visibility modes
const (
	ProfilesAll      = "all"
	ProfilesNone     = "none"
	ProfilesSpecific = "specific"
)

// ChannelConfig is the operator-supplied channel configuration document
type ChannelConfig struct {
	Numbering NumberingConfig       `json:"numbering" validate:"required"`
	Platform  ChannelPlatformConfig `json:"platform" validate:"required"`
}

// NumberingConfig controls channel numbering and per-channel overrides
type NumberingConfig struct {
	Mode       string                     `json:"mode" validate:"oneof=auto manual"`
	BaseNumber int                        `json:"base_number" validate:"min=1"`
	Layout     string                     `json:"layout,omitempty" validate:"omitempty,oneof=combined per_sport both"`
	Channels   map[string]ChannelOverride `json:"channels,omitempty" validate:"dive"`
}

// ChannelOverride changes one canonical channel. Unset fields keep the default.
type ChannelOverride struct {
	Name    string `json:"name,omitempty"`
	Number  *int   `json:"number,omitempty" validate:"omitempty,min=1"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// ChannelPlatformConfig selects the target group and profile visibility
type ChannelPlatformConfig struct {
	GroupName string        `json:"group_name" validate:"required"`
	Profiles  ProfilePolicy `json:"profiles"`
}

// ProfilePolicy declares which platform profiles see the channels
type ProfilePolicy struct {
	Mode       string `json:"mode" validate:"oneof=all none specific"`
	ProfileIDs []int  `json:"profile_ids,omitempty"`
}

// DefaultChannelConfig returns the document used when none is saved yet
func DefaultChannelConfig(p PlatformConfig) *ChannelConfig {
	return &ChannelConfig{
		Numbering: NumberingConfig{
			Mode:       NumberingAuto,
			BaseNumber: p.ChannelStart,
			Layout:     LayoutBoth,
		},
		Platform: ChannelPlatformConfig{
			GroupName: p.GroupName,
			Profiles:  ProfilePolicy{Mode: ProfilesAll},
		},
	}
}

// Validate checks field constraints
func (c *ChannelConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid channel configuration: %w", err)
	}
	if c.Platform.Profiles.Mode == ProfilesSpecific && len(c.Platform.Profiles.ProfileIDs) == 0 {
		return errors.New("invalid channel configuration: profile mode specific needs profile_ids")
	}
	return nil
}

// LoadChannelConfig reads the document at path. A missing file yields the
// defaults derived from p; missing fields in a present file are filled from
// the same defaults.
func LoadChannelConfig(path string, p PlatformConfig) (*ChannelConfig, error) {
	cfg := DefaultChannelConfig(p)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read channel configuration: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse channel configuration: %w", err)
	}
	if cfg.Numbering.Layout == "" {
		cfg.Numbering.Layout = LayoutBoth
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveChannelConfig validates and writes the document to path
func SaveChannelConfig(path string, cfg *ChannelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode channel configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write channel configuration: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace channel configuration: %w", err)
	}
	return nil
}
