// Package config loads service configuration and the operator channel
// configuration document.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jjenkins/scorestream/internal/model"
)

// Config is the service configuration threaded into every component
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Upstream   UpstreamConfig   `koanf:"upstream"`
	Sync       SyncConfig       `koanf:"sync"`
	Platform   PlatformConfig   `koanf:"platform"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Channels   ChannelsConfig   `koanf:"channels"`
}

// DatabaseConfig holds the Postgres connection string
type DatabaseConfig struct {
	URL string `koanf:"url" validate:"required"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port int `koanf:"port" validate:"min=1,max=65535"`
}

// LoggingConfig selects log level and encoding
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// UpstreamConfig controls the sports-data source client
type UpstreamConfig struct {
	Timeout           time.Duration           `koanf:"timeout" validate:"gt=0"`
	RequestsPerSecond float64                 `koanf:"requests_per_second" validate:"gt=0"`
	MaxRetries        int                     `koanf:"max_retries" validate:"min=1"`
	Endpoints         []model.CatalogEndpoint `koanf:"endpoints" validate:"dive"`
}

// SyncConfig controls catalog ingestion scheduling
type SyncConfig struct {
	Interval  time.Duration `koanf:"interval" validate:"gt=0"`
	Freshness time.Duration `koanf:"freshness" validate:"gt=0"`
}

// PlatformConfig controls the channel platform client and topology sync
type PlatformConfig struct {
	URL               string        `koanf:"url" validate:"omitempty,url"`
	Username          string        `koanf:"username"`
	Password          string        `koanf:"password"`
	GroupName         string        `koanf:"group_name" validate:"required"`
	StreamBaseURL     string        `koanf:"stream_base_url" validate:"required_with=URL,omitempty,url"`
	ChannelStart      int           `koanf:"channel_start" validate:"min=1"`
	QuickTimeout      time.Duration `koanf:"quick_timeout" validate:"gt=0"`
	ListTimeout       time.Duration `koanf:"list_timeout" validate:"gt=0"`
	AuthRetries       int           `koanf:"auth_retries" validate:"min=1"`
	TokenTTL          time.Duration `koanf:"token_ttl" validate:"gt=0"`
	TokenSafetyMargin time.Duration `koanf:"token_safety_margin" validate:"gte=0"`
	SyncInterval      time.Duration `koanf:"sync_interval" validate:"gt=0"`
}

// Enabled reports whether a platform URL is configured
func (p PlatformConfig) Enabled() bool {
	return p.URL != ""
}

// ClassifierConfig optionally replaces the built-in classification rules
type ClassifierConfig struct {
	Rules []model.ClassificationRule `koanf:"rules" validate:"dive"`
}

// ChannelsConfig locates the channel configuration document
type ChannelsConfig struct {
	Path string `koanf:"path" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DefaultEndpoints lists the upstream listings ingested when none are configured
func DefaultEndpoints() []model.CatalogEndpoint {
	const base = "https://site.api.espn.com/apis/site/v2/sports"
	return []model.CatalogEndpoint{
		{Category: "football", Classification: model.DivisionFBS, Gender: "mens",
			URL: base + "/football/college-football/teams?groups=80&limit=1000"},
		{Category: "football", Classification: model.DivisionFCS, Gender: "mens",
			URL: base + "/football/college-football/teams?groups=81&limit=1000"},
		{Category: "mens-basketball", Classification: model.DivisionD1, Gender: "mens",
			URL: base + "/basketball/mens-college-basketball/teams?groups=50&limit=1000"},
		{Category: "womens-basketball", Classification: model.DivisionD1, Gender: "womens",
			URL: base + "/basketball/womens-college-basketball/teams?groups=50&limit=1000"},
		{Category: "baseball", Classification: model.DivisionD1, Gender: "mens",
			URL: base + "/baseball/college-baseball/teams?limit=1000"},
	}
}
