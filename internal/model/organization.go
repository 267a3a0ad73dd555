package model

import (
	"database/sql"
	"strings"
	"time"
)

// Provenance records where an organization's data came from
type Provenance string

const (
	ProvenanceUpstream Provenance = "upstream"
	ProvenanceFallback Provenance = "fallback"
	ProvenanceManual   Provenance = "manual"
)

// Organization represents a school or institution in the catalog
type Organization struct {
	ID             int           `json:"id"`
	Abbreviation   string        `json:"abbreviation"`
	Name           string        `json:"name"`
	Location       string        `json:"location"`
	PrimaryColor   string        `json:"primary_color"`
	AlternateColor string        `json:"alternate_color"`
	LogoURL        string        `json:"logo_url"`
	UpstreamID     sql.NullInt64 `json:"-"`
	Slug           string        `json:"slug"`
	Provenance     Provenance    `json:"provenance"`
	LastSyncedAt   sql.NullTime  `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Programs       []Program     `json:"programs,omitempty"`
}

// NormalizeAbbreviation returns the lookup-key form of an upstream abbreviation
func NormalizeAbbreviation(abbr string) string {
	return strings.ToUpper(strings.TrimSpace(abbr))
}

// OrganizationFilter selects organizations for a catalog query.
// Text matches abbreviation, name or location case-insensitively;
// Classification restricts to organizations with a program in that division.
type OrganizationFilter struct {
	Text           string
	Classification Division
}

// TeamMeta is one team record from the sports-data source, normalized
// from whichever payload shape the listing used
type TeamMeta struct {
	ID               int64
	Slug             string
	Abbreviation     string
	DisplayName      string
	ShortDisplayName string
	Name             string
	Nickname         string
	Location         string
	Color            string
	AlternateColor   string
	LogoURL          string
	Groups           []GroupLabel
}

// GroupLabel is a grouping label (conference, division) attached to a team
type GroupLabel struct {
	ID           string
	Name         string
	Abbreviation string
	ShortName    string
	Slug         string
}
