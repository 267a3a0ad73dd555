package model

import (
	"database/sql"
	"time"
)

// Division is a competitive tier assigned to a program
type Division string

const (
	DivisionFBS     Division = "fbs"
	DivisionFCS     Division = "fcs"
	DivisionD1      Division = "d1"
	DivisionD2      Division = "d2"
	DivisionD3      Division = "d3"
	DivisionNAIA    Division = "naia"
	DivisionJUCO    Division = "juco"
	DivisionUnknown Division = "unknown"
)

// Divisions lists every known division tag, unknown last
var Divisions = []Division{
	DivisionFBS, DivisionFCS, DivisionD1, DivisionD2, DivisionD3,
	DivisionNAIA, DivisionJUCO, DivisionUnknown,
}

// Valid reports whether d is one of the known division tags
func (d Division) Valid() bool {
	for _, known := range Divisions {
		if d == known {
			return true
		}
	}
	return false
}

// Program represents an organization's team in one (category, classification) pairing
type Program struct {
	ID             int          `json:"id"`
	OrganizationID int          `json:"organization_id"`
	Category       string       `json:"category"`
	Classification Division     `json:"classification"`
	Gender         string       `json:"gender"`
	Nickname       string       `json:"nickname"`
	DisplayName    string       `json:"display_name"`
	ShortName      string       `json:"short_name"`
	UpstreamTeamID string       `json:"upstream_team_id"`
	LastSyncedAt   sql.NullTime `json:"-"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ProgramFields carries the descriptive attributes written by a program upsert
type ProgramFields struct {
	Gender         string `json:"gender"`
	Nickname       string `json:"nickname"`
	DisplayName    string `json:"display_name"`
	ShortName      string `json:"short_name"`
	UpstreamTeamID string `json:"upstream_team_id"`
}

// ClassificationRule maps a text fragment to a division. Rules are evaluated
// in order and the first match wins, so a fragment that contains another
// rule's fragment must be listed before it. Reason records why the rule sits
// where it does.
type ClassificationRule struct {
	Fragment string   `koanf:"fragment" json:"fragment" validate:"required"`
	Division Division `koanf:"division" json:"division" validate:"required"`
	Reason   string   `koanf:"reason" json:"reason,omitempty"`
}
