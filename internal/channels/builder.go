// Package channels turns the operator channel configuration into numbered
// channel descriptors and converges the platform to them.
package channels

import (
	"github.com/jjenkins/scorestream/internal/config"
	"github.com/jjenkins/scorestream/internal/model"
)

// Definition is one canonical channel
type Definition struct {
	ID       string
	Name     string
	Combined bool
}

// Canonical lists every channel in numbering order. The combined channel
// comes first, then one channel per sport.
var Canonical = []Definition{
	{ID: "all-sports", Name: "ScoreStream - All Sports", Combined: true},
	{ID: "nfl", Name: "ScoreStream - NFL"},
	{ID: "nba", Name: "ScoreStream - NBA"},
	{ID: "mlb", Name: "ScoreStream - MLB"},
	{ID: "nhl", Name: "ScoreStream - NHL"},
	{ID: "ncaa-basketball", Name: "ScoreStream - NCAA Basketball"},
	{ID: "ncaa-baseball", Name: "ScoreStream - NCAA Baseball"},
}

// Build returns the enabled channels in canonical order with their numbers.
//
// Disabled channels, and channels the layout leaves out, are dropped and
// consume no number. In auto mode enabled channels are numbered from the
// base number upward. In manual mode a channel's override number is used
// when set, else the next auto number; the auto counter advances for every
// enabled channel either way, so override numbers inside the auto range
// can collide. Choosing them outside that range is the operator's job.
func Build(cfg *config.ChannelConfig) []model.ChannelDescriptor {
	out := make([]model.ChannelDescriptor, 0, len(Canonical))
	next := cfg.Numbering.BaseNumber

	for _, def := range Canonical {
		if !inLayout(cfg.Numbering.Layout, def) {
			continue
		}

		override := cfg.Numbering.Channels[def.ID]
		if override.Enabled != nil && !*override.Enabled {
			continue
		}

		name := def.Name
		if override.Name != "" {
			name = override.Name
		}

		number := next
		if cfg.Numbering.Mode == config.NumberingManual && override.Number != nil {
			number = *override.Number
		}
		next++

		out = append(out, model.ChannelDescriptor{
			ID:      def.ID,
			Name:    name,
			Number:  number,
			Enabled: true,
		})
	}

	return out
}

func inLayout(layout string, def Definition) bool {
	switch layout {
	case config.LayoutCombined:
		return def.Combined
	case config.LayoutPerSport:
		return !def.Combined
	default:
		return true
	}
}
