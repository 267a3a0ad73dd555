package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jjenkins/scorestream/internal/model"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)

	tests := []struct {
		name string
		team model.TeamMeta
		want model.Division
	}{
		{
			name: "tier 3 slug wins over looser tier 1 text",
			team: model.TeamMeta{Groups: []model.GroupLabel{{Slug: "ncaa-d3"}}},
			want: model.DivisionD3,
		},
		{
			name: "division iii label never matches division i",
			team: model.TeamMeta{Groups: []model.GroupLabel{{Name: "NCAA Division III"}}},
			want: model.DivisionD3,
		},
		{
			name: "division ii label",
			team: model.TeamMeta{Groups: []model.GroupLabel{{Name: "NCAA Division II"}}},
			want: model.DivisionD2,
		},
		{
			name: "plain division i",
			team: model.TeamMeta{Groups: []model.GroupLabel{{Name: "NCAA Division I"}}},
			want: model.DivisionD1,
		},
		{
			name: "fbs abbreviation",
			team: model.TeamMeta{Groups: []model.GroupLabel{{Abbreviation: "FBS"}}},
			want: model.DivisionFBS,
		},
		{
			name: "subdivision beats division i in the same label",
			team: model.TeamMeta{Groups: []model.GroupLabel{{Name: "NCAA Division I Football Championship Subdivision"}}},
			want: model.DivisionFCS,
		},
		{
			name: "grouping metadata beats slug",
			team: model.TeamMeta{
				Slug:   "fbs-tigers",
				Groups: []model.GroupLabel{{Name: "Division II"}},
			},
			want: model.DivisionD2,
		},
		{
			name: "slug priority over name within labels",
			team: model.TeamMeta{Groups: []model.GroupLabel{
				{Name: "NCAA Division I"},
				{Slug: "ncaa-d3"},
			}},
			want: model.DivisionD3,
		},
		{
			name: "falls back to slug and display name",
			team: model.TeamMeta{Slug: "some-naia-college", DisplayName: "Some College"},
			want: model.DivisionNAIA,
		},
		{
			name: "juco from display name",
			team: model.TeamMeta{DisplayName: "Iowa Western Junior College Reivers"},
			want: model.DivisionJUCO,
		},
		{
			name: "no signal",
			team: model.TeamMeta{Slug: "alabama-crimson-tide", DisplayName: "Alabama Crimson Tide"},
			want: model.DivisionUnknown,
		},
		{
			name: "empty record",
			team: model.TeamMeta{},
			want: model.DivisionUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, c.Classify(tt.team))
		})
	}
}

func TestClassifierCustomRules(t *testing.T) {
	t.Parallel()

	c := NewClassifier([]model.ClassificationRule{
		{Fragment: "  Ivy  ", Division: model.DivisionFCS},
		{Fragment: "", Division: model.DivisionD1},
	})

	rules := c.Rules()
	assert.Len(t, rules, 1)
	assert.Equal(t, "ivy", rules[0].Fragment)
	assert.Equal(t, model.DivisionFCS, c.Classify(model.TeamMeta{Groups: []model.GroupLabel{{Name: "Ivy League"}}}))
	assert.Equal(t, model.DivisionUnknown, c.Classify(model.TeamMeta{DisplayName: "NCAA Division I"}))
}

func TestDefaultRulesOrderSubstringsLast(t *testing.T) {
	t.Parallel()

	// A fragment that is a substring of a later fragment would shadow it.
	rules := NewClassifier(nil).Rules()
	for i, earlier := range rules {
		for _, later := range rules[i+1:] {
			assert.NotContains(t, later.Fragment, earlier.Fragment,
				"rule %q shadows later rule %q", earlier.Fragment, later.Fragment)
		}
	}
}
