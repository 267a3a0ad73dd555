package service

import (
	"strings"

	"github.com/jjenkins/scorestream/internal/model"
)

// DefaultClassificationRules is the built-in rule table. Order is the
// precedence: a fragment that contains a later fragment as a substring
// must come first. Label formats upstream are not guaranteed, so the table
// can be replaced from configuration.
var DefaultClassificationRules = []model.ClassificationRule{
	{Fragment: "football bowl subdivision", Division: model.DivisionFBS,
		Reason: "subdivision labels also contain division i text"},
	{Fragment: "fbs", Division: model.DivisionFBS,
		Reason: "subdivision labels also contain division i text"},
	{Fragment: "football championship subdivision", Division: model.DivisionFCS,
		Reason: "subdivision labels also contain division i text"},
	{Fragment: "fcs", Division: model.DivisionFCS,
		Reason: "subdivision labels also contain division i text"},
	{Fragment: "ncaa-d3", Division: model.DivisionD3, Reason: "tier 3 before tier 2 and tier 1"},
	{Fragment: "division iii", Division: model.DivisionD3, Reason: "contains division ii and division i"},
	{Fragment: "division 3", Division: model.DivisionD3, Reason: "tier 3 before tier 2 and tier 1"},
	{Fragment: "d-iii", Division: model.DivisionD3, Reason: "contains d-ii"},
	{Fragment: "ncaa-d2", Division: model.DivisionD2, Reason: "tier 2 before tier 1"},
	{Fragment: "division ii", Division: model.DivisionD2, Reason: "contains division i"},
	{Fragment: "division 2", Division: model.DivisionD2, Reason: "tier 2 before tier 1"},
	{Fragment: "d-ii", Division: model.DivisionD2, Reason: "tier 2 before tier 1"},
	{Fragment: "ncaa-d1", Division: model.DivisionD1, Reason: "most general ncaa tier"},
	{Fragment: "division i", Division: model.DivisionD1, Reason: "prefix of division ii and iii, keep after them"},
	{Fragment: "division 1", Division: model.DivisionD1, Reason: "most general ncaa tier"},
	{Fragment: "naia", Division: model.DivisionNAIA, Reason: "distinct association"},
	{Fragment: "njcaa", Division: model.DivisionJUCO, Reason: "distinct association"},
	{Fragment: "junior college", Division: model.DivisionJUCO, Reason: "distinct association"},
	{Fragment: "juco", Division: model.DivisionJUCO, Reason: "distinct association"},
}

// Classifier maps team records to a division using an ordered rule table
type Classifier struct {
	rules []model.ClassificationRule
}

// NewClassifier creates a Classifier. An empty rule list selects
// DefaultClassificationRules.
func NewClassifier(rules []model.ClassificationRule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultClassificationRules
	}

	normalized := make([]model.ClassificationRule, 0, len(rules))
	for _, r := range rules {
		fragment := strings.ToLower(strings.TrimSpace(r.Fragment))
		if fragment == "" {
			continue
		}
		r.Fragment = fragment
		normalized = append(normalized, r)
	}

	return &Classifier{rules: normalized}
}

// Rules returns the normalized rule table in evaluation order
func (c *Classifier) Rules() []model.ClassificationRule {
	return append([]model.ClassificationRule(nil), c.rules...)
}

// Classify returns the division of a team. Grouping labels are searched
// first, field by field in priority order; then the combined slug and
// display name. It returns model.DivisionUnknown when nothing matches.
func (c *Classifier) Classify(team model.TeamMeta) model.Division {
	for _, text := range groupFields(team.Groups) {
		if d, ok := c.match(text); ok {
			return d
		}
	}

	if d, ok := c.match(team.Slug + " " + team.DisplayName); ok {
		return d
	}

	return model.DivisionUnknown
}

func (c *Classifier) match(text string) (model.Division, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}

	for _, r := range c.rules {
		if strings.Contains(text, r.Fragment) {
			return r.Division, true
		}
	}
	return "", false
}

// groupFields lists label text in priority order: every slug, then every
// abbreviation, name and short name.
func groupFields(groups []model.GroupLabel) []string {
	fields := make([]string, 0, len(groups)*4)
	for _, g := range groups {
		fields = append(fields, g.Slug)
	}
	for _, g := range groups {
		fields = append(fields, g.Abbreviation)
	}
	for _, g := range groups {
		fields = append(fields, g.Name)
	}
	for _, g := range groups {
		fields = append(fields, g.ShortName)
	}
	return fields
}
