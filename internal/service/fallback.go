package service

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/jjenkins/scorestream/internal/model"
)

//go:embed seed/fallback.json
var fallbackCatalog []byte

// FallbackCatalog decodes the embedded seed catalog
func FallbackCatalog() ([]model.Organization, error) {
	var orgs []model.Organization
	if err := json.Unmarshal(fallbackCatalog, &orgs); err != nil {
		return nil, fmt.Errorf("failed to parse fallback catalog: %w", err)
	}
	return orgs, nil
}

// SeedStats counts what SeedFallback wrote
type SeedStats struct {
	Organizations int `json:"organizations"`
	Programs      int `json:"programs"`
}

// SeedFallback writes the embedded catalog with fallback provenance. It
// upserts by natural key, so seeding twice changes nothing.
func SeedFallback(ctx context.Context, writer CatalogWriter, logger *zap.Logger) (*SeedStats, error) {
	orgs, err := FallbackCatalog()
	if err != nil {
		return nil, err
	}

	stats := &SeedStats{}
	for _, o := range orgs {
		org := o
		org.Provenance = model.ProvenanceFallback
		org.Programs = nil

		orgID, err := writer.UpsertOrganization(ctx, &org)
		if err != nil {
			return stats, fmt.Errorf("failed to seed organization %s: %w", o.Abbreviation, err)
		}
		stats.Organizations++

		for _, p := range o.Programs {
			fields := model.ProgramFields{
				Gender:      p.Gender,
				Nickname:    p.Nickname,
				DisplayName: p.DisplayName,
				ShortName:   p.ShortName,
			}
			if _, err := writer.UpsertProgram(ctx, orgID, p.Category, p.Classification, fields); err != nil {
				return stats, fmt.Errorf("failed to seed program %s/%s: %w", o.Abbreviation, p.Category, err)
			}
			stats.Programs++
		}
	}

	logger.Info("seeded fallback catalog",
		zap.Int("organizations", stats.Organizations),
		zap.Int("programs", stats.Programs))
	return stats, nil
}
