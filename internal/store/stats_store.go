package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jjenkins/scorestream/internal/metrics"
)

// StatsStore calculates catalog-wide statistics
type StatsStore struct {
	db *sql.DB
}

// NewStatsStore creates a new StatsStore
func NewStatsStore(db *sql.DB) *StatsStore {
	return &StatsStore{db: db}
}

// CatalogStats summarizes the catalog
type CatalogStats struct {
	Organizations    int            `json:"organizations"`
	Programs         int            `json:"programs"`
	ByProvenance     map[string]int `json:"by_provenance"`
	ByClassification map[string]int `json:"by_classification"`
	ByCategory       map[string]int `json:"by_category"`
}

// Calculate computes catalog statistics and refreshes the catalog gauges
func (s *StatsStore) Calculate(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM organizations),
			(SELECT COUNT(*) FROM programs)
	`).Scan(&stats.Organizations, &stats.Programs)
	if err != nil {
		return nil, fmt.Errorf("failed to count catalog: %w", err)
	}

	if stats.ByProvenance, err = s.countBy(ctx,
		`SELECT provenance, COUNT(*) FROM organizations GROUP BY provenance`); err != nil {
		return nil, err
	}
	if stats.ByClassification, err = s.countBy(ctx,
		`SELECT classification, COUNT(*) FROM programs GROUP BY classification`); err != nil {
		return nil, err
	}
	if stats.ByCategory, err = s.countBy(ctx,
		`SELECT category, COUNT(*) FROM programs GROUP BY category`); err != nil {
		return nil, err
	}

	metrics.CatalogEntities.WithLabelValues("organizations").Set(float64(stats.Organizations))
	metrics.CatalogEntities.WithLabelValues("programs").Set(float64(stats.Programs))

	return stats, nil
}

// countBy runs a two-column (key, count) grouping query
func (s *StatsStore) countBy(ctx context.Context, query string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to group catalog: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[key] = n
	}

	return counts, rows.Err()
}
