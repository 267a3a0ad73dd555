package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jjenkins/scorestream/internal/model"
	"github.com/jjenkins/scorestream/internal/service"
	"github.com/jjenkins/scorestream/internal/store"
)

var (
	ingestForce    bool
	ingestSeedOnly bool
	ingestCategory string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest the college sports catalog from the sports-data source",
	Long: `Ingest fetches every configured team listing, classifies each team and
upserts organizations and programs into PostgreSQL. When the source cannot
be reached and the catalog is empty, the bundled fallback catalog is seeded.

Examples:
  # Ingest unless the catalog was synced within the freshness window
  scorestream ingest

  # Ingest regardless of freshness
  scorestream ingest --force

  # Ingest only football listings
  scorestream ingest --force --category football

  # Load the bundled fallback catalog without contacting the source
  scorestream ingest --seed-only`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "Ingest even when the catalog is fresh")
	ingestCmd.Flags().BoolVar(&ingestSeedOnly, "seed-only", false, "Seed the bundled fallback catalog and exit")
	ingestCmd.Flags().StringVarP(&ingestCategory, "category", "c", "", "Ingest only endpoints of this category")
}

// catalog bundles the database-backed catalog services shared by commands
type catalog struct {
	db          *sql.DB
	orgs        *store.OrganizationStore
	stats       *store.StatsStore
	coordinator *service.Coordinator
}

func openCatalog(ctx context.Context, endpoints []model.CatalogEndpoint) (*catalog, error) {
	if err := store.Migrate(cfg.Database.URL); err != nil {
		return nil, err
	}

	db, err := store.NewDB(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}

	orgs := store.NewOrganizationStore(db)
	ingestor := service.NewIngestor(
		service.NewSportsDataClient(cfg.Upstream, logger),
		orgs,
		service.NewClassifier(cfg.Classifier.Rules),
		logger,
	)
	state := service.NewStateMachine(store.NewSettingsStore(db))

	return &catalog{
		db:          db,
		orgs:        orgs,
		stats:       store.NewStatsStore(db),
		coordinator: service.NewCoordinator(ingestor, orgs, state, endpoints, cfg.Sync, logger),
	}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	endpoints := cfg.Upstream.Endpoints
	if ingestCategory != "" {
		endpoints = nil
		for _, ep := range cfg.Upstream.Endpoints {
			if ep.Category == ingestCategory {
				endpoints = append(endpoints, ep)
			}
		}
		if len(endpoints) == 0 {
			return fmt.Errorf("no endpoints configured for category %q", ingestCategory)
		}
	}

	c, err := openCatalog(ctx, endpoints)
	if err != nil {
		return err
	}
	defer c.db.Close()

	if ingestSeedOnly {
		seeded, err := service.SeedFallback(ctx, c.orgs, logger)
		if err != nil {
			return err
		}
		logger.Info("fallback catalog seeded",
			zap.Int("organizations", seeded.Organizations), zap.Int("programs", seeded.Programs))
		return nil
	}

	trigger := service.TriggerStartup
	if ingestForce {
		trigger = service.TriggerManual
	}

	c.coordinator.Recover(ctx)
	result := c.coordinator.Run(ctx, trigger)
	logResult(result)

	if stats, err := c.stats.Calculate(ctx); err != nil {
		logger.Warn("failed to calculate catalog stats", zap.Error(err))
	} else {
		logger.Info("catalog",
			zap.Int("organizations", stats.Organizations),
			zap.Int("programs", stats.Programs),
			zap.Any("by_classification", stats.ByClassification),
			zap.Any("by_provenance", stats.ByProvenance))
	}

	if result.Outcome == service.OutcomeFailed {
		return fmt.Errorf("ingestion failed: %s", result.Error)
	}
	return nil
}

func logResult(result service.RunResult) {
	fields := []zap.Field{
		zap.String("trigger", string(result.Trigger)),
		zap.String("outcome", string(result.Outcome)),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration),
	}
	if result.Summary != nil {
		fields = append(fields, zap.String("run_id", result.Summary.RunID), zap.Int("stored", result.Summary.Stored()))
		for _, ep := range result.Summary.Endpoints {
			logger.Info("endpoint",
				zap.String("category", ep.Category),
				zap.String("classification", string(ep.Classification)),
				zap.Int("total", ep.Total),
				zap.Int("stored", ep.Stored),
				zap.Int("skipped", ep.Skipped),
				zap.Int("failed", ep.Failed),
				zap.String("error", ep.Error))
		}
	}
	if result.Seeded != nil {
		fields = append(fields, zap.Int("seeded_organizations", result.Seeded.Organizations))
	}
	if result.Error != "" {
		fields = append(fields, zap.String("error", result.Error))
	}
	logger.Info("ingestion finished", fields...)
}
