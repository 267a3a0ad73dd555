package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/scorestream/internal/service"
	"github.com/jjenkins/scorestream/internal/store"
)

// SyncController is the operator view of catalog ingestion
type SyncController interface {
	Status(ctx context.Context) (*service.StatusReport, error)
	TriggerAsync(ctx context.Context) bool
}

// StatsCalculator computes catalog statistics
type StatsCalculator interface {
	Calculate(ctx context.Context) (*store.CatalogStats, error)
}

// SyncStatusHandler reports the sync state, last sync time and catalog counts
func SyncStatusHandler(sync SyncController) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := sync.Status(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(report)
	}
}

// SyncTriggerHandler starts a manual ingestion in the background and
// answers at once. runCtx bounds the run and outlives the request.
func SyncTriggerHandler(sync SyncController, runCtx context.Context) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !sync.TriggerAsync(runCtx) {
			return c.JSON(fiber.Map{"success": true, "status": "already_running"})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "status": "started"})
	}
}

// StatsHandler returns catalog statistics by provenance, classification and category
func StatsHandler(stats StatsCalculator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := stats.Calculate(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(s)
	}
}
