package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint
const Version = "v0.0.1-beta"

// Deps are the components the routes are served from. Platform and
// Topology are nil when no platform URL is configured.
type Deps struct {
	Catalog  CatalogStore
	Stats    StatsCalculator
	Sync     SyncController
	Config   ChannelConfigStore
	Platform PlatformReader
	Topology TopologyRunner
	// RunCtx bounds work started in the background by a request
	RunCtx context.Context
	Logger *zap.Logger
}

// HealthHandler reports liveness
func HealthHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	}
}

// Register mounts every route on app
func Register(app *fiber.App, d Deps) {
	app.Get("/health", HealthHandler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	api.Get("/organizations", ListOrganizationsHandler(d.Catalog))
	api.Post("/organizations", CreateOrganizationHandler(d.Catalog))
	api.Get("/organizations/:id", GetOrganizationHandler(d.Catalog))
	api.Put("/organizations/:id", UpdateOrganizationHandler(d.Catalog))
	api.Delete("/organizations/:id", DeleteOrganizationHandler(d.Catalog))
	api.Put("/organizations/:id/programs", UpsertProgramHandler(d.Catalog))
	api.Get("/stats", StatsHandler(d.Stats))

	api.Get("/sync/status", SyncStatusHandler(d.Sync))
	api.Post("/sync/trigger", SyncTriggerHandler(d.Sync, d.RunCtx))

	api.Get("/config", GetConfigHandler(d.Config))
	api.Post("/config", SaveConfigHandler(d.Config))

	if d.Platform == nil || d.Topology == nil {
		disabled := PlatformDisabledHandler()
		api.Get("/platform/status", disabled)
		api.Get("/platform/channels", disabled)
		api.Post("/platform/sync", disabled)
		return
	}
	api.Get("/platform/status", PlatformStatusHandler(d.Platform))
	api.Get("/platform/channels", PlatformChannelsHandler(d.Platform, d.Config))
	api.Post("/platform/sync", PlatformSyncHandler(d.Topology, d.Config, d.RunCtx, d.Logger))
}
