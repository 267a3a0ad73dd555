package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/jjenkins/scorestream/internal/apperr"
	"github.com/jjenkins/scorestream/internal/channels"
	"github.com/jjenkins/scorestream/internal/config"
	"github.com/jjenkins/scorestream/internal/platform"
)

const platformStatusTimeout = 5 * time.Second

// PlatformReader is the read side of the platform client
type PlatformReader interface {
	Ping(ctx context.Context) error
	ListChannels(ctx context.Context, groupName string) ([]platform.Channel, error)
}

// TopologyRunner converges the platform to a channel configuration
type TopologyRunner interface {
	Run(ctx context.Context, cfg *config.ChannelConfig) (*channels.TopologyResult, error)
	TriggerAsync(ctx context.Context, cfg *config.ChannelConfig) bool
}

// ChannelConfigStore reads and writes the channel configuration document
type ChannelConfigStore struct {
	Path     string
	Platform config.PlatformConfig
}

// Load returns the saved document, or the defaults when none is saved
func (s ChannelConfigStore) Load() (*config.ChannelConfig, error) {
	return config.LoadChannelConfig(s.Path, s.Platform)
}

// GetConfigHandler returns the channel configuration document
func GetConfigHandler(store ChannelConfigStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cfg, err := store.Load()
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(cfg)
	}
}

// SaveConfigHandler validates and saves the channel configuration document.
// Fields absent from the body keep their defaults.
func SaveConfigHandler(store ChannelConfigStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cfg := config.DefaultChannelConfig(store.Platform)
		if err := c.BodyParser(cfg); err != nil {
			return badRequest(c, "invalid request body")
		}
		if cfg.Numbering.Layout == "" {
			cfg.Numbering.Layout = config.LayoutBoth
		}
		if err := cfg.Validate(); err != nil {
			return respondError(c, apperr.Validation("handlers.SaveConfig", err.Error()))
		}

		if err := config.SaveChannelConfig(store.Path, cfg); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "status": "saved"})
	}
}

// PlatformStatusHandler reports whether the platform is reachable and
// accepts the configured credentials
func PlatformStatusHandler(client PlatformReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), platformStatusTimeout)
		defer cancel()

		if err := client.Ping(ctx); err != nil {
			return c.JSON(fiber.Map{"connected": false, "reason": apperr.Message(err)})
		}
		return c.JSON(fiber.Map{"connected": true})
	}
}

// PlatformChannelsHandler lists the platform channels in the configured group
func PlatformChannelsHandler(client PlatformReader, store ChannelConfigStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cfg, err := store.Load()
		if err != nil {
			return respondError(c, err)
		}

		list, err := client.ListChannels(c.UserContext(), cfg.Platform.GroupName)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	}
}

// PlatformSyncHandler runs a topology sync. By default it starts the sync
// in the background and answers 202; with ?wait=true it runs inline and
// returns the result. Either way a sync already in flight answers 409.
// runCtx bounds background runs.
func PlatformSyncHandler(runner TopologyRunner, store ChannelConfigStore, runCtx context.Context, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cfg, err := store.Load()
		if err != nil {
			return respondError(c, err)
		}

		if c.QueryBool("wait") {
			result, err := runner.Run(c.UserContext(), cfg)
			if errors.Is(err, channels.ErrSyncInProgress) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "message": err.Error()})
			}
			if err != nil {
				return respondError(c, err)
			}
			return c.JSON(result)
		}

		if !runner.TriggerAsync(runCtx, cfg) {
			logger.Info("topology sync already running, not starting another")
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "message": channels.ErrSyncInProgress.Error()})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "status": "started"})
	}
}

// PlatformDisabledHandler answers platform routes when no platform URL is configured
func PlatformDisabledHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/api/platform/status" {
			return c.JSON(fiber.Map{"connected": false, "reason": "platform URL not configured"})
		}
		return badRequest(c, "platform URL not configured")
	}
}
