package cmd

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jjenkins/scorestream/internal/channels"
	"github.com/jjenkins/scorestream/internal/config"
	"github.com/jjenkins/scorestream/internal/handlers"
	"github.com/jjenkins/scorestream/internal/platform"
)

const shutdownTimeout = 10 * time.Second

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ScoreStream API server and background sync workers",
	Long: `Serve starts the JSON API, the catalog sync worker and, when DISPATCHARR_URL
is set, the channel topology worker and token keep-alive.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if port != 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, err := openCatalog(ctx, cfg.Upstream.Endpoints)
	if err != nil {
		return err
	}
	defer c.db.Close()

	g, gctx := errgroup.WithContext(ctx)
	var syncer *channels.Syncer

	channelConfig := handlers.ChannelConfigStore{Path: cfg.Channels.Path, Platform: cfg.Platform}
	deps := handlers.Deps{
		Catalog: c.orgs,
		Stats:   c.stats,
		Sync:    c.coordinator,
		Config:  channelConfig,
		RunCtx:  gctx,
		Logger:  logger,
	}

	if cfg.Platform.Enabled() {
		client := platform.New(cfg.Platform, logger)
		syncer = channels.NewSyncer(client, cfg.Platform.StreamBaseURL, logger)
		deps.Platform = client
		deps.Topology = syncer

		g.Go(func() error {
			return syncer.Start(gctx, cfg.Platform.SyncInterval, channelConfig.Load)
		})
		g.Go(func() error {
			return client.KeepAlive(gctx, keepAliveInterval(cfg.Platform))
		})
	} else {
		logger.Warn("DISPATCHARR_URL not set, channel topology sync disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:               "ScoreStream",
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New())
	handlers.Register(app, deps)

	g.Go(func() error {
		return c.coordinator.Start(gctx)
	})

	g.Go(func() error {
		addr := ":" + strconv.Itoa(cfg.Server.Port)
		logger.Info("starting server", zap.String("addr", addr))
		return app.Listen(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	err = g.Wait()
	if syncer != nil {
		syncer.Wait()
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// keepAliveInterval renews tokens at half their configured lifetime
func keepAliveInterval(p config.PlatformConfig) time.Duration {
	interval := p.TokenTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
