package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/weather-shell/internal/api/http"
	"github.com/i474232898/weather-shell/internal/scheduler"
	"github.com/i474232898/weather-shell/internal/worker"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache gateway and control API",
	Long: `
The "serve" command installs and activates the current cache version, then
answers requests for PUBLIC_ORIGIN cache-first, proxying misses to
UPSTREAM_ORIGIN. The control API is mounted under /api/v1.

EXIT STATUS
===========

Exit status is 0 after a clean shutdown, and non-zero if startup failed.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	cmdRoot.AddCommand(cmdServe)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.ctrl.Start(ctx); err != nil {
		return err
	}

	// Stand-in for the host's periodic background sync.
	sched := scheduler.New(rt.ctrl, worker.PeriodicSyncTag, cfg.PeriodicSyncInterval)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	app := newApp(rt)

	go func() {
		log.Infof("serving %s on :%s", rt.origin, cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Errorf("fiber server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorf("error during shutdown: %v", err)
	}
	// Let pending cache writes and refreshes finish.
	if err := rt.ctrl.Wait(shutdownCtx); err != nil {
		log.Warnf("shutdown: dropped unfinished background work: %v", err)
	}
	return nil
}

func newApp(rt *runtime) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "weather-shell",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          rt.cfg.HTTPTimeout + 5*time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-shell",
			"version": rt.ctrl.Version(),
			"state":   rt.ctrl.State(),
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Worker:        rt.ctrl,
		Clients:       rt.clients,
		Notifications: rt.notifications,
		Forecast:      rt.weather,
	})
	httpapi.RegisterGateway(app, rt.origin, rt.ctrl, rt.ctrl.ManifestOrigins()...)
	return app
}
