package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/sensor-map-sync/internal/api/http"
	"github.com/i474232898/sensor-map-sync/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync devices periodically and serve map data over HTTP",
	Long: `Start the periodic sync of every configured device and the HTTP API.

The cached dataset of each device is loaded at startup so the API answers
before the first sync completes. A first sync runs immediately, then every
FETCH_INTERVAL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, d := range a.cfg.Devices {
			if err := a.engine.Warm(cmd.Context(), d); err != nil {
				log.Printf("WARN: could not load cache for device %s: %v", d, err)
			}
		}

		// Scheduler that periodically syncs every device.
		sched := scheduler.New(a.cfg.Devices, a.cfg.FetchInterval, a.cfg.FetchInterval, a.engine)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()

		app := fiber.New(fiber.Config{
			AppName:               "sensor-map-sync",
			DisableStartupMessage: true,
			ReadTimeout:           10 * time.Second,
			// A sync triggered over HTTP may take as long as the fetch deadline.
			WriteTimeout: a.cfg.FetchTimeout + 10*time.Second,
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

		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"status":  "ok",
				"service": "sensor-map-sync",
			})
		})

		httpapi.RegisterRoutes(app, a.engine, httpapi.Options{
			Devices:     a.cfg.Devices,
			Geocoder:    a.geocoder,
			SyncTimeout: a.cfg.FetchInterval,
		})

		go func() {
			if err := app.Listen(":" + a.cfg.Port); err != nil {
				log.Printf("fiber server stopped: %v", err)
			}
		}()
		log.Printf("INFO: listening on :%s for %d devices", a.cfg.Port, len(a.cfg.Devices))

		// Wait for termination signal
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
