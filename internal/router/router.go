package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gradescan/gradescan-api/internal/config"
	"github.com/gradescan/gradescan-api/internal/handler"
	"github.com/gradescan/gradescan-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	BatchHandler    *handler.BatchHandler
	RecordHandler   *handler.RecordHandler
	SettingsHandler *handler.SettingsHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})

	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	if deps.BatchHandler != nil {
		deps.BatchHandler.Register(api.Group("/batches"))
	}

	if deps.RecordHandler != nil {
		deps.RecordHandler.Register(api.Group("/records"))
	}

	if deps.SettingsHandler != nil {
		deps.SettingsHandler.Register(api.Group("/settings"))
	}
}
