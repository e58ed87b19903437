package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-bot/internal/api/http/handlers"
	"github.com/spec-kit/support-bot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Ops            *handlers.OpsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Ops.Login)

	ops := app.Group("/ops", cfg.AuthMiddleware.Handle)
	ops.Get("/tickets", cfg.Ops.ListTickets)
	ops.Get("/tickets/:id", cfg.Ops.GetTicket)
	ops.Get("/decisions", cfg.Ops.ListDecisions)
	ops.Get("/applications", cfg.Ops.ListApplications)
	ops.Get("/metrics", cfg.Ops.Metrics)
}
