package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Surveys        *handlers.SurveysHandler
	Jobs           *handlers.JobsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	// Survey responses are authenticated by the token in the path.
	app.Post("/surveys/:token/response", cfg.Surveys.Respond)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireRole())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/events", cfg.Tickets.ListEvents)
	tickets.Get("/:id/transitions", cfg.Tickets.ListTransitions)
	tickets.Patch("/:id/status", auth.RequireStaff(), cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/priority", auth.RequireStaff(), cfg.Tickets.UpdatePriority)
	tickets.Post("/:id/assign", auth.RequireStaff(), cfg.Tickets.AssignTicket)
	tickets.Post("/:id/approval", auth.RequireRole(domain.RoleAdmin), cfg.Tickets.SetApproval)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Get("/jobs/dead", cfg.Jobs.DeadLetters)
	admin.Get("/jobs/pending", cfg.Jobs.Pending)
}
