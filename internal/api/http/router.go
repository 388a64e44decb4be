package http

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Services       *handlers.ServicesHandler
	AuthMiddleware *auth.AuthMiddleware
	Registry       *prometheus.Registry
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	users := app.Group("/users", cfg.AuthMiddleware.Handle)
	users.Get("/me", cfg.Users.Me)
	users.Patch("/me", cfg.Users.UpdateMe)
	users.Get("", auth.RequireRole(domain.RoleAdmin), cfg.Users.ListUsers)
	users.Patch("/:id/role", auth.RequireRole(domain.RoleAdmin), cfg.Users.UpdateRole)
	users.Delete("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Users.DeleteUser)

	// Ticket routes carry no role guard beyond authentication. The lifecycle
	// engine resolves the ticket before judging the caller, so acting on a
	// missing ticket reports NOT_FOUND rather than FORBIDDEN.
	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", auth.RequireRole(domain.RoleCustomer), cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/assign", cfg.Tickets.AssignTicket)
	tickets.Post("/:id/start", cfg.Tickets.StartTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)
	tickets.Post("/:id/reopen", cfg.Tickets.ReopenTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Get("/:id/lines", cfg.Tickets.ListServiceLines)
	tickets.Post("/:id/lines", cfg.Tickets.AddServiceLine)
	tickets.Delete("/:id/lines/:lineId", cfg.Tickets.RemoveServiceLine)

	services := app.Group("/services", cfg.AuthMiddleware.Handle)
	services.Get("", cfg.Services.ListServices)
	services.Post("", auth.RequireRole(domain.RoleAdmin), cfg.Services.CreateService)
	services.Patch("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Services.UpdateService)
	services.Delete("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Services.DeleteService)
}
