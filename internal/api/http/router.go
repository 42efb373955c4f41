package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Policy         auth.Policy
}

// NewApp builds the fiber application with the JSON error fallback installed.
func NewApp(appName string, logger *zap.Logger) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(logger),
	})
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	policy := cfg.Policy
	if policy == nil {
		policy = auth.DefaultPolicy()
	}

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	api := app.Group("/api")
	api.Get("/", cfg.Health.API)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Get("/profile", cfg.AuthMiddleware.Handle, cfg.Users.Profile)

	tickets := api.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", policy.Require(auth.CapTicketCreate), cfg.Tickets.CreateTicket)
	tickets.Get("/", policy.Require(auth.CapTicketRead), cfg.Tickets.ListTickets)
	tickets.Get("/:id", policy.Require(auth.CapTicketRead), cfg.Tickets.GetTicket)
	tickets.Put("/:id", policy.Require(auth.CapTicketUpdate), cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", policy.Require(auth.CapTicketArchive), cfg.Tickets.ArchiveTicket)
	tickets.Post("/:id/comment", policy.Require(auth.CapTicketComment), cfg.Tickets.AddComment)
}
