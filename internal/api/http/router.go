package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	SLA            *handlers.SLAHandler
	Admin          *handlers.AdminHandler
	Staff          *handlers.StaffHandler
	Ingest         *handlers.IngestHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Read endpoints accept agents; writes need admins.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	readers := auth.RequireRole(domain.RoleAgent)
	admins := auth.RequireRole()

	sla := app.Group("/sla", cfg.AuthMiddleware.Handle)
	sla.Get("/tickets/:id", readers, cfg.SLA.GetTicketSLA)
	sla.Post("/policies/resolve", readers, cfg.SLA.ResolvePolicy)
	sla.Get("/breaches", readers, cfg.SLA.ListBreaches)
	sla.Post("/sweep", admins, cfg.SLA.Sweep)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle)
	admin.Get("/calendars", readers, cfg.Admin.ListCalendars)
	admin.Post("/calendars", admins, cfg.Admin.CreateCalendar)
	admin.Put("/calendars/:id", admins, cfg.Admin.UpdateCalendar)
	admin.Get("/policies", readers, cfg.Admin.ListPolicies)
	admin.Post("/policies", admins, cfg.Admin.CreatePolicy)
	admin.Put("/policies/:id", admins, cfg.Admin.UpdatePolicy)
	admin.Patch("/policies/:id/active", admins, cfg.Admin.SetPolicyActive)
	if cfg.Staff != nil {
		admin.Get("/staff", readers, cfg.Staff.List)
		admin.Put("/staff/:id", admins, cfg.Staff.Upsert)
	}

	ingest := app.Group("/ingest", cfg.AuthMiddleware.HandleIngest, auth.RequireRole(domain.RoleIngest))
	ingest.Post("/tickets/events", cfg.Ingest.TicketEvent)
}
