package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	SlaStatus      *handlers.SlaStatusHandler
	SlaPolicies    *handlers.SlaPoliciesHandler
	Escalations    *handlers.EscalationRulesHandler
	Calendar       *handlers.CalendarHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Everything under /admin requires an
// elevated role; the ticket lifecycle is open to any authenticated user, with
// per-operation guards enforced in the service layer.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", cfg.Tickets.Create)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Post("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Post("/:id/resolve", cfg.Tickets.Resolve)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)
	tickets.Get("/:id/sla", cfg.SlaStatus.TicketStatus)
	tickets.Get("/:id/escalations", cfg.Escalations.History)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireElevated())

	admin.Get("/sla-policies", cfg.SlaPolicies.List)
	admin.Post("/sla-policies", cfg.SlaPolicies.Create)
	admin.Put("/sla-policies/:id", cfg.SlaPolicies.Update)
	admin.Delete("/sla-policies/:id", cfg.SlaPolicies.Delete)

	admin.Get("/escalation-rules", cfg.Escalations.List)
	admin.Post("/escalation-rules", cfg.Escalations.Create)
	admin.Get("/escalation-rules/:id", cfg.Escalations.Get)
	admin.Put("/escalation-rules/:id", cfg.Escalations.Update)
	admin.Delete("/escalation-rules/:id", cfg.Escalations.Delete)
	admin.Post("/escalations/scan", cfg.Escalations.TriggerScan)

	admin.Get("/calendar/rules", cfg.Calendar.ListRules)
	admin.Put("/calendar/rules", cfg.Calendar.UpsertRule)
	admin.Get("/calendar/holidays", cfg.Calendar.ListHolidays)
	admin.Post("/calendar/holidays", cfg.Calendar.CreateHoliday)
	admin.Delete("/calendar/holidays/:id", cfg.Calendar.DeleteHoliday)

	admin.Get("/sla/at-risk", cfg.SlaStatus.ListAtRisk)
	admin.Get("/sla/breached", cfg.SlaStatus.ListBreached)

	admin.Get("/stats/scans", cfg.Health.Stats)
}
