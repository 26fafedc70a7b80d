package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spec-kit/onboarding-service/internal/api/http/handlers"
	"github.com/spec-kit/onboarding-service/internal/auth"
	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Cases          *handlers.CasesHandler
	Staff          *handlers.StaffHandler
	SLA            *handlers.SLAHandler
	Templates      *handlers.TemplatesHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics; nil leaves the endpoint unregistered.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(observability.Handler(cfg.Gatherer)))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	workers := auth.RequireSystemOrStaffRole(domain.StaffRoleOperator, domain.StaffRoleCompliance, domain.StaffRoleManager)
	deciders := auth.RequireStaffRole(domain.StaffRoleCompliance, domain.StaffRoleManager)
	managers := auth.RequireSystemOrStaffRole(domain.StaffRoleManager)
	staffOnly := auth.RequireStaffRole()

	api.Get("/templates", auth.RequireAnyRole(), cfg.Templates.List)
	api.Get("/templates/:type", auth.RequireAnyRole(), cfg.Templates.Get)

	cases := api.Group("/cases")
	cases.Post("", workers, cfg.Cases.StartCase)
	cases.Get("", auth.RequireAnyRole(), cfg.Cases.ListCases)
	cases.Get("/:id", auth.RequireAnyRole(), cfg.Cases.GetCase)
	cases.Get("/:id/history", auth.RequireAnyRole(), cfg.Cases.History)
	cases.Post("/:id/decision", deciders, cfg.Cases.Decide)
	cases.Post("/:id/assign", managers, cfg.Cases.AutoAssign)
	cases.Post("/:id/activities/:activityId/start", workers, cfg.Cases.StartActivity)
	cases.Post("/:id/activities/:activityId/complete", workers, cfg.Cases.CompleteActivity)
	cases.Post("/:id/activities/:activityId/skip", workers, cfg.Cases.SkipActivity)
	cases.Put("/:id/activities/:activityId/checklist", workers, cfg.Cases.ToggleChecklist)

	teams := api.Group("/teams", staffOnly)
	teams.Post("", cfg.Staff.CreateTeam)
	teams.Get("/:id", cfg.Staff.GetTeam)
	teams.Put("/:id/manager", cfg.Staff.SetTeamManager)
	teams.Post("/:id/members", cfg.Staff.AddTeamMember)
	teams.Get("/:id/members", cfg.Staff.ListTeamMembers)
	teams.Get("/:id/best-assignee", cfg.Cases.BestAssignee)

	staff := api.Group("/staff", staffOnly)
	staff.Post("", cfg.Staff.CreateStaff)
	staff.Get("", cfg.Staff.ListStaff)
	staff.Put("/:id", cfg.Staff.UpdateStaff)

	slaGroup := api.Group("/sla")
	slaGroup.Get("/metrics", auth.RequireAnyRole(), cfg.SLA.Metrics)
	slaGroup.Post("/sweep", managers, cfg.SLA.Sweep)
}
