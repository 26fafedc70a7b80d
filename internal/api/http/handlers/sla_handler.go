package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/onboarding-service/internal/scheduler"
	"github.com/spec-kit/onboarding-service/internal/service"
	"github.com/spec-kit/onboarding-service/internal/sla"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// SLAHandler exposes SLA reporting and the manual sweep trigger.
type SLAHandler struct {
	tracker *sla.Tracker
	driver  *scheduler.Driver
	now     service.Clock
}

// NewSLAHandler constructs the handler. A nil clock uses the system clock.
func NewSLAHandler(tracker *sla.Tracker, driver *scheduler.Driver, now service.Clock) *SLAHandler {
	if now == nil {
		now = service.SystemClock
	}
	return &SLAHandler{tracker: tracker, driver: driver, now: now}
}

// Metrics handles GET /sla/metrics.
func (h *SLAHandler) Metrics(c *fiber.Ctx) error {
	m, err := h.tracker.Metrics(c.UserContext(), h.now())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": m})
}

// Sweep handles POST /sla/sweep. It runs one sweep inline under the same
// lock as the scheduler, so it is refused while a scheduled run is active.
func (h *SLAHandler) Sweep(c *fiber.Ctx) error {
	report, ran := h.driver.Tick(c.UserContext())
	if !ran {
		return apperrors.NewConflict("sla sweep already running", nil)
	}
	if report.Err != nil {
		return apperrors.MapError(report.Err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"started_at":   report.StartedAt,
		"duration_ms":  report.Duration.Milliseconds(),
		"attempts":     report.Attempts,
		"breached_ids": nonNil(report.Breached),
		"warning_ids":  nonNil(report.Warnings),
		"escalation":   report.Escalation,
		"metrics":      report.Metrics,
	}})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
