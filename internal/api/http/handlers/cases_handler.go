package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/onboarding-service/internal/api/dto"
	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/repository"
	"github.com/spec-kit/onboarding-service/internal/service"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// CasesHandler exposes case and activity endpoints.
type CasesHandler struct {
	workflow   *service.WorkflowService
	assignment *service.AssignmentService
}

// NewCasesHandler constructs the handler.
func NewCasesHandler(workflow *service.WorkflowService, assignment *service.AssignmentService) *CasesHandler {
	return &CasesHandler{workflow: workflow, assignment: assignment}
}

// StartCase handles POST /cases.
func (h *CasesHandler) StartCase(c *fiber.Ctx) error {
	var req dto.StartCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details, err := h.workflow.StartCase(c.UserContext(), actorID(c), service.StartCaseInput{
		ContactID:   req.ContactID,
		CaseType:    req.CaseType,
		ProductType: req.ProductType,
		Kind:        req.Kind,
		Priority:    req.Priority,
		TeamID:      req.TeamID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": caseDetailResponse(details)})
}

// GetCase handles GET /cases/:id.
func (h *CasesHandler) GetCase(c *fiber.Ctx) error {
	details, err := h.workflow.GetCase(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseDetailResponse(details)})
}

// ListCases handles GET /cases.
func (h *CasesHandler) ListCases(c *fiber.Ctx) error {
	filter := parseCaseFilter(c)
	cases, err := h.workflow.ListCases(c.UserContext(), filter)
	if err != nil {
		return err
	}
	resp := make([]dto.CaseSummary, 0, len(cases))
	for i := range cases {
		resp = append(resp, caseSummary(&cases[i]))
	}
	return c.JSON(fiber.Map{
		"data": resp,
		"meta": fiber.Map{"page": filter.Offset/filter.Limit + 1, "page_size": filter.Limit},
	})
}

// History handles GET /cases/:id/history.
func (h *CasesHandler) History(c *fiber.Ctx) error {
	entries, err := h.workflow.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	resp := make([]dto.CaseHistoryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.CaseHistoryResponse{
			ID:            e.ID,
			ChangedByType: e.ChangedByType,
			ChangedByID:   e.ChangedByID,
			ChangeType:    e.ChangeType,
			OldValue:      e.OldValue,
			NewValue:      e.NewValue,
			CreatedAt:     e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Decide handles POST /cases/:id/decision.
func (h *CasesHandler) Decide(c *fiber.Ctx) error {
	var req dto.DecideCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	decided, err := h.workflow.DecideCase(c.UserContext(), actorID(c), c.Params("id"), service.Decision(req.Decision), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseSummary(decided)})
}

// AutoAssign handles POST /cases/:id/assign.
func (h *CasesHandler) AutoAssign(c *fiber.Ctx) error {
	var req dto.AutoAssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TeamID == "" {
		return apperrors.NewValidationError("team_id required", nil)
	}
	outcome, err := h.assignment.AutoAssign(c.UserContext(), c.Params("id"), req.TeamID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assignmentResponse(outcome)})
}

// BestAssignee handles GET /teams/:id/best-assignee.
func (h *CasesHandler) BestAssignee(c *fiber.Ctx) error {
	userID, err := h.assignment.FindBestAssignee(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"team_id": c.Params("id"), "user_id": userID}})
}

// StartActivity handles POST /cases/:id/activities/:activityId/start.
func (h *CasesHandler) StartActivity(c *fiber.Ctx) error {
	result, err := h.workflow.StartActivity(c.UserContext(), actorID(c), c.Params("id"), c.Params("activityId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": activityResultResponse(result)})
}

// CompleteActivity handles POST /cases/:id/activities/:activityId/complete.
func (h *CasesHandler) CompleteActivity(c *fiber.Ctx) error {
	var req dto.CompleteActivityRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	result, err := h.workflow.CompleteActivity(c.UserContext(), actorID(c), c.Params("id"), c.Params("activityId"), req.Outcome)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": activityResultResponse(result)})
}

// SkipActivity handles POST /cases/:id/activities/:activityId/skip.
func (h *CasesHandler) SkipActivity(c *fiber.Ctx) error {
	var req dto.SkipActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.workflow.SkipActivity(c.UserContext(), actorID(c), c.Params("id"), c.Params("activityId"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": activityResultResponse(result)})
}

// ToggleChecklist handles PUT /cases/:id/activities/:activityId/checklist.
func (h *CasesHandler) ToggleChecklist(c *fiber.Ctx) error {
	var req dto.ChecklistRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Item) == "" {
		return apperrors.NewValidationError("item required", nil)
	}
	result, err := h.workflow.ToggleChecklistItem(c.UserContext(), actorID(c), c.Params("id"), c.Params("activityId"), req.Item, req.Checked)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": activityResultResponse(result)})
}

func parseCaseFilter(c *fiber.Ctx) repository.CaseFilter {
	var filter repository.CaseFilter
	for _, s := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.CaseStatus(s))
	}
	for _, p := range splitQuery(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.CasePriority(p))
	}
	if teamID := c.Query("team_id"); teamID != "" {
		filter.TeamID = &teamID
	}
	if assignee := c.Query("assigned_to"); assignee != "" {
		filter.AssignedTo = &assignee
	}
	filter.Breached = parseBoolQuery(c, "breached")
	if open := parseBoolQuery(c, "open"); open != nil {
		filter.OpenOnly = *open
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 20)
	if pageSize > 100 {
		pageSize = 100
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func caseSummary(cs *domain.Case) dto.CaseSummary {
	return dto.CaseSummary{
		ID:          cs.ID,
		ContactID:   cs.ContactID,
		Kind:        cs.Kind,
		CaseType:    cs.Type,
		ProductType: cs.ProductType,
		Status:      cs.Status,
		Priority:    cs.Priority,
		AssignedTo:  cs.AssignedTo,
		TeamID:      cs.TeamID,
		CurrentStep: cs.CurrentStep,
		DueDate:     cs.DueDate,
		SLAHours:    cs.SLAHours,
		SLABreached: cs.SLABreached,
		CreatedAt:   cs.CreatedAt,
		UpdatedAt:   cs.UpdatedAt,
		ClosedAt:    cs.ClosedAt,
	}
}

func activityResponse(a *domain.ActivityInstance) dto.ActivityResponse {
	dependsOn := a.DependsOn
	if dependsOn == nil {
		dependsOn = []string{}
	}
	return dto.ActivityResponse{
		ID:            a.ID,
		Key:           a.Key,
		Name:          a.Name,
		Kind:          a.Kind(),
		Config:        a.Config,
		SequenceOrder: a.SequenceOrder,
		Mandatory:     a.Mandatory,
		DependsOn:     dependsOn,
		AssigneeID:    a.AssigneeID,
		Status:        a.Status,
		DueDate:       a.DueDate,
		StartedAt:     a.StartedAt,
		CompletedAt:   a.CompletedAt,
		Outcome:       a.Outcome,
		Checklist:     a.Checklist,
	}
}

func activityResponses(list []domain.ActivityInstance) []dto.ActivityResponse {
	resp := make([]dto.ActivityResponse, 0, len(list))
	for i := range list {
		resp = append(resp, activityResponse(&list[i]))
	}
	return resp
}

func assignmentResponse(o service.AssignmentOutcome) dto.AssignmentResponse {
	return dto.AssignmentResponse{
		Outcome:    o.Outcome,
		TeamID:     o.TeamID,
		AssigneeID: o.AssigneeID,
		Status:     o.Status,
	}
}

func caseDetailResponse(details *service.CaseDetails) dto.CaseDetailResponse {
	resp := dto.CaseDetailResponse{
		CaseSummary:          caseSummary(&details.Case),
		Activities:           activityResponses(details.Activities),
		UnassignedActivities: details.Unassigned,
	}
	if details.Assignment != nil {
		a := assignmentResponse(*details.Assignment)
		resp.Assignment = &a
	}
	return resp
}

func activityResultResponse(r *service.ActivityResult) dto.ActivityResultResponse {
	return dto.ActivityResultResponse{
		Case:         caseSummary(&r.Case),
		Activity:     activityResponse(&r.Activity),
		Unlocked:     activityResponses(r.Unlocked),
		AllTerminal:  r.AllTerminal,
		MissingItems: r.MissingItems,
		NoOp:         r.NoOp,
	}
}
