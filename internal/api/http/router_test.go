package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/api/http/handlers"
	"github.com/spec-kit/onboarding-service/internal/auth"
	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/events"
	"github.com/spec-kit/onboarding-service/internal/observability"
	"github.com/spec-kit/onboarding-service/internal/repository"
	"github.com/spec-kit/onboarding-service/internal/scheduler"
	"github.com/spec-kit/onboarding-service/internal/service"
	"github.com/spec-kit/onboarding-service/internal/sla"
	"github.com/spec-kit/onboarding-service/internal/workflow"
)

type harness struct {
	app    *fiber.App
	store  *repository.MemoryStore
	tokens *auth.TokenManager
	teamID string
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		store:  repository.NewMemoryStore(),
		tokens: auth.NewTokenManager("secret", 15),
		now:    time.Now().UTC(),
	}
	clock := func() time.Time { return h.now }

	for _, s := range []domain.StaffMember{
		{ID: "root", Name: "Root", Email: "root@bank.test", Role: domain.StaffRoleAdmin, Active: true},
		{ID: "mgr", Name: "Mia", Email: "mia@bank.test", Role: domain.StaffRoleManager, Active: true},
		{ID: "op", Name: "Otto", Email: "otto@bank.test", Role: domain.StaffRoleOperator, Active: true},
	} {
		s := s
		require.NoError(t, h.store.Staff().Create(ctx, &s))
	}
	manager := "mgr"
	team := &domain.Team{Name: "Retail", ManagerID: &manager, IsActive: true}
	require.NoError(t, h.store.Teams().Create(ctx, team))
	require.NoError(t, h.store.Teams().AddMember(ctx, team.ID, "op", "operator"))
	require.NoError(t, h.store.Teams().AddMember(ctx, team.ID, "mgr", "manager"))
	h.teamID = team.ID

	registry, err := workflow.NewRegistry(workflow.DefaultTemplates()...)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(reg)
	dispatcher := events.NewInMemoryDispatcher()

	assignment := service.NewAssignmentService(service.AssignmentDependencies{
		ActivityRepo: h.store.Activities(),
		TeamRepo:     h.store.Teams(),
		Dispatcher:   dispatcher,
		Clock:        clock,
	})
	wf := service.NewWorkflowService(service.WorkflowDependencies{
		Registry:     registry,
		CaseRepo:     h.store.Cases(),
		ActivityRepo: h.store.Activities(),
		TeamRepo:     h.store.Teams(),
		HistoryRepo:  h.store.History(),
		Assignment:   assignment,
		Dispatcher:   dispatcher,
		Clock:        clock,
	})
	escalation := service.NewEscalationService(service.EscalationDependencies{
		CaseRepo:    h.store.Cases(),
		HistoryRepo: h.store.History(),
		Dispatcher:  dispatcher,
	})
	tracker := sla.NewTracker(h.store.Cases(), time.Hour, nil)
	driver := scheduler.NewDriver(scheduler.Dependencies{
		Tracker:    tracker,
		Escalation: escalation,
		CaseRepo:   h.store.Cases(),
		Clock:      clock,
	})

	h.app = fiber.New()
	RegisterMiddlewares(h.app, zap.NewNop(), metrics, 0)
	RegisterRoutes(h.app, RouteConfig{
		Health:         handlers.NewHealthHandler("onboarding-service", "test", nil, nil, nil),
		Cases:          handlers.NewCasesHandler(wf, assignment),
		Staff:          handlers.NewStaffHandler(service.NewStaffService(service.OrgDependencies{TeamRepo: h.store.Teams(), StaffRepo: h.store.Staff()})),
		SLA:            handlers.NewSLAHandler(tracker, driver, clock),
		Templates:      handlers.NewTemplatesHandler(registry),
		AuthMiddleware: auth.NewAuthMiddleware(h.tokens, h.store.Staff()),
		Gatherer:       reg,
	})
	return h
}

func (h *harness) token(t *testing.T, id string, subject domain.SubjectType) string {
	t.Helper()
	tok, _, err := h.tokens.GenerateToken(id, subject, nil)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	status, _ = h.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status, "unconfigured dependencies do not fail readiness")

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "onboarding_http_requests_total")
}

func TestErrorEnvelope(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(t, nethttp.MethodGet, "/api/v1/cases", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, env = h.do(t, nethttp.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	op := h.token(t, "op", domain.SubjectTypeStaff)
	status, env = h.do(t, nethttp.MethodGet, "/api/v1/cases/missing", op, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = h.do(t, nethttp.MethodPost, "/api/v1/cases", op, map[string]any{"case_type": "mortgage"})
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "TEMPLATE_NOT_FOUND", env.Error.Code)
}

func TestCaseLifecycle(t *testing.T) {
	h := newHarness(t)
	op := h.token(t, "op", domain.SubjectTypeStaff)
	mgr := h.token(t, "mgr", domain.SubjectTypeStaff)

	status, env := h.do(t, nethttp.MethodPost, "/api/v1/cases", op, map[string]any{
		"contact_id": "contact-1",
		"case_type":  workflow.TypeAccountOpening,
		"priority":   "high",
		"team_id":    h.teamID,
	})
	require.Equal(t, nethttp.StatusCreated, status)
	var created struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		AssignedTo string `json:"assigned_to"`
		Activities []struct {
			ID     string `json:"id"`
			Key    string `json:"key"`
			Status string `json:"status"`
		} `json:"activities"`
		Assignment struct {
			Outcome string `json:"outcome"`
		} `json:"assignment"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Len(t, created.Activities, 6)
	assert.Equal(t, service.AssignmentAssigned, created.Assignment.Outcome)
	assert.NotEmpty(t, created.AssignedTo)

	var collectID string
	for _, a := range created.Activities {
		if a.Key == "collect_documents" {
			collectID = a.ID
		}
	}
	require.NotEmpty(t, collectID)
	activityPath := "/api/v1/cases/" + created.ID + "/activities/" + collectID

	status, _ = h.do(t, nethttp.MethodPut, activityPath+"/checklist", op, map[string]any{"item": "Identity document", "checked": true})
	assert.Equal(t, nethttp.StatusOK, status)

	status, env = h.do(t, nethttp.MethodPost, "/api/v1/cases/"+created.ID+"/activities/nope/complete", op, nil)
	assert.Equal(t, nethttp.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_ACTIVITY", env.Error.Code)

	status, env = h.do(t, nethttp.MethodGet, "/api/v1/cases?status=in_progress,pending&page_size=5", op, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var listed []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	status, env = h.do(t, nethttp.MethodPost, "/api/v1/cases/"+created.ID+"/decision", op, map[string]any{"decision": "reject"})
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = h.do(t, nethttp.MethodPost, "/api/v1/cases/"+created.ID+"/decision", mgr, map[string]any{"decision": "approve"})
	assert.Equal(t, nethttp.StatusConflict, status, "open activities block approval")
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, env = h.do(t, nethttp.MethodPost, "/api/v1/cases/"+created.ID+"/decision", mgr, map[string]any{"decision": "reject", "reason": "fraud"})
	require.Equal(t, nethttp.StatusOK, status)
	var decided struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &decided))
	assert.Equal(t, string(domain.CaseStatusRejected), decided.Status)

	status, env = h.do(t, nethttp.MethodGet, "/api/v1/cases/"+created.ID+"/history", op, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.NotEmpty(t, history)
}

func TestSLAEndpoints(t *testing.T) {
	h := newHarness(t)
	op := h.token(t, "op", domain.SubjectTypeStaff)
	system := h.token(t, "scheduler", domain.SubjectTypeSystem)

	status, _ := h.do(t, nethttp.MethodPost, "/api/v1/cases", op, map[string]any{
		"case_type": workflow.TypeKYCRefresh,
		"priority":  "critical",
		"team_id":   h.teamID,
	})
	require.Equal(t, nethttp.StatusCreated, status)
	h.now = h.now.Add(48 * time.Hour)

	status, env := h.do(t, nethttp.MethodPost, "/api/v1/sla/sweep", op, nil)
	assert.Equal(t, nethttp.StatusForbidden, status, env.Error.Code)

	status, env = h.do(t, nethttp.MethodPost, "/api/v1/sla/sweep", system, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var report struct {
		Breached   []string `json:"breached_ids"`
		Escalation struct {
			Count int `json:"count"`
		} `json:"escalation"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Len(t, report.Breached, 1)
	assert.Equal(t, 1, report.Escalation.Count)

	status, env = h.do(t, nethttp.MethodGet, "/api/v1/sla/metrics", op, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var m sla.Metrics
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, 1, m.TotalOpen)
	assert.Equal(t, 1, m.Breached)
	assert.InDelta(t, 1.0, m.BreachRate, 1e-9)
}

func TestStaffAndTemplates(t *testing.T) {
	h := newHarness(t)
	root := h.token(t, "root", domain.SubjectTypeStaff)
	op := h.token(t, "op", domain.SubjectTypeStaff)

	status, env := h.do(t, nethttp.MethodGet, "/api/v1/templates", op, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var templates []struct {
		Type string `json:"case_type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &templates))
	assert.Len(t, templates, len(workflow.DefaultTemplates()))

	body := map[string]any{"name": "Nia", "email": "nia@bank.test", "role": "compliance", "team_id": h.teamID}
	status, env = h.do(t, nethttp.MethodPost, "/api/v1/staff", op, body)
	assert.Equal(t, nethttp.StatusForbidden, status, env.Error.Code)

	status, env = h.do(t, nethttp.MethodPost, "/api/v1/staff", root, body)
	require.Equal(t, nethttp.StatusCreated, status, env.Error.Code)

	status, env = h.do(t, nethttp.MethodGet, "/api/v1/teams/"+h.teamID+"/members", op, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var members []struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &members))
	assert.Len(t, members, 2)

	status, env = h.do(t, nethttp.MethodGet, "/api/v1/teams/"+h.teamID+"/best-assignee", op, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Contains(t, string(env.Data), `"user_id"`)
}
