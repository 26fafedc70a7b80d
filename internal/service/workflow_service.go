package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/events"
	"github.com/spec-kit/onboarding-service/internal/observability"
	"github.com/spec-kit/onboarding-service/internal/repository"
	"github.com/spec-kit/onboarding-service/internal/sla"
	"github.com/spec-kit/onboarding-service/internal/workflow"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// Decision is the terminal verdict on a case.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// WorkflowService coordinates case creation and activity progression.
type WorkflowService struct {
	registry   *workflow.Registry
	cases      repository.CaseRepository
	activities repository.ActivityRepository
	teams      repository.TeamRepository
	history    repository.CaseHistoryRepository
	assignment *AssignmentService
	events     eventPublisher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	Registry     *workflow.Registry
	CaseRepo     repository.CaseRepository
	ActivityRepo repository.ActivityRepository
	TeamRepo     repository.TeamRepository
	HistoryRepo  repository.CaseHistoryRepository
	Assignment   *AssignmentService
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Clock        Clock
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	logger := loggerOrNop(deps.Logger)
	return &WorkflowService{
		registry:   deps.Registry,
		cases:      deps.CaseRepo,
		activities: deps.ActivityRepo,
		teams:      deps.TeamRepo,
		history:    deps.HistoryRepo,
		assignment: deps.Assignment,
		events:     eventPublisher{dispatcher: deps.Dispatcher, metrics: deps.Metrics, logger: logger},
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

// StartCaseInput describes a new case.
type StartCaseInput struct {
	ContactID   string
	CaseType    string
	ProductType string
	Kind        domain.CaseKind
	Priority    domain.CasePriority
	TeamID      *string
}

// CaseDetails is a case with its full activity set.
type CaseDetails struct {
	Case       domain.Case
	Activities []domain.ActivityInstance
	// Assignment is set when the case was started with a team.
	Assignment *AssignmentOutcome
	// Unassigned lists the activity keys no team member could be matched to.
	Unassigned []string
}

// ActivityResult reports the effect of an activity operation.
type ActivityResult struct {
	Case                  domain.Case
	Activity              domain.ActivityInstance
	Unlocked              []domain.ActivityInstance
	ReadyForAutoExecution []workflow.AutoExecution
	AllTerminal           bool
	// MissingItems is set when a document review was held back because
	// required checklist items are unchecked; the case moved to waiting_docs.
	MissingItems []string
	NoOp         bool
}

func validPriority(p domain.CasePriority) bool {
	switch p {
	case domain.CasePriorityLow, domain.CasePriorityMedium, domain.CasePriorityHigh, domain.CasePriorityCritical:
		return true
	}
	return false
}

// StartCase opens a case from the template registered for input.CaseType,
// materializes its activity graph and persists both atomically. When a team
// is given the case is auto-assigned; an empty team is reported in the
// assignment outcome, not as an error.
func (s *WorkflowService) StartCase(ctx context.Context, actorID string, input StartCaseInput) (*CaseDetails, error) {
	ctx, span := observability.StartSpan(ctx, "workflow.start_case", observability.AttrCaseType.String(input.CaseType))
	details, err := s.startCase(ctx, actorID, input)
	observability.EndSpanWithError(span, err)
	return details, err
}

func (s *WorkflowService) startCase(ctx context.Context, actorID string, input StartCaseInput) (*CaseDetails, error) {
	if strings.TrimSpace(input.CaseType) == "" {
		return nil, apperrors.NewValidationError("case_type is required", nil)
	}
	if input.Priority != "" && !validPriority(input.Priority) {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}
	kind := input.Kind
	switch kind {
	case "":
		kind = domain.CaseKindOnboarding
	case domain.CaseKindOnboarding, domain.CaseKindService:
	default:
		return nil, apperrors.NewValidationError("invalid case kind", map[string]any{"kind": input.Kind})
	}

	tmpl, err := s.registry.Get(input.CaseType)
	if err != nil {
		return nil, err
	}

	var members []domain.TeamMember
	if input.TeamID != nil {
		if _, err := s.teams.GetByID(ctx, *input.TeamID); err != nil {
			return nil, notFoundOr(err, "team", "team_id", *input.TeamID)
		}
		if members, err = s.teams.ListActiveMembers(ctx, *input.TeamID); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	now := s.now()
	c := domain.Case{
		ID:          uuid.NewString(),
		ContactID:   input.ContactID,
		Kind:        kind,
		Type:        tmpl.Type,
		ProductType: input.ProductType,
		Status:      domain.CaseStatusPending,
		Priority:    input.Priority,
		TeamID:      input.TeamID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Priority == "" && tmpl.SLADays > 0 {
		c.Priority = domain.CasePriorityMedium
		c.SLAHours = tmpl.SLADays * 24
		c.DueDate = now.Add(time.Duration(c.SLAHours) * time.Hour)
	} else {
		if c.Priority == "" {
			c.Priority = domain.CasePriorityMedium
		}
		c.SLAHours = sla.Hours(c.Priority)
		c.DueDate = sla.DueDateFor(c.Priority, now)
	}

	instances, err := workflow.Instantiate(tmpl, c.ID, c.TeamID, members, now)
	if err != nil {
		return nil, err
	}
	c.CurrentStep, _ = workflow.CurrentStep(instances)

	history := []domain.CaseHistory{historyEntry(c.ID, actorID, domain.ChangeTypeStatus,
		nil, map[string]any{"status": c.Status, "case_type": c.Type, "priority": c.Priority}, now)}
	if err := s.activities.CreateWithCase(ctx, &c, instances, history); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.metrics.RecordCaseStarted(c.Type)

	details := &CaseDetails{Case: c, Activities: instances}
	for _, inst := range workflow.Unassigned(instances) {
		details.Unassigned = append(details.Unassigned, inst.Key)
	}

	evts := []events.Event{newEvent(events.EventCaseCreated, c.ID, actorID, now, events.CaseCreatedPayload{
		CaseType:             c.Type,
		Priority:             c.Priority,
		DueDate:              c.DueDate,
		TeamID:               c.TeamID,
		ActivityCount:        len(instances),
		UnassignedActivities: details.Unassigned,
	})}
	for _, ready := range workflow.ReadyForExecution(instances) {
		evts = append(evts, readyEvent(c.ID, now, ready))
		s.metrics.RecordAutoExecution(ready.ActionType, "signalled")
	}
	s.events.publish(ctx, evts...)

	if input.TeamID != nil && s.assignment != nil {
		outcome, err := s.assignment.AutoAssign(ctx, c.ID, *input.TeamID)
		if err != nil {
			s.logger.Warn("auto assignment failed", zap.String("case_id", c.ID), zap.Error(err))
		} else {
			details.Assignment = &outcome
			if stored, err := s.cases.GetByID(ctx, c.ID); err == nil {
				details.Case = *stored
			}
		}
	}
	return details, nil
}

// GetCase returns a case with its activities.
func (s *WorkflowService) GetCase(ctx context.Context, caseID string) (*CaseDetails, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, caseErr(err, caseID)
	}
	activities, err := s.activities.ListByCase(ctx, caseID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &CaseDetails{Case: *c, Activities: activities}, nil
}

// ListCases returns cases matching filter.
func (s *WorkflowService) ListCases(ctx context.Context, filter repository.CaseFilter) ([]domain.Case, error) {
	cases, err := s.cases.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return cases, nil
}

// History returns the audit trail of a case, oldest first.
func (s *WorkflowService) History(ctx context.Context, caseID string) ([]domain.CaseHistory, error) {
	if _, err := s.cases.GetByID(ctx, caseID); err != nil {
		return nil, caseErr(err, caseID)
	}
	history, err := s.history.ListByCase(ctx, caseID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

// StartActivity moves a todo activity to in_progress.
func (s *WorkflowService) StartActivity(ctx context.Context, actorID, caseID, activityID string) (*ActivityResult, error) {
	return s.mutateActivity(ctx, "workflow.start_activity", actorID, caseID, activityID,
		func(c domain.Case, acts []domain.ActivityInstance, now time.Time) (workflow.Resolution, error) {
			return workflow.StartActivity(caseID, activityID, acts, now)
		})
}

// CompleteActivity completes an activity and unlocks its eligible
// dependents in the same transaction. A document review with unchecked
// required items is not completed; the case moves to waiting_docs instead.
// Blocked or terminal targets are left to the resolver, which rejects them.
func (s *WorkflowService) CompleteActivity(ctx context.Context, actorID, caseID, activityID string, outcome *string) (*ActivityResult, error) {
	return s.mutateActivity(ctx, "workflow.complete_activity", actorID, caseID, activityID,
		func(c domain.Case, acts []domain.ActivityInstance, now time.Time) (workflow.Resolution, error) {
			for i := range acts {
				a := acts[i]
				if a.ID != activityID || a.Kind() != domain.KindDocumentReview {
					continue
				}
				if a.Status != domain.ActivityStatusTodo && a.Status != domain.ActivityStatusInProgress {
					break
				}
				if missing := a.MissingRequiredItems(); len(missing) > 0 {
					return workflow.Resolution{}, &missingDocuments{activity: a, items: missing}
				}
			}
			return workflow.CompleteActivity(caseID, activityID, acts, now, outcome)
		})
}

// SkipActivity skips an optional activity nothing still depends on.
func (s *WorkflowService) SkipActivity(ctx context.Context, actorID, caseID, activityID, reason string) (*ActivityResult, error) {
	return s.mutateActivity(ctx, "workflow.skip_activity", actorID, caseID, activityID,
		func(c domain.Case, acts []domain.ActivityInstance, now time.Time) (workflow.Resolution, error) {
			return workflow.SkipActivity(caseID, activityID, acts, now, reason)
		})
}

// ToggleChecklistItem checks or unchecks one checklist line.
func (s *WorkflowService) ToggleChecklistItem(ctx context.Context, actorID, caseID, activityID, item string, checked bool) (*ActivityResult, error) {
	return s.mutateActivity(ctx, "workflow.toggle_checklist", actorID, caseID, activityID,
		func(c domain.Case, acts []domain.ActivityInstance, now time.Time) (workflow.Resolution, error) {
			return workflow.ToggleChecklistItem(caseID, activityID, acts, item, checked, actorID, now)
		})
}

// missingDocuments diverts a completion into the waiting_docs transition.
type missingDocuments struct {
	activity domain.ActivityInstance
	items    []string
}

func (m *missingDocuments) Error() string {
	return "required documents missing: " + strings.Join(m.items, ", ")
}

type resolveFunc func(c domain.Case, activities []domain.ActivityInstance, now time.Time) (workflow.Resolution, error)

func (s *WorkflowService) mutateActivity(ctx context.Context, spanName, actorID, caseID, activityID string, resolve resolveFunc) (result *ActivityResult, err error) {
	ctx, span := observability.StartSpan(ctx, spanName,
		observability.AttrCaseID.String(caseID), observability.AttrActivityID.String(activityID))
	defer func() { observability.EndSpanWithError(span, err) }()

	now := s.now()
	result = &ActivityResult{}
	var (
		before    domain.ActivityInstance
		oldStatus domain.CaseStatus
		written   *domain.Case
	)

	err = s.activities.MutateCase(ctx, caseID, func(c domain.Case, acts []domain.ActivityInstance) (repository.CaseChange, error) {
		if !c.Status.IsOpen() {
			return repository.CaseChange{}, apperrors.NewConflict("case is closed", map[string]any{
				"case_id": caseID,
				"status":  c.Status,
			})
		}
		oldStatus = c.Status
		for _, a := range acts {
			if a.ID == activityID {
				before = a
			}
		}

		res, err := resolve(c, acts, now)
		var held *missingDocuments
		if errors.As(err, &held) {
			result.Activity = held.activity
			result.MissingItems = held.items
			result.Case = c
			if c.Status == domain.CaseStatusWaitingDocs || c.Status == domain.CaseStatusEscalated {
				return repository.CaseChange{}, nil
			}
			c.Status = domain.CaseStatusWaitingDocs
			c.UpdatedAt = now
			written = &c
			return repository.CaseChange{
				Case: &c,
				History: []domain.CaseHistory{statusHistory(caseID, actorID, oldStatus, c.Status,
					"missing required documents", now)},
			}, nil
		}
		if err != nil {
			return repository.CaseChange{}, err
		}

		result.Activity = res.Target
		result.AllTerminal = res.AllTerminal
		if res.NoOp {
			result.NoOp = true
			result.Case = c
			return repository.CaseChange{}, nil
		}
		result.Unlocked = res.Unlocked
		result.ReadyForAutoExecution = res.ReadyForAutoExecution

		changed := make(map[string]bool, len(res.Changed))
		for _, id := range res.Changed {
			changed[id] = true
		}
		var rows []domain.ActivityInstance
		for _, inst := range res.Instances {
			if changed[inst.ID] {
				rows = append(rows, inst)
			}
		}

		c.CurrentStep = res.CurrentStep
		c.Status = caseStatusAfter(c, res)
		c.UpdatedAt = now
		written = &c

		history := []domain.CaseHistory{historyEntry(caseID, actorID, domain.ChangeTypeActivity,
			map[string]any{"activity_id": before.ID, "key": before.Key, "status": before.Status},
			map[string]any{"activity_id": res.Target.ID, "key": res.Target.Key, "status": res.Target.Status,
				"unlocked": len(res.Unlocked)}, now)}
		if c.Status != oldStatus {
			history = append(history, statusHistory(caseID, actorID, oldStatus, c.Status, "", now))
		}
		return repository.CaseChange{Case: &c, Activities: rows, History: history}, nil
	})
	if err != nil {
		return nil, caseErr(err, caseID)
	}
	if written != nil {
		result.Case = *written
	}
	if result.NoOp || (written == nil && result.MissingItems != nil) {
		return result, nil
	}

	s.publishActivityEvents(ctx, actorID, caseID, before, oldStatus, result, now)
	return result, nil
}

// caseStatusAfter derives the case status from its activity graph. Escalated
// cases keep their status until decided.
func caseStatusAfter(c domain.Case, res workflow.Resolution) domain.CaseStatus {
	switch {
	case c.Status == domain.CaseStatusEscalated:
		return c.Status
	case res.AllTerminal && c.Kind != domain.CaseKindService:
		return domain.CaseStatusReview
	case c.Status == domain.CaseStatusPending, c.Status == domain.CaseStatusWaitingDocs, c.Status == domain.CaseStatusReview:
		return c.ActiveStatus()
	}
	return c.Status
}

func (s *WorkflowService) publishActivityEvents(ctx context.Context, actorID, caseID string, before domain.ActivityInstance, oldStatus domain.CaseStatus, result *ActivityResult, now time.Time) {
	var evts []events.Event
	if result.MissingItems == nil && before.Status != result.Activity.Status {
		evts = append(evts, newEvent(events.EventActivityStatusChanged, caseID, actorID, now, events.ActivityStatusChangedPayload{
			ActivityID: result.Activity.ID,
			Key:        result.Activity.Key,
			OldStatus:  before.Status,
			NewStatus:  result.Activity.Status,
			Outcome:    result.Activity.Outcome,
		}))
		s.metrics.RecordActivityTransition(string(result.Activity.Kind()), string(result.Activity.Status), len(result.Unlocked))
	}
	for _, inst := range result.Unlocked {
		evts = append(evts, newEvent(events.EventActivityUnlocked, caseID, actorID, now, events.ActivityUnlockedPayload{
			ActivityID: inst.ID,
			Key:        inst.Key,
			AssigneeID: inst.AssigneeID,
		}))
	}
	for _, ready := range result.ReadyForAutoExecution {
		evts = append(evts, readyEvent(caseID, now, ready))
		s.metrics.RecordAutoExecution(ready.ActionType, "signalled")
	}
	if result.Case.Status != oldStatus {
		reason := ""
		if result.MissingItems != nil {
			reason = "missing required documents"
		}
		evts = append(evts, newEvent(events.EventCaseStatusChanged, caseID, actorID, now, events.CaseStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: result.Case.Status,
			Reason:    reason,
		}))
	}
	s.events.publish(ctx, evts...)
}

func readyEvent(caseID string, now time.Time, ready workflow.AutoExecution) events.Event {
	return newEvent(events.EventActivityReady, caseID, "", now, events.ActivityReadyPayload{
		ActivityID: ready.InstanceID,
		ActionType: ready.ActionType,
	})
}

// DecideCase closes a case. Approval requires every activity to be terminal;
// rejection is allowed on any open case. Decided cases are final.
func (s *WorkflowService) DecideCase(ctx context.Context, actorID, caseID string, decision Decision, reason string) (result *domain.Case, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.decide_case", observability.AttrCaseID.String(caseID))
	defer func() { observability.EndSpanWithError(span, err) }()

	var target domain.CaseStatus
	switch decision {
	case DecisionApprove:
		target = domain.CaseStatusApproved
	case DecisionReject:
		target = domain.CaseStatusRejected
	default:
		return nil, apperrors.NewValidationError("decision must be approve or reject", map[string]any{"decision": decision})
	}

	now := s.now()
	var (
		oldStatus domain.CaseStatus
		written   domain.Case
	)
	err = s.activities.MutateCase(ctx, caseID, func(c domain.Case, acts []domain.ActivityInstance) (repository.CaseChange, error) {
		if !c.Status.IsOpen() {
			return repository.CaseChange{}, apperrors.NewConflict("case already decided", map[string]any{
				"case_id": caseID,
				"status":  c.Status,
			})
		}
		if decision == DecisionApprove {
			var pending []string
			for _, a := range acts {
				if !a.Status.IsTerminal() {
					pending = append(pending, a.Key)
				}
			}
			if len(pending) > 0 {
				return repository.CaseChange{}, apperrors.NewConflict("case has open activities", map[string]any{
					"case_id": caseID,
					"pending": pending,
				})
			}
		}
		oldStatus = c.Status
		c.Status = target
		c.ClosedAt = &now
		c.CurrentStep = ""
		c.UpdatedAt = now
		written = c
		return repository.CaseChange{
			Case:    &written,
			History: []domain.CaseHistory{statusHistory(caseID, actorID, oldStatus, target, reason, now)},
		}, nil
	})
	if err != nil {
		return nil, caseErr(err, caseID)
	}

	s.metrics.RecordCaseDecided(string(decision))
	s.events.publish(ctx,
		newEvent(events.EventCaseDecided, caseID, actorID, now, events.CaseDecidedPayload{
			Decision: string(decision),
			Status:   target,
			Reason:   reason,
		}),
		newEvent(events.EventCaseStatusChanged, caseID, actorID, now, events.CaseStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: target,
			Reason:    reason,
		}),
	)
	return &written, nil
}
