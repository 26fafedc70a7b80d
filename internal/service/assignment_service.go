package service

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/events"
	"github.com/spec-kit/onboarding-service/internal/observability"
	"github.com/spec-kit/onboarding-service/internal/repository"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// Assignment outcomes reported by AutoAssign.
const (
	AssignmentAssigned      = "assigned"
	AssignmentNoAgents      = "no_available_agents"
	AssignmentAlreadyClosed = "case_closed"
)

// AssignmentService selects owners for cases by team workload.
type AssignmentService struct {
	activities repository.ActivityRepository
	teams      repository.TeamRepository
	events     eventPublisher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	ActivityRepo repository.ActivityRepository
	TeamRepo     repository.TeamRepository
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Clock        Clock
}

// AssignmentOutcome is the structured result of AutoAssign. A team without
// active members is an expected outcome, reported with Outcome set to
// AssignmentNoAgents and a nil error so the caller can route the case to
// manual triage.
type AssignmentOutcome struct {
	CaseID     string            `json:"case_id"`
	TeamID     string            `json:"team_id"`
	Outcome    string            `json:"outcome"`
	AssigneeID *string           `json:"assignee_id,omitempty"`
	Status     domain.CaseStatus `json:"status"`
}

// Assigned reports whether an owner was set.
func (o AssignmentOutcome) Assigned() bool {
	return o.Outcome == AssignmentAssigned
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := loggerOrNop(deps.Logger)
	return &AssignmentService{
		activities: deps.ActivityRepo,
		teams:      deps.TeamRepo,
		events:     eventPublisher{dispatcher: deps.Dispatcher, metrics: deps.Metrics, logger: logger},
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

// BestAssignee picks the member with the lowest workload, breaking ties by
// user id. ok is false when members is empty.
func BestAssignee(members []domain.TeamMember) (userID string, ok bool) {
	if len(members) == 0 {
		return "", false
	}
	sorted := append([]domain.TeamMember(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		wi, wj := sorted[i].Workload(), sorted[j].Workload()
		if wi != wj {
			return wi < wj
		}
		return sorted[i].UserID < sorted[j].UserID
	})
	return sorted[0].UserID, true
}

// FindBestAssignee returns the least loaded active member of teamID, or a
// NoAvailableAgents error when the team has no active members.
func (s *AssignmentService) FindBestAssignee(ctx context.Context, teamID string) (string, error) {
	team, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return "", notFoundOr(err, "team", "team_id", teamID)
	}
	if !team.IsActive {
		return "", apperrors.NewNoAvailableAgents(teamID)
	}
	members, err := s.teams.ListActiveMembers(ctx, teamID)
	if err != nil {
		return "", apperrors.MapError(err)
	}
	userID, ok := BestAssignee(members)
	if !ok {
		return "", apperrors.NewNoAvailableAgents(teamID)
	}
	return userID, nil
}

// AutoAssign sets the best available member of teamID as the case owner and
// moves the case to its active status (in_progress, or open for service
// cases). Workload is read outside the case lock; concurrent assignments to
// the same team may see slightly stale counts.
func (s *AssignmentService) AutoAssign(ctx context.Context, caseID, teamID string) (AssignmentOutcome, error) {
	ctx, span := observability.StartSpan(ctx, "assignment.auto_assign",
		observability.AttrCaseID.String(caseID), observability.AttrTeamID.String(teamID))
	outcome, err := s.autoAssign(ctx, caseID, teamID)
	observability.EndSpanWithError(span, err)
	return outcome, err
}

func (s *AssignmentService) autoAssign(ctx context.Context, caseID, teamID string) (AssignmentOutcome, error) {
	outcome := AssignmentOutcome{CaseID: caseID, TeamID: teamID}

	userID, err := s.FindBestAssignee(ctx, teamID)
	if apperrors.HasCode(err, apperrors.CodeNoAvailableAgents) {
		outcome.Outcome = AssignmentNoAgents
		s.metrics.RecordAssignment(outcome.Outcome)
		s.logger.Info("no available agents for case",
			zap.String("case_id", caseID), zap.String("team_id", teamID))
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}

	now := s.now()
	var (
		oldStatus   domain.CaseStatus
		oldAssignee *string
	)
	errClosed := errors.New("case closed")
	err = s.activities.MutateCase(ctx, caseID, func(c domain.Case, _ []domain.ActivityInstance) (repository.CaseChange, error) {
		if !c.Status.IsOpen() {
			return repository.CaseChange{}, errClosed
		}
		oldStatus, oldAssignee = c.Status, c.AssignedTo

		team := teamID
		assignee := userID
		c.TeamID = &team
		c.AssignedTo = &assignee
		if c.Status != domain.CaseStatusEscalated {
			c.Status = c.ActiveStatus()
		}
		c.UpdatedAt = now
		outcome.Status = c.Status

		history := []domain.CaseHistory{historyEntry(caseID, "", domain.ChangeTypeAssignee,
			map[string]any{"assigned_to": oldAssignee},
			map[string]any{"assigned_to": userID, "team_id": teamID}, now)}
		if oldStatus != c.Status {
			history = append(history, statusHistory(caseID, "", oldStatus, c.Status, "auto_assigned", now))
		}
		return repository.CaseChange{Case: &c, History: history}, nil
	})
	if errors.Is(err, errClosed) {
		outcome.Outcome = AssignmentAlreadyClosed
		s.metrics.RecordAssignment(outcome.Outcome)
		return outcome, nil
	}
	if err != nil {
		return outcome, caseErr(err, caseID)
	}

	outcome.Outcome = AssignmentAssigned
	outcome.AssigneeID = &userID
	s.metrics.RecordAssignment(outcome.Outcome)

	evts := []events.Event{newEvent(events.EventCaseAssigned, caseID, "", now, events.CaseAssignedPayload{
		AssigneeID: outcome.AssigneeID,
		TeamID:     &outcome.TeamID,
		Status:     outcome.Status,
	})}
	if oldStatus != outcome.Status {
		evts = append(evts, newEvent(events.EventCaseStatusChanged, caseID, "", now, events.CaseStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: outcome.Status,
			Reason:    "auto_assigned",
		}))
	}
	s.events.publish(ctx, evts...)
	return outcome, nil
}
