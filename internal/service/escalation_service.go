package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/events"
	"github.com/spec-kit/onboarding-service/internal/observability"
	"github.com/spec-kit/onboarding-service/internal/repository"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// DefaultEscalationPageSize caps how many cases one Escalate call touches.
const DefaultEscalationPageSize = 100

// EscalationResult lists the cases escalated by one call. Unowned holds the
// escalated cases whose team has no manager to take them over.
type EscalationResult struct {
	Count        int      `json:"count"`
	EscalatedIDs []string `json:"escalated_ids"`
	Unowned      []string `json:"unowned,omitempty"`
}

// EscalationService escalates breached cases and announces SLA events.
type EscalationService struct {
	cases    repository.CaseRepository
	history  repository.CaseHistoryRepository
	events   eventPublisher
	metrics  *observability.Metrics
	logger   *zap.Logger
	pageSize int
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	CaseRepo    repository.CaseRepository
	HistoryRepo repository.CaseHistoryRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	PageSize    int
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := loggerOrNop(deps.Logger)
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = DefaultEscalationPageSize
	}
	return &EscalationService{
		cases:    deps.CaseRepo,
		history:  deps.HistoryRepo,
		events:   eventPublisher{dispatcher: deps.Dispatcher, metrics: deps.Metrics, logger: logger},
		metrics:  deps.Metrics,
		logger:   logger,
		pageSize: pageSize,
	}
}

// PageSize returns the per-call escalation cap.
func (s *EscalationService) PageSize() int {
	return s.pageSize
}

// Escalate moves up to PageSize of the given breached, open, not yet
// escalated cases to escalated, raising priority to high unless already
// critical, and hands them to their team manager. Ids beyond the cap are left
// for the next call. The store applies all of it in one statement.
func (s *EscalationService) Escalate(ctx context.Context, breachedIDs []string, now time.Time) (result EscalationResult, err error) {
	if len(breachedIDs) == 0 {
		return EscalationResult{}, nil
	}
	ctx, span := observability.StartSpan(ctx, "sla.escalate", observability.AttrCount.Int(len(breachedIDs)))
	defer func() { observability.EndSpanWithError(span, err) }()

	rows, err := s.cases.Escalate(ctx, breachedIDs, s.pageSize, now)
	if err != nil {
		return EscalationResult{}, apperrors.MapError(err)
	}

	var evts []events.Event
	for _, row := range rows {
		result.EscalatedIDs = append(result.EscalatedIDs, row.ID)
		s.recordHistory(ctx, row, now)

		evts = append(evts, newEvent(events.EventCaseEscalated, row.ID, "", now, events.CaseEscalatedPayload{
			OldStatus:       row.PreviousStatus,
			OldPriority:     row.PreviousPriority,
			NewPriority:     row.Priority,
			AssignedTo:      row.AssignedTo,
			ManagerAssigned: row.ManagerAssigned,
		}))
		if !row.ManagerAssigned {
			result.Unowned = append(result.Unowned, row.ID)
			evts = append(evts, newEvent(events.EventEscalationUnowned, row.ID, "", now, events.EscalationUnownedPayload{
				TeamID: row.TeamID,
			}))
		}
	}
	result.Count = len(rows)
	s.metrics.RecordEscalations(result.Count, len(result.Unowned))
	s.events.publish(ctx, evts...)

	if len(result.Unowned) > 0 {
		s.logger.Warn("escalated cases have no manager",
			zap.Strings("case_ids", result.Unowned))
	}
	return result, nil
}

// recordHistory writes the audit rows for one escalation. The escalation
// itself is already committed, so a failure here is only logged.
func (s *EscalationService) recordHistory(ctx context.Context, row repository.EscalatedCase, now time.Time) {
	if s.history == nil {
		return
	}
	entries := []domain.CaseHistory{
		statusHistory(row.ID, "", row.PreviousStatus, domain.CaseStatusEscalated, "sla_breached", now),
	}
	if row.PreviousPriority != row.Priority {
		entries = append(entries, historyEntry(row.ID, "", domain.ChangeTypePriority,
			map[string]any{"priority": row.PreviousPriority},
			map[string]any{"priority": row.Priority}, now))
	}
	if row.ManagerAssigned {
		entries = append(entries, historyEntry(row.ID, "", domain.ChangeTypeAssignee,
			map[string]any{"assigned_to": row.PreviousAssignee},
			map[string]any{"assigned_to": row.AssignedTo}, now))
	}
	for i := range entries {
		if err := s.history.Create(ctx, &entries[i]); err != nil {
			s.logger.Warn("record escalation history failed", zap.String("case_id", row.ID), zap.Error(err))
			return
		}
	}
}

// AnnounceSweep publishes sla_breached for every newly breached case and
// sla_warning for every at-risk case.
func (s *EscalationService) AnnounceSweep(ctx context.Context, breachedIDs, warningIDs []string, now time.Time) {
	evts := make([]events.Event, 0, len(breachedIDs)+len(warningIDs))
	for _, id := range breachedIDs {
		evts = append(evts, newEvent(events.EventSLABreached, id, "", now, events.SLAPayload{DetectedAt: now}))
	}
	for _, id := range warningIDs {
		evts = append(evts, newEvent(events.EventSLAWarning, id, "", now, events.SLAPayload{DetectedAt: now}))
	}
	s.events.publish(ctx, evts...)
}
