package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/events"
	"github.com/spec-kit/onboarding-service/internal/observability"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// Clock returns the current time. Services never call time.Now directly.
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return SystemClock
	}
	return c
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// historyEntry builds a history row. An empty actorID records a system change.
func historyEntry(caseID, actorID string, changeType domain.CaseChangeType, oldValue, newValue map[string]any, now time.Time) domain.CaseHistory {
	h := domain.CaseHistory{
		CaseID:        caseID,
		ChangedByType: domain.ActorTypeSystem,
		ChangeType:    changeType,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     now,
	}
	if actorID != "" {
		id := actorID
		h.ChangedByType = domain.ActorTypeStaff
		h.ChangedByID = &id
	}
	return h
}

func statusHistory(caseID, actorID string, oldStatus, newStatus domain.CaseStatus, reason string, now time.Time) domain.CaseHistory {
	newValue := map[string]any{"status": newStatus}
	if reason != "" {
		newValue["reason"] = reason
	}
	return historyEntry(caseID, actorID, domain.ChangeTypeStatus, map[string]any{"status": oldStatus}, newValue, now)
}

func newEvent(eventType events.EventType, caseID, actorID string, now time.Time, payload any) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		CaseID:    caseID,
		Actor:     events.StaffActor(actorID),
		Timestamp: now,
		Payload:   payload,
	}
}

// eventPublisher fans events out after the store has committed. Handler
// failures are logged and never undo the committed change.
type eventPublisher struct {
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func (p eventPublisher) publish(ctx context.Context, evts ...events.Event) {
	if p.dispatcher == nil {
		return
	}
	for _, event := range evts {
		p.metrics.RecordEventPublished(string(event.Type))
		if err := p.dispatcher.Publish(ctx, event); err != nil {
			p.logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("case_id", event.CaseID),
				zap.Error(err))
		}
	}
}

func notFoundOr(err error, resource, idKey, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, map[string]any{idKey: id})
	}
	return apperrors.MapError(err)
}

func caseErr(err error, caseID string) error {
	return notFoundOr(err, "case", "case_id", caseID)
}
