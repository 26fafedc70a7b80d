package events

import (
	"time"

	"github.com/spec-kit/onboarding-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCaseCreated           EventType = "case_created"
	EventCaseStatusChanged     EventType = "case_status_changed"
	EventCaseAssigned          EventType = "case_assigned"
	EventCaseDecided           EventType = "case_decided"
	EventActivityStatusChanged EventType = "activity_status_changed"
	EventActivityUnlocked      EventType = "activity_unlocked"
	EventActivityReady         EventType = "activity_ready"
	EventSLABreached           EventType = "sla_breached"
	EventSLAWarning            EventType = "sla_warning"
	EventCaseEscalated         EventType = "case_escalated"
	EventEscalationUnowned     EventType = "escalation_unowned"
)

// AllEventTypes lists every event the service emits.
var AllEventTypes = []EventType{
	EventCaseCreated,
	EventCaseStatusChanged,
	EventCaseAssigned,
	EventCaseDecided,
	EventActivityStatusChanged,
	EventActivityUnlocked,
	EventActivityReady,
	EventSLABreached,
	EventSLAWarning,
	EventCaseEscalated,
	EventEscalationUnowned,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// SystemActor is the actor of scheduler and worker driven events.
var SystemActor = Actor{Type: domain.SubjectTypeSystem}

// StaffActor builds the actor for a staff initiated change.
func StaffActor(staffID string) Actor {
	if staffID == "" {
		return SystemActor
	}
	return Actor{Type: domain.SubjectTypeStaff, StaffID: &staffID}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CaseID    string      `json:"case_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CaseCreatedPayload payload.
type CaseCreatedPayload struct {
	CaseType             string              `json:"case_type"`
	Priority             domain.CasePriority `json:"priority"`
	DueDate              time.Time           `json:"due_date"`
	TeamID               *string             `json:"team_id,omitempty"`
	AssignedTo           *string             `json:"assigned_to,omitempty"`
	ActivityCount        int                 `json:"activity_count"`
	UnassignedActivities []string            `json:"unassigned_activities,omitempty"`
}

// CaseStatusChangedPayload payload.
type CaseStatusChangedPayload struct {
	OldStatus domain.CaseStatus `json:"old_status"`
	NewStatus domain.CaseStatus `json:"new_status"`
	Reason    string            `json:"reason,omitempty"`
}

// CaseAssignedPayload payload.
type CaseAssignedPayload struct {
	AssigneeID *string           `json:"assignee_id,omitempty"`
	TeamID     *string           `json:"team_id,omitempty"`
	Status     domain.CaseStatus `json:"status"`
}

// CaseDecidedPayload payload.
type CaseDecidedPayload struct {
	Decision string            `json:"decision"`
	Status   domain.CaseStatus `json:"status"`
	Reason   string            `json:"reason,omitempty"`
}

// ActivityStatusChangedPayload payload.
type ActivityStatusChangedPayload struct {
	ActivityID string                `json:"activity_id"`
	Key        string                `json:"key"`
	OldStatus  domain.ActivityStatus `json:"old_status"`
	NewStatus  domain.ActivityStatus `json:"new_status"`
	Outcome    *string               `json:"outcome,omitempty"`
}

// ActivityUnlockedPayload payload.
type ActivityUnlockedPayload struct {
	ActivityID string  `json:"activity_id"`
	Key        string  `json:"key"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

// ActivityReadyPayload announces a system action ready for automatic execution.
type ActivityReadyPayload struct {
	ActivityID string `json:"activity_id"`
	ActionType string `json:"action_type"`
}

// SLAPayload is shared by breach and warning events.
type SLAPayload struct {
	DetectedAt time.Time `json:"detected_at"`
}

// CaseEscalatedPayload payload.
type CaseEscalatedPayload struct {
	OldStatus       domain.CaseStatus   `json:"old_status"`
	OldPriority     domain.CasePriority `json:"old_priority"`
	NewPriority     domain.CasePriority `json:"new_priority"`
	AssignedTo      *string             `json:"assigned_to,omitempty"`
	ManagerAssigned bool                `json:"manager_assigned"`
}

// EscalationUnownedPayload flags an escalated case whose team has no manager.
type EscalationUnownedPayload struct {
	TeamID *string `json:"team_id,omitempty"`
}
