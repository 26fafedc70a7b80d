package domain

import "time"

// CaseChangeType captures what changed in a history entry.
type CaseChangeType string

const (
	ChangeTypeStatus   CaseChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee CaseChangeType = "ASSIGNEE_CHANGE"
	ChangeTypePriority CaseChangeType = "PRIORITY_CHANGE"
	ChangeTypeActivity CaseChangeType = "ACTIVITY_CHANGE"
	ChangeTypeSLA      CaseChangeType = "SLA_CHANGE"
)

// ActorType indicates who caused a change.
type ActorType string

const (
	ActorTypeStaff  ActorType = "STAFF"
	ActorTypeSystem ActorType = "SYSTEM"
)

// CaseHistory is an immutable audit trail entry.
type CaseHistory struct {
	ID            string
	CaseID        string
	ChangedByType ActorType
	ChangedByID   *string
	ChangeType    CaseChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
