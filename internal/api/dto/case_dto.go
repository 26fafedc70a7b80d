package dto

import (
	"time"

	"github.com/spec-kit/onboarding-service/internal/domain"
)

// StartCaseRequest payload.
type StartCaseRequest struct {
	ContactID   string              `json:"contact_id"`
	CaseType    string              `json:"case_type"`
	ProductType string              `json:"product_type"`
	Kind        domain.CaseKind     `json:"kind"`
	Priority    domain.CasePriority `json:"priority"`
	TeamID      *string             `json:"team_id"`
}

// AutoAssignRequest payload.
type AutoAssignRequest struct {
	TeamID string `json:"team_id"`
}

// DecideCaseRequest payload.
type DecideCaseRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// CompleteActivityRequest payload.
type CompleteActivityRequest struct {
	Outcome *string `json:"outcome"`
}

// SkipActivityRequest payload.
type SkipActivityRequest struct {
	Reason string `json:"reason"`
}

// ChecklistRequest toggles one checklist line.
type ChecklistRequest struct {
	Item    string `json:"item"`
	Checked bool   `json:"checked"`
}

// CaseSummary response.
type CaseSummary struct {
	ID          string              `json:"id"`
	ContactID   string              `json:"contact_id"`
	Kind        domain.CaseKind     `json:"kind"`
	CaseType    string              `json:"case_type"`
	ProductType string              `json:"product_type,omitempty"`
	Status      domain.CaseStatus   `json:"status"`
	Priority    domain.CasePriority `json:"priority"`
	AssignedTo  *string             `json:"assigned_to"`
	TeamID      *string             `json:"team_id"`
	CurrentStep string              `json:"current_step"`
	DueDate     time.Time           `json:"due_date"`
	SLAHours    int                 `json:"sla_hours"`
	SLABreached bool                `json:"sla_breached"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	ClosedAt    *time.Time          `json:"closed_at"`
}

// ActivityResponse response.
type ActivityResponse struct {
	ID            string                  `json:"id"`
	Key           string                  `json:"key"`
	Name          string                  `json:"name"`
	Kind          domain.ActivityKind     `json:"kind"`
	Config        domain.ActivityConfig   `json:"config"`
	SequenceOrder int                     `json:"sequence_order"`
	Mandatory     bool                    `json:"mandatory"`
	DependsOn     []string                `json:"depends_on"`
	AssigneeID    *string                 `json:"assignee_id"`
	Status        domain.ActivityStatus   `json:"status"`
	DueDate       time.Time               `json:"due_date"`
	StartedAt     *time.Time              `json:"started_at"`
	CompletedAt   *time.Time              `json:"completed_at"`
	Outcome       *string                 `json:"outcome"`
	Checklist     []domain.ChecklistEntry `json:"checklist,omitempty"`
}

// AssignmentResponse reports an auto-assignment outcome.
type AssignmentResponse struct {
	Outcome    string            `json:"outcome"`
	TeamID     string            `json:"team_id"`
	AssigneeID *string           `json:"assignee_id"`
	Status     domain.CaseStatus `json:"status,omitempty"`
}

// CaseDetailResponse provides a case with its activity graph.
type CaseDetailResponse struct {
	CaseSummary
	Activities           []ActivityResponse  `json:"activities"`
	Assignment           *AssignmentResponse `json:"assignment,omitempty"`
	UnassignedActivities []string            `json:"unassigned_activities,omitempty"`
}

// ActivityResultResponse reports the effect of an activity operation.
type ActivityResultResponse struct {
	Case         CaseSummary        `json:"case"`
	Activity     ActivityResponse   `json:"activity"`
	Unlocked     []ActivityResponse `json:"unlocked"`
	AllTerminal  bool               `json:"all_terminal"`
	MissingItems []string           `json:"missing_items,omitempty"`
	NoOp         bool               `json:"no_op,omitempty"`
}

// CaseHistoryResponse describes a history entry.
type CaseHistoryResponse struct {
	ID            string                `json:"id"`
	ChangedByType domain.ActorType      `json:"changed_by_type"`
	ChangedByID   *string               `json:"changed_by_id"`
	ChangeType    domain.CaseChangeType `json:"change_type"`
	OldValue      map[string]any        `json:"old_value"`
	NewValue      map[string]any        `json:"new_value"`
	CreatedAt     time.Time             `json:"created_at"`
}

// TemplateResponse summarizes a workflow template.
type TemplateResponse struct {
	ID         string                     `json:"id"`
	Type       string                     `json:"case_type"`
	Name       string                     `json:"name"`
	SLADays    int                        `json:"sla_days"`
	Activities []TemplateActivityResponse `json:"activities"`
}

// TemplateActivityResponse describes one template activity.
type TemplateActivityResponse struct {
	Key            string              `json:"key"`
	Name           string              `json:"name"`
	Kind           domain.ActivityKind `json:"kind"`
	SequenceOrder  int                 `json:"sequence_order"`
	Mandatory      bool                `json:"mandatory"`
	DependsOn      []string            `json:"depends_on"`
	EstimatedHours int                 `json:"estimated_hours"`
	AssignRole     string              `json:"assign_role,omitempty"`
}
