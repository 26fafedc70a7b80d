package domain

import "time"

// CaseStatus enumerates lifecycle states for an onboarding case (pratica).
type CaseStatus string

const (
	CaseStatusPending     CaseStatus = "pending"
	CaseStatusInProgress  CaseStatus = "in_progress"
	CaseStatusWaitingDocs CaseStatus = "waiting_docs"
	CaseStatusReview      CaseStatus = "review"
	CaseStatusEscalated   CaseStatus = "escalated"
	CaseStatusApproved    CaseStatus = "approved"
	CaseStatusRejected    CaseStatus = "rejected"

	// Service cases share the table and use the helpdesk vocabulary.
	CaseStatusOpen     CaseStatus = "open"
	CaseStatusResolved CaseStatus = "resolved"
	CaseStatusClosed   CaseStatus = "closed"
)

// ClosedCaseStatuses lists the statuses that take a case out of SLA tracking.
var ClosedCaseStatuses = []CaseStatus{
	CaseStatusApproved,
	CaseStatusRejected,
	CaseStatusResolved,
	CaseStatusClosed,
}

// IsOpen reports whether a case with this status still counts against its SLA.
func (s CaseStatus) IsOpen() bool {
	for _, closed := range ClosedCaseStatuses {
		if s == closed {
			return false
		}
	}
	return true
}

// CasePriority enumerates SLA urgency.
type CasePriority string

const (
	CasePriorityLow      CasePriority = "low"
	CasePriorityMedium   CasePriority = "medium"
	CasePriorityHigh     CasePriority = "high"
	CasePriorityCritical CasePriority = "critical"
)

// Rank orders priorities; unknown values rank with medium.
func (p CasePriority) Rank() int {
	switch p {
	case CasePriorityLow:
		return 0
	case CasePriorityHigh:
		return 2
	case CasePriorityCritical:
		return 3
	default:
		return 1
	}
}

// CaseKind separates workflow-driven onboarding cases from helpdesk service cases.
type CaseKind string

const (
	CaseKindOnboarding CaseKind = "onboarding"
	CaseKindService    CaseKind = "service"
)

// Case is the aggregate tracked against a customer.
type Case struct {
	ID          string
	ContactID   string
	Kind        CaseKind
	Type        string
	ProductType string
	Status      CaseStatus
	Priority    CasePriority
	AssignedTo  *string
	TeamID      *string
	CurrentStep string
	DueDate     time.Time
	SLAHours    int
	SLABreached bool
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}

// ActiveStatus is the status a case moves to once it has an owner.
func (c *Case) ActiveStatus() CaseStatus {
	if c.Kind == CaseKindService {
		return CaseStatusOpen
	}
	return CaseStatusInProgress
}
