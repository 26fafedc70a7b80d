package domain

import "time"

// ActivityStatus enumerates per-activity lifecycle states.
type ActivityStatus string

const (
	ActivityStatusBlocked    ActivityStatus = "blocked"
	ActivityStatusTodo       ActivityStatus = "todo"
	ActivityStatusInProgress ActivityStatus = "in_progress"
	ActivityStatusCompleted  ActivityStatus = "completed"
	ActivityStatusSkipped    ActivityStatus = "skipped"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ActivityStatus) IsTerminal() bool {
	return s == ActivityStatusCompleted || s == ActivityStatusSkipped
}

// ChecklistEntry is the runtime state of one checklist line.
type ChecklistEntry struct {
	Item      string     `json:"item"`
	Required  bool       `json:"required"`
	Checked   bool       `json:"checked"`
	CheckedBy *string    `json:"checked_by,omitempty"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}

// ActivityInstance is one materialized step of a case's workflow.
// DependsOn holds sibling instance ids, never template keys.
type ActivityInstance struct {
	ID            string
	CaseID        string
	Key           string
	Name          string
	Config        ActivityConfig
	SequenceOrder int
	Mandatory     bool
	DependsOn     []string
	AssigneeID    *string
	TeamID        *string
	Status        ActivityStatus
	DueDate       time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Outcome       *string
	Checklist     []ChecklistEntry
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Kind returns the variant tag of the instance.
func (a *ActivityInstance) Kind() ActivityKind {
	if a.Config == nil {
		return ""
	}
	return a.Config.Kind()
}

// MissingRequiredItems lists required checklist lines that are still unchecked.
func (a *ActivityInstance) MissingRequiredItems() []string {
	var missing []string
	for _, entry := range a.Checklist {
		if entry.Required && !entry.Checked {
			missing = append(missing, entry.Item)
		}
	}
	return missing
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (a ActivityInstance) Clone() ActivityInstance {
	out := a
	out.DependsOn = append([]string(nil), a.DependsOn...)
	out.Checklist = append([]ChecklistEntry(nil), a.Checklist...)
	return out
}
