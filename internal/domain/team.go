package domain

import "time"

// Team is an operating unit that owns cases.
type Team struct {
	ID        string
	Name      string
	ManagerID *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TeamMember is an active user of a team together with its current load.
type TeamMember struct {
	UserID            string
	RoleName          string
	OpenCaseCount     int
	OpenActivityCount int
}

// Workload is the number of open items the member currently owns.
func (m TeamMember) Workload() int {
	return m.OpenCaseCount + m.OpenActivityCount
}
