package dto

import (
	"time"

	"github.com/spec-kit/onboarding-service/internal/domain"
)

// TeamRequest payload for creating a team.
type TeamRequest struct {
	Name      string  `json:"name"`
	ManagerID *string `json:"manager_id"`
}

// TeamManagerRequest payload for changing the escalation target.
type TeamManagerRequest struct {
	ManagerID *string `json:"manager_id"`
}

// TeamMemberRequest adds a staff member to a team.
type TeamMemberRequest struct {
	StaffID  string `json:"staff_id"`
	RoleName string `json:"role_name"`
}

// TeamResponse response model.
type TeamResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ManagerID *string   `json:"manager_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeamMemberResponse is a member with its current workload.
type TeamMemberResponse struct {
	UserID            string `json:"user_id"`
	RoleName          string `json:"role_name"`
	OpenCaseCount     int    `json:"open_case_count"`
	OpenActivityCount int    `json:"open_activity_count"`
	Workload          int    `json:"workload"`
}

// StaffCreateRequest payload.
type StaffCreateRequest struct {
	Name   string           `json:"name"`
	Email  string           `json:"email"`
	Role   domain.StaffRole `json:"role"`
	TeamID *string          `json:"team_id"`
}

// StaffUpdateRequest payload.
type StaffUpdateRequest struct {
	Name   string           `json:"name"`
	Role   domain.StaffRole `json:"role"`
	Active *bool            `json:"active"`
}

// StaffResponse response model.
type StaffResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Role      domain.StaffRole `json:"role"`
	TeamID    *string          `json:"team_id"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
