package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleOperator   StaffRole = "operator"
	StaffRoleCompliance StaffRole = "compliance"
	StaffRoleManager    StaffRole = "manager"
	StaffRoleAdmin      StaffRole = "admin"
)

// StaffMember models a back-office user acting on cases.
type StaffMember struct {
	ID        string
	Name      string
	Email     string
	Role      StaffRole
	TeamID    *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
