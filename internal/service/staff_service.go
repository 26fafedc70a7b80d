package service

import (
	"context"
	"strings"

	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/repository"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// StaffService manages teams and staff members.
type StaffService struct {
	teams repository.TeamRepository
	staff repository.StaffRepository
}

// StaffListFilters define listing parameters.
type StaffListFilters struct {
	Role   *domain.StaffRole
	TeamID *string
	Active *bool
	Limit  int
	Offset int
}

// OrgDependencies encapsulates repositories required for org management.
type OrgDependencies struct {
	TeamRepo  repository.TeamRepository
	StaffRepo repository.StaffRepository
}

// NewStaffService constructs the service.
func NewStaffService(deps OrgDependencies) *StaffService {
	return &StaffService{
		teams: deps.TeamRepo,
		staff: deps.StaffRepo,
	}
}

func requireAdmin(actor *domain.StaffMember) error {
	if actor == nil || actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

func validRole(role domain.StaffRole) bool {
	switch role {
	case domain.StaffRoleOperator, domain.StaffRoleCompliance, domain.StaffRoleManager, domain.StaffRoleAdmin:
		return true
	}
	return false
}

// CreateTeam creates an active team. managerID, when set, must reference an
// active staff member.
func (s *StaffService) CreateTeam(ctx context.Context, actor *domain.StaffMember, name string, managerID *string) (*domain.Team, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.NewValidationError("team name is required", nil)
	}
	if err := s.requireActiveStaff(ctx, managerID); err != nil {
		return nil, err
	}
	team := &domain.Team{Name: name, ManagerID: managerID, IsActive: true}
	if err := s.teams.Create(ctx, team); err != nil {
		return nil, apperrors.MapError(err)
	}
	return team, nil
}

// GetTeamByID fetches team.
func (s *StaffService) GetTeamByID(ctx context.Context, actor *domain.StaffMember, id string) (*domain.Team, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	team, err := s.teams.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "team", "team_id", id)
	}
	return team, nil
}

// SetTeamManager changes the escalation target of a team.
func (s *StaffService) SetTeamManager(ctx context.Context, actor *domain.StaffMember, teamID string, managerID *string) (*domain.Team, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	team, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, notFoundOr(err, "team", "team_id", teamID)
	}
	if err := s.requireActiveStaff(ctx, managerID); err != nil {
		return nil, err
	}
	team.ManagerID = managerID
	if err := s.teams.Update(ctx, team); err != nil {
		return nil, apperrors.MapError(err)
	}
	return team, nil
}

// AddTeamMember puts a staff member on a team under roleName, the name
// template activities match on.
func (s *StaffService) AddTeamMember(ctx context.Context, actor *domain.StaffMember, teamID, staffID, roleName string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	team, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return notFoundOr(err, "team", "team_id", teamID)
	}
	if !team.IsActive {
		return apperrors.NewConflict("team inactive", map[string]any{"team_id": teamID})
	}
	if err := s.requireActiveStaff(ctx, &staffID); err != nil {
		return err
	}
	if strings.TrimSpace(roleName) == "" {
		return apperrors.NewValidationError("role_name is required", nil)
	}
	if err := s.teams.AddMember(ctx, teamID, staffID, roleName); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// ListTeamMembers returns the active members of a team with their workload.
func (s *StaffService) ListTeamMembers(ctx context.Context, actor *domain.StaffMember, teamID string) ([]domain.TeamMember, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if _, err := s.teams.GetByID(ctx, teamID); err != nil {
		return nil, notFoundOr(err, "team", "team_id", teamID)
	}
	members, err := s.teams.ListActiveMembers(ctx, teamID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return members, nil
}

// CreateStaffMember adds a new staff record.
func (s *StaffService) CreateStaffMember(ctx context.Context, actor *domain.StaffMember, name, email string, role domain.StaffRole, teamID *string) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !validRole(role) {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	if strings.TrimSpace(email) == "" {
		return nil, apperrors.NewValidationError("email is required", nil)
	}
	if teamID != nil && *teamID != "" {
		team, err := s.teams.GetByID(ctx, *teamID)
		if err != nil {
			return nil, notFoundOr(err, "team", "team_id", *teamID)
		}
		if !team.IsActive {
			return nil, apperrors.NewConflict("team inactive", map[string]any{"team_id": *teamID})
		}
	}

	staff := &domain.StaffMember{
		Name:   name,
		Email:  email,
		Role:   role,
		TeamID: teamID,
		Active: true,
	}
	if err := s.staff.Create(ctx, staff); err != nil {
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}

// ListStaffMembers lists staff with filters.
func (s *StaffService) ListStaffMembers(ctx context.Context, actor *domain.StaffMember, filters StaffListFilters) ([]domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	list, err := s.staff.List(ctx, repository.StaffFilter{
		Role:   filters.Role,
		TeamID: filters.TeamID,
		Active: filters.Active,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// UpdateStaffMember updates staff details.
func (s *StaffService) UpdateStaffMember(ctx context.Context, actor *domain.StaffMember, staffID, name string, role domain.StaffRole, active bool) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !validRole(role) {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	staff, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		return nil, notFoundOr(err, "staff", "staff_id", staffID)
	}
	if name != "" {
		staff.Name = name
	}
	staff.Role = role
	staff.Active = active
	if err := s.staff.Update(ctx, staff); err != nil {
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}

func (s *StaffService) requireActiveStaff(ctx context.Context, staffID *string) error {
	if staffID == nil || *staffID == "" {
		return nil
	}
	member, err := s.staff.GetByID(ctx, *staffID)
	if err != nil {
		return notFoundOr(err, "staff", "staff_id", *staffID)
	}
	if !member.Active {
		return apperrors.NewConflict("staff inactive", map[string]any{"staff_id": *staffID})
	}
	return nil
}
