package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/onboarding-service/internal/domain"
)

// TeamRepository manages teams and exposes the team directory used for
// assignment.
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	Update(ctx context.Context, team *domain.Team) error
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	AddMember(ctx context.Context, teamID, staffID, roleName string) error
	// ListActiveMembers returns active members with their current workload,
	// ordered by user id.
	ListActiveMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error)
}

type teamRepository struct {
	pool *pgxpool.Pool
}

// NewTeamRepository constructs repository.
func NewTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &teamRepository{pool: pool}
}

func (r *teamRepository) Create(ctx context.Context, team *domain.Team) error {
	const query = `
        INSERT INTO teams (name, manager_id, is_active)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		team.Name,
		team.ManagerID,
		team.IsActive,
	).Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
}

func (r *teamRepository) Update(ctx context.Context, team *domain.Team) error {
	const query = `
        UPDATE teams SET name=$1, manager_id=$2, is_active=$3, updated_at=NOW()
        WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query,
		team.Name,
		team.ManagerID,
		team.IsActive,
		team.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	const query = `
        SELECT id, name, manager_id, is_active, created_at, updated_at
        FROM teams WHERE id=$1`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&team.ID,
		&team.Name,
		&team.ManagerID,
		&team.IsActive,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepository) AddMember(ctx context.Context, teamID, staffID, roleName string) error {
	const query = `
        INSERT INTO team_members (team_id, staff_id, role_name, is_active)
        VALUES ($1,$2,$3,TRUE)
        ON CONFLICT (team_id, staff_id) DO UPDATE SET role_name=EXCLUDED.role_name, is_active=TRUE`
	_, err := r.pool.Exec(ctx, query, teamID, staffID, roleName)
	return err
}

// Workload counts are read without locking; concurrent assignments may see
// slightly stale numbers.
func (r *teamRepository) ListActiveMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error) {
	const query = `
        SELECT tm.staff_id, tm.role_name,
               (SELECT COUNT(*) FROM cases c
                 WHERE c.assigned_to = tm.staff_id AND c.status <> ALL($2)),
               (SELECT COUNT(*) FROM activity_instances a
                 WHERE a.assignee_id = tm.staff_id AND a.status IN ('blocked', 'todo', 'in_progress'))
        FROM team_members tm
        JOIN staff_members s ON s.id = tm.staff_id
        WHERE tm.team_id = $1 AND tm.is_active = TRUE AND s.active_flag = TRUE
        ORDER BY tm.staff_id ASC`
	rows, err := r.pool.Query(ctx, query, teamID, closedStatuses())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TeamMember
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.UserID, &m.RoleName, &m.OpenCaseCount, &m.OpenActivityCount); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
