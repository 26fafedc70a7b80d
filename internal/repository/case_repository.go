package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/onboarding-service/internal/domain"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// CaseFilter captures case search parameters.
type CaseFilter struct {
	TeamID     *string
	AssignedTo *string
	Statuses   []domain.CaseStatus
	Priorities []domain.CasePriority
	Breached   *bool
	OpenOnly   bool
	Limit      int
	Offset     int
}

// CaseCounts aggregates the open case population for SLA reporting.
type CaseCounts struct {
	Open     int
	Breached int
	AtRisk   int
}

// EscalatedCase is one row touched by Escalate, with its before/after values.
type EscalatedCase struct {
	ID               string
	TeamID           *string
	PreviousStatus   domain.CaseStatus
	PreviousPriority domain.CasePriority
	Priority         domain.CasePriority
	PreviousAssignee *string
	AssignedTo       *string
	// ManagerAssigned is false when the case team has no manager to escalate to.
	ManagerAssigned bool
	Version         int
}

// CaseRepository encapsulates case persistence. MarkBreached and Escalate are
// single conditional statements so an interrupted sweep never leaves a partial
// update behind.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	Update(ctx context.Context, c *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	List(ctx context.Context, filter CaseFilter) ([]domain.Case, error)
	MarkBreached(ctx context.Context, now time.Time) ([]string, error)
	ListAtRisk(ctx context.Context, now time.Time, window time.Duration) ([]string, error)
	ListPendingEscalation(ctx context.Context, limit int) ([]string, error)
	Escalate(ctx context.Context, ids []string, limit int, now time.Time) ([]EscalatedCase, error)
	Counts(ctx context.Context, now time.Time, window time.Duration) (CaseCounts, error)
}

type caseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{pool: pool}
}

const caseColumns = `id, contact_id, kind, case_type, product_type, status, priority, assigned_to, team_id,
               current_step, due_date, sla_hours, sla_breached, version, created_at, updated_at, closed_at`

func closedStatuses() []string {
	out := make([]string, len(domain.ClosedCaseStatuses))
	for i, s := range domain.ClosedCaseStatuses {
		out[i] = string(s)
	}
	return out
}

func (r *caseRepository) Create(ctx context.Context, c *domain.Case) error {
	return insertCase(ctx, r.pool, c)
}

func insertCase(ctx context.Context, q querier, c *domain.Case) error {
	const query = `
        INSERT INTO cases (id, contact_id, kind, case_type, product_type, status, priority, assigned_to, team_id,
            current_step, due_date, sla_hours, sla_breached, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	if c.Version == 0 {
		c.Version = 1
	}
	_, err := q.Exec(ctx, query,
		c.ID,
		c.ContactID,
		c.Kind,
		c.Type,
		c.ProductType,
		c.Status,
		c.Priority,
		c.AssignedTo,
		c.TeamID,
		c.CurrentStep,
		c.DueDate,
		c.SLAHours,
		c.SLABreached,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return mapPgError(err, "case")
}

// Update writes the mutable columns when the stored version still matches
// c.Version and bumps it. sla_breached is owned by MarkBreached and never
// written here.
func (r *caseRepository) Update(ctx context.Context, c *domain.Case) error {
	return updateCase(ctx, r.pool, c)
}

func updateCase(ctx context.Context, q querier, c *domain.Case) error {
	const query = `
        UPDATE cases SET status=$1, priority=$2, assigned_to=$3, team_id=$4, current_step=$5,
            due_date=$6, sla_hours=$7, closed_at=$8, updated_at=$9, version=version+1
        WHERE id=$10 AND version=$11`
	cmd, err := q.Exec(ctx, query,
		c.Status,
		c.Priority,
		c.AssignedTo,
		c.TeamID,
		c.CurrentStep,
		c.DueDate,
		c.SLAHours,
		c.ClosedAt,
		c.UpdatedAt,
		c.ID,
		c.Version,
	)
	if err != nil {
		return mapPgError(err, "case")
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cases WHERE id=$1)`, c.ID).Scan(&exists); err != nil {
			return mapPgError(err, "case")
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return apperrors.NewStorageConflict("case", fmt.Errorf("version %d is stale", c.Version))
	}
	c.Version++
	return nil
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id=$1`
	return scanCase(r.pool.QueryRow(ctx, query, id))
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	if err := row.Scan(
		&c.ID,
		&c.ContactID,
		&c.Kind,
		&c.Type,
		&c.ProductType,
		&c.Status,
		&c.Priority,
		&c.AssignedTo,
		&c.TeamID,
		&c.CurrentStep,
		&c.DueDate,
		&c.SLAHours,
		&c.SLABreached,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *caseRepository) List(ctx context.Context, filter CaseFilter) ([]domain.Case, error) {
	base := `SELECT ` + caseColumns + ` FROM cases`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.TeamID != nil {
		args = append(args, *filter.TeamID)
		clauses = append(clauses, fmt.Sprintf("team_id=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Breached != nil {
		args = append(args, *filter.Breached)
		clauses = append(clauses, fmt.Sprintf("sla_breached=$%d", len(args)))
	}
	if filter.OpenOnly {
		args = append(args, closedStatuses())
		clauses = append(clauses, fmt.Sprintf("status <> ALL($%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY due_date ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *caseRepository) MarkBreached(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
        UPDATE cases SET sla_breached = TRUE, updated_at = $1
        WHERE sla_breached = FALSE AND due_date < $1 AND status <> ALL($2)
        RETURNING id`
	return r.queryIDs(ctx, query, now, closedStatuses())
}

func (r *caseRepository) ListAtRisk(ctx context.Context, now time.Time, window time.Duration) ([]string, error) {
	const query = `
        SELECT id FROM cases
        WHERE sla_breached = FALSE AND due_date < $1 AND status <> ALL($2)
        ORDER BY due_date ASC`
	return r.queryIDs(ctx, query, now.Add(window), closedStatuses())
}

func (r *caseRepository) ListPendingEscalation(ctx context.Context, limit int) ([]string, error) {
	const query = `
        SELECT id FROM cases
        WHERE sla_breached = TRUE AND status <> 'escalated' AND status <> ALL($1)
        ORDER BY due_date ASC
        LIMIT $2`
	return r.queryIDs(ctx, query, closedStatuses(), limit)
}

// Escalate moves up to limit breached, open, not yet escalated cases among ids
// to escalated, raises their priority to high unless already critical, and
// hands them to the team manager when the team has one.
func (r *caseRepository) Escalate(ctx context.Context, ids []string, limit int, now time.Time) ([]EscalatedCase, error) {
	if len(ids) == 0 || limit <= 0 {
		return nil, nil
	}
	const query = `
        WITH target AS (
            SELECT c.id, c.status, c.priority, c.assigned_to, t.manager_id
            FROM cases c
            LEFT JOIN teams t ON t.id = c.team_id
            WHERE c.id = ANY($1) AND c.sla_breached = TRUE
              AND c.status <> 'escalated' AND c.status <> ALL($2)
            ORDER BY c.due_date ASC
            LIMIT $3
            FOR UPDATE OF c SKIP LOCKED
        )
        UPDATE cases c SET
            status = 'escalated',
            priority = CASE WHEN c.priority = 'critical' THEN 'critical' ELSE 'high' END,
            assigned_to = COALESCE(target.manager_id, c.assigned_to),
            version = c.version + 1,
            updated_at = $4
        FROM target
        WHERE c.id = target.id
        RETURNING c.id, c.team_id, target.status, target.priority, c.priority,
                  target.assigned_to, c.assigned_to, target.manager_id IS NOT NULL, c.version`

	rows, err := r.pool.Query(ctx, query, ids, closedStatuses(), limit, now)
	if err != nil {
		return nil, mapPgError(err, "case")
	}
	defer rows.Close()

	var result []EscalatedCase
	for rows.Next() {
		var e EscalatedCase
		if err := rows.Scan(
			&e.ID,
			&e.TeamID,
			&e.PreviousStatus,
			&e.PreviousPriority,
			&e.Priority,
			&e.PreviousAssignee,
			&e.AssignedTo,
			&e.ManagerAssigned,
			&e.Version,
		); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, mapPgError(rows.Err(), "case")
}

func (r *caseRepository) Counts(ctx context.Context, now time.Time, window time.Duration) (CaseCounts, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE sla_breached),
               COUNT(*) FILTER (WHERE NOT sla_breached AND due_date < $1)
        FROM cases WHERE status <> ALL($2)`
	var counts CaseCounts
	err := r.pool.QueryRow(ctx, query, now.Add(window), closedStatuses()).
		Scan(&counts.Open, &counts.Breached, &counts.AtRisk)
	return counts, err
}

func (r *caseRepository) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err, "case")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, mapPgError(rows.Err(), "case")
}
