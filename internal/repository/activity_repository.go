package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/onboarding-service/internal/domain"
)

// CaseChange lists what a CaseMutation wants persisted. A nil Case leaves the
// case row untouched; Activities holds only the rows that changed.
type CaseChange struct {
	Case       *domain.Case
	Activities []domain.ActivityInstance
	History    []domain.CaseHistory
}

// CaseMutation computes a change from the current case and its full activity
// set. It must not call back into the repository.
type CaseMutation func(c domain.Case, activities []domain.ActivityInstance) (CaseChange, error)

// ActivityRepository persists activity instances. A case and its activities
// are always written together: CreateWithCase inserts both in one transaction
// and MutateCase locks the case row while the whole graph is read and written.
type ActivityRepository interface {
	CreateWithCase(ctx context.Context, c *domain.Case, activities []domain.ActivityInstance, history []domain.CaseHistory) error
	GetByID(ctx context.Context, id string) (*domain.ActivityInstance, error)
	ListByCase(ctx context.Context, caseID string) ([]domain.ActivityInstance, error)
	MutateCase(ctx context.Context, caseID string, fn CaseMutation) error
}

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository instantiates repository.
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

const activityColumns = `id, case_id, key, name, kind, config, sequence_order, mandatory, depends_on,
               assignee_id, team_id, status, due_date, started_at, completed_at, outcome, checklist,
               created_at, updated_at`

func (r *activityRepository) CreateWithCase(ctx context.Context, c *domain.Case, activities []domain.ActivityInstance, history []domain.CaseHistory) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertCase(ctx, tx, c); err != nil {
		return err
	}
	if err := insertActivities(ctx, tx, activities); err != nil {
		return err
	}
	for i := range history {
		if err := insertHistory(ctx, tx, &history[i]); err != nil {
			return err
		}
	}
	return mapPgError(tx.Commit(ctx), "case")
}

func insertActivities(ctx context.Context, tx pgx.Tx, activities []domain.ActivityInstance) error {
	const query = `
        INSERT INTO activity_instances (id, case_id, key, name, kind, config, sequence_order, mandatory, depends_on,
            assignee_id, team_id, status, due_date, started_at, completed_at, outcome, checklist, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

	batch := &pgx.Batch{}
	for _, a := range activities {
		config, checklist, err := encodeActivity(a)
		if err != nil {
			return err
		}
		batch.Queue(query,
			a.ID,
			a.CaseID,
			a.Key,
			a.Name,
			a.Kind(),
			config,
			a.SequenceOrder,
			a.Mandatory,
			dependsOnParam(a.DependsOn),
			a.AssigneeID,
			a.TeamID,
			a.Status,
			a.DueDate,
			a.StartedAt,
			a.CompletedAt,
			a.Outcome,
			checklist,
			a.CreatedAt,
			a.UpdatedAt,
		)
	}
	return mapPgError(tx.SendBatch(ctx, batch).Close(), "activity")
}

func updateActivities(ctx context.Context, tx pgx.Tx, activities []domain.ActivityInstance) error {
	const query = `
        UPDATE activity_instances SET status=$1, assignee_id=$2, team_id=$3, started_at=$4, completed_at=$5,
            outcome=$6, checklist=$7, updated_at=$8
        WHERE id=$9 AND case_id=$10`

	batch := &pgx.Batch{}
	for _, a := range activities {
		_, checklist, err := encodeActivity(a)
		if err != nil {
			return err
		}
		batch.Queue(query,
			a.Status,
			a.AssigneeID,
			a.TeamID,
			a.StartedAt,
			a.CompletedAt,
			a.Outcome,
			checklist,
			a.UpdatedAt,
			a.ID,
			a.CaseID,
		)
	}
	return mapPgError(tx.SendBatch(ctx, batch).Close(), "activity")
}

func (r *activityRepository) GetByID(ctx context.Context, id string) (*domain.ActivityInstance, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_instances WHERE id=$1`
	return scanActivity(r.pool.QueryRow(ctx, query, id))
}

func (r *activityRepository) ListByCase(ctx context.Context, caseID string) ([]domain.ActivityInstance, error) {
	return listActivities(ctx, r.pool, caseID)
}

func listActivities(ctx context.Context, q querier, caseID string) ([]domain.ActivityInstance, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_instances WHERE case_id=$1 ORDER BY sequence_order ASC`
	rows, err := q.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ActivityInstance
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// MutateCase runs fn against a consistent snapshot of the case graph. The case
// row is held with FOR UPDATE until commit, so two completions on the same case
// are serialized and a join activity always sees both parents.
func (r *activityRepository) MutateCase(ctx context.Context, caseID string, fn CaseMutation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + caseColumns + ` FROM cases WHERE id=$1 FOR UPDATE`
	c, err := scanCase(tx.QueryRow(ctx, query, caseID))
	if err != nil {
		return mapPgError(err, "case")
	}
	activities, err := listActivities(ctx, tx, caseID)
	if err != nil {
		return err
	}

	change, err := fn(*c, activities)
	if err != nil {
		return err
	}

	if change.Case != nil {
		if err := updateCase(ctx, tx, change.Case); err != nil {
			return err
		}
	}
	if len(change.Activities) > 0 {
		if err := updateActivities(ctx, tx, change.Activities); err != nil {
			return err
		}
	}
	for i := range change.History {
		if err := insertHistory(ctx, tx, &change.History[i]); err != nil {
			return err
		}
	}
	return mapPgError(tx.Commit(ctx), "case")
}

func scanActivity(row pgx.Row) (*domain.ActivityInstance, error) {
	var (
		a         domain.ActivityInstance
		kind      domain.ActivityKind
		config    []byte
		checklist []byte
	)
	if err := row.Scan(
		&a.ID,
		&a.CaseID,
		&a.Key,
		&a.Name,
		&kind,
		&config,
		&a.SequenceOrder,
		&a.Mandatory,
		&a.DependsOn,
		&a.AssigneeID,
		&a.TeamID,
		&a.Status,
		&a.DueDate,
		&a.StartedAt,
		&a.CompletedAt,
		&a.Outcome,
		&checklist,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	cfg, err := domain.DecodeActivityConfig(kind, config)
	if err != nil {
		return nil, fmt.Errorf("activity %s: %w", a.ID, err)
	}
	a.Config = cfg
	if len(checklist) > 0 {
		if err := json.Unmarshal(checklist, &a.Checklist); err != nil {
			return nil, fmt.Errorf("activity %s checklist: %w", a.ID, err)
		}
	}
	if len(a.DependsOn) == 0 {
		a.DependsOn = nil
	}
	return &a, nil
}

func encodeActivity(a domain.ActivityInstance) (config, checklist []byte, err error) {
	if a.Config == nil {
		return nil, nil, fmt.Errorf("activity %s has no config", a.ID)
	}
	if config, err = json.Marshal(a.Config); err != nil {
		return nil, nil, fmt.Errorf("encode activity config: %w", err)
	}
	entries := a.Checklist
	if entries == nil {
		entries = []domain.ChecklistEntry{}
	}
	if checklist, err = json.Marshal(entries); err != nil {
		return nil, nil, fmt.Errorf("encode checklist: %w", err)
	}
	return config, checklist, nil
}

func dependsOnParam(deps []string) []string {
	if deps == nil {
		return []string{}
	}
	return deps
}
