package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/onboarding-service/internal/domain"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// MemoryStore is an in-memory implementation of every repository in this
// package. It backs tests and the CLI dry-run mode. Missing rows are reported
// with pgx.ErrNoRows so callers see the same errors as with Postgres.
type MemoryStore struct {
	mu         sync.RWMutex
	cases      map[string]domain.Case
	activities map[string]domain.ActivityInstance
	byCase     map[string][]string
	teams      map[string]domain.Team
	members    map[string][]memberRecord
	staff      map[string]domain.StaffMember
	history    map[string][]domain.CaseHistory

	locksMu   sync.Mutex
	caseLocks map[string]*sync.Mutex
}

type memberRecord struct {
	staffID  string
	roleName string
	active   bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:      make(map[string]domain.Case),
		activities: make(map[string]domain.ActivityInstance),
		byCase:     make(map[string][]string),
		teams:      make(map[string]domain.Team),
		members:    make(map[string][]memberRecord),
		staff:      make(map[string]domain.StaffMember),
		history:    make(map[string][]domain.CaseHistory),
		caseLocks:  make(map[string]*sync.Mutex),
	}
}

// Cases returns the case repository view.
func (s *MemoryStore) Cases() CaseRepository { return (*memCases)(s) }

// Activities returns the activity repository view.
func (s *MemoryStore) Activities() ActivityRepository { return (*memActivities)(s) }

// Teams returns the team repository view.
func (s *MemoryStore) Teams() TeamRepository { return (*memTeams)(s) }

// Staff returns the staff repository view.
func (s *MemoryStore) Staff() StaffRepository { return (*memStaff)(s) }

// History returns the case history repository view.
func (s *MemoryStore) History() CaseHistoryRepository { return (*memHistory)(s) }

func (s *MemoryStore) lockCase(id string) func() {
	s.locksMu.Lock()
	l, ok := s.caseLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.caseLocks[id] = l
	}
	s.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *MemoryStore) appendHistory(entries []domain.CaseHistory) {
	for _, h := range entries {
		if h.ID == "" {
			h.ID = uuid.NewString()
		}
		s.history[h.CaseID] = append(s.history[h.CaseID], h)
	}
}

func sortByDue(cases []domain.Case) {
	sort.SliceStable(cases, func(i, j int) bool {
		if cases[i].DueDate.Equal(cases[j].DueDate) {
			return cases[i].ID < cases[j].ID
		}
		return cases[i].DueDate.Before(cases[j].DueDate)
	})
}

func staleVersion(id string, want, got int) error {
	return apperrors.NewStorageConflict("case", fmt.Errorf("case %s version %d is stale (stored %d)", id, want, got))
}

type memCases MemoryStore

func (m *memCases) Create(_ context.Context, c *domain.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cases[c.ID]; exists {
		return apperrors.NewConflict("case already exists", map[string]any{"case_id": c.ID})
	}
	if c.Version == 0 {
		c.Version = 1
	}
	m.cases[c.ID] = *c
	return nil
}

func (m *memCases) Update(_ context.Context, c *domain.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.cases[c.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if existing.Version != c.Version {
		return staleVersion(c.ID, c.Version, existing.Version)
	}
	c.Version++
	c.SLABreached = existing.SLABreached
	m.cases[c.ID] = *c
	return nil
}

func (m *memCases) GetByID(_ context.Context, id string) (*domain.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func (m *memCases) List(_ context.Context, filter CaseFilter) ([]domain.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Case
	for _, c := range m.cases {
		if !matchCase(c, filter) {
			continue
		}
		out = append(out, c)
	}
	sortByDue(out)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchCase(c domain.Case, f CaseFilter) bool {
	if f.TeamID != nil && (c.TeamID == nil || *c.TeamID != *f.TeamID) {
		return false
	}
	if f.AssignedTo != nil && (c.AssignedTo == nil || *c.AssignedTo != *f.AssignedTo) {
		return false
	}
	if f.Breached != nil && c.SLABreached != *f.Breached {
		return false
	}
	if f.OpenOnly && !c.Status.IsOpen() {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
		return false
	}
	if len(f.Priorities) > 0 {
		found := false
		for _, p := range f.Priorities {
			if p == c.Priority {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.CaseStatus, s domain.CaseStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memCases) MarkBreached(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hit []domain.Case
	for id, c := range m.cases {
		if !c.Status.IsOpen() || c.SLABreached || !c.DueDate.Before(now) {
			continue
		}
		c.SLABreached = true
		c.UpdatedAt = now
		m.cases[id] = c
		hit = append(hit, c)
	}
	sortByDue(hit)
	return caseIDs(hit), nil
}

func (m *memCases) ListAtRisk(_ context.Context, now time.Time, window time.Duration) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := now.Add(window)
	var hit []domain.Case
	for _, c := range m.cases {
		if c.Status.IsOpen() && !c.SLABreached && c.DueDate.Before(limit) {
			hit = append(hit, c)
		}
	}
	sortByDue(hit)
	return caseIDs(hit), nil
}

func (m *memCases) ListPendingEscalation(_ context.Context, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hit []domain.Case
	for _, c := range m.cases {
		if pendingEscalation(c) {
			hit = append(hit, c)
		}
	}
	sortByDue(hit)
	if limit > 0 && len(hit) > limit {
		hit = hit[:limit]
	}
	return caseIDs(hit), nil
}

func pendingEscalation(c domain.Case) bool {
	return c.SLABreached && c.Status.IsOpen() && c.Status != domain.CaseStatusEscalated
}

func (m *memCases) Escalate(_ context.Context, ids []string, limit int, now time.Time) ([]EscalatedCase, error) {
	if len(ids) == 0 || limit <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var targets []domain.Case
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		c, ok := m.cases[id]
		if !ok || seen[id] || !pendingEscalation(c) {
			continue
		}
		seen[id] = true
		targets = append(targets, c)
	}
	sortByDue(targets)
	if len(targets) > limit {
		targets = targets[:limit]
	}

	out := make([]EscalatedCase, 0, len(targets))
	for _, c := range targets {
		e := EscalatedCase{
			ID:               c.ID,
			TeamID:           c.TeamID,
			PreviousStatus:   c.Status,
			PreviousPriority: c.Priority,
			PreviousAssignee: c.AssignedTo,
		}
		c.Status = domain.CaseStatusEscalated
		if c.Priority != domain.CasePriorityCritical {
			c.Priority = domain.CasePriorityHigh
		}
		if c.TeamID != nil {
			if team, ok := m.teams[*c.TeamID]; ok && team.ManagerID != nil {
				manager := *team.ManagerID
				c.AssignedTo = &manager
				e.ManagerAssigned = true
			}
		}
		c.Version++
		c.UpdatedAt = now
		m.cases[c.ID] = c

		e.Priority = c.Priority
		e.AssignedTo = c.AssignedTo
		e.Version = c.Version
		out = append(out, e)
	}
	return out, nil
}

func (m *memCases) Counts(_ context.Context, now time.Time, window time.Duration) (CaseCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := now.Add(window)
	var counts CaseCounts
	for _, c := range m.cases {
		if !c.Status.IsOpen() {
			continue
		}
		counts.Open++
		switch {
		case c.SLABreached:
			counts.Breached++
		case c.DueDate.Before(limit):
			counts.AtRisk++
		}
	}
	return counts, nil
}

func caseIDs(cases []domain.Case) []string {
	if len(cases) == 0 {
		return nil
	}
	ids := make([]string, len(cases))
	for i, c := range cases {
		ids[i] = c.ID
	}
	return ids
}

type memActivities MemoryStore

func (m *memActivities) CreateWithCase(_ context.Context, c *domain.Case, activities []domain.ActivityInstance, history []domain.CaseHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cases[c.ID]; exists {
		return apperrors.NewConflict("case already exists", map[string]any{"case_id": c.ID})
	}
	if c.Version == 0 {
		c.Version = 1
	}
	m.cases[c.ID] = *c

	ids := make([]string, 0, len(activities))
	for _, a := range activities {
		m.activities[a.ID] = a.Clone()
		ids = append(ids, a.ID)
	}
	m.byCase[c.ID] = ids
	(*MemoryStore)(m).appendHistory(history)
	return nil
}

func (m *memActivities) GetByID(_ context.Context, id string) (*domain.ActivityInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.activities[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := a.Clone()
	return &clone, nil
}

func (m *memActivities) ListByCase(_ context.Context, caseID string) ([]domain.ActivityInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(caseID), nil
}

func (m *memActivities) listLocked(caseID string) []domain.ActivityInstance {
	ids := m.byCase[caseID]
	out := make([]domain.ActivityInstance, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.activities[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SequenceOrder < out[j].SequenceOrder })
	return out
}

func (m *memActivities) MutateCase(_ context.Context, caseID string, fn CaseMutation) error {
	unlock := (*MemoryStore)(m).lockCase(caseID)
	defer unlock()

	m.mu.RLock()
	c, ok := m.cases[caseID]
	activities := m.listLocked(caseID)
	m.mu.RUnlock()
	if !ok {
		return pgx.ErrNoRows
	}

	change, err := fn(c, activities)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range change.Activities {
		if existing, ok := m.activities[a.ID]; !ok || existing.CaseID != caseID {
			return pgx.ErrNoRows
		}
	}
	if change.Case != nil {
		stored := m.cases[caseID]
		if stored.Version != change.Case.Version {
			return staleVersion(caseID, change.Case.Version, stored.Version)
		}
		change.Case.Version++
		change.Case.SLABreached = stored.SLABreached
		m.cases[caseID] = *change.Case
	}
	for _, a := range change.Activities {
		m.activities[a.ID] = a.Clone()
	}
	(*MemoryStore)(m).appendHistory(change.History)
	return nil
}

type memTeams MemoryStore

func (m *memTeams) Create(_ context.Context, team *domain.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	team.CreatedAt, team.UpdatedAt = now, now
	m.teams[team.ID] = *team
	return nil
}

func (m *memTeams) Update(_ context.Context, team *domain.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[team.ID]; !ok {
		return pgx.ErrNoRows
	}
	team.UpdatedAt = time.Now().UTC()
	m.teams[team.ID] = *team
	return nil
}

func (m *memTeams) GetByID(_ context.Context, id string) (*domain.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	team, ok := m.teams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &team, nil
}

func (m *memTeams) AddMember(_ context.Context, teamID, staffID, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[teamID]; !ok {
		return pgx.ErrNoRows
	}
	records := m.members[teamID]
	for i := range records {
		if records[i].staffID == staffID {
			records[i].roleName = roleName
			records[i].active = true
			return nil
		}
	}
	m.members[teamID] = append(records, memberRecord{staffID: staffID, roleName: roleName, active: true})
	return nil
}

func (m *memTeams) ListActiveMembers(_ context.Context, teamID string) ([]domain.TeamMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.TeamMember
	for _, rec := range m.members[teamID] {
		if !rec.active {
			continue
		}
		if staff, ok := m.staff[rec.staffID]; ok && !staff.Active {
			continue
		}
		member := domain.TeamMember{UserID: rec.staffID, RoleName: rec.roleName}
		for _, c := range m.cases {
			if c.AssignedTo != nil && *c.AssignedTo == rec.staffID && c.Status.IsOpen() {
				member.OpenCaseCount++
			}
		}
		for _, a := range m.activities {
			if a.AssigneeID != nil && *a.AssigneeID == rec.staffID && !a.Status.IsTerminal() {
				member.OpenActivityCount++
			}
		}
		out = append(out, member)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type memStaff MemoryStore

func (m *memStaff) Create(_ context.Context, staff *domain.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	staff.CreatedAt, staff.UpdatedAt = now, now
	m.staff[staff.ID] = *staff
	return nil
}

func (m *memStaff) Update(_ context.Context, staff *domain.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.staff[staff.ID]; !ok {
		return pgx.ErrNoRows
	}
	staff.UpdatedAt = time.Now().UTC()
	m.staff[staff.ID] = *staff
	return nil
}

func (m *memStaff) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	staff, ok := m.staff[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &staff, nil
}

func (m *memStaff) List(_ context.Context, filter StaffFilter) ([]domain.StaffMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.StaffMember
	for _, staff := range m.staff {
		if filter.Role != nil && staff.Role != *filter.Role {
			continue
		}
		if filter.TeamID != nil && (staff.TeamID == nil || *staff.TeamID != *filter.TeamID) {
			continue
		}
		if filter.Active != nil && staff.Active != *filter.Active {
			continue
		}
		out = append(out, staff)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memHistory MemoryStore

func (m *memHistory) Create(_ context.Context, history *domain.CaseHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	m.history[history.CaseID] = append(m.history[history.CaseID], *history)
	return nil
}

func (m *memHistory) ListByCase(_ context.Context, caseID string) ([]domain.CaseHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.CaseHistory(nil), m.history[caseID]...), nil
}
