package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/events"
	"github.com/spec-kit/onboarding-service/internal/repository"
	"github.com/spec-kit/onboarding-service/internal/workflow"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

type eventLog struct {
	mu    sync.Mutex
	items []events.Event
}

func (l *eventLog) handle(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, e)
	return nil
}

func (l *eventLog) count(t events.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.items {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
}

type fixture struct {
	store      *repository.MemoryStore
	workflow   *WorkflowService
	assignment *AssignmentService
	escalation *EscalationService
	staff      *StaffService
	events     *eventLog
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry, err := workflow.NewRegistry(workflow.DefaultTemplates()...)
	require.NoError(t, err)

	f := &fixture{
		store:  repository.NewMemoryStore(),
		events: &eventLog{},
		now:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	dispatcher := events.NewInMemoryDispatcher()
	events.SubscribeAll(dispatcher, events.AllEventTypes, f.events.handle)

	f.assignment = NewAssignmentService(AssignmentDependencies{
		ActivityRepo: f.store.Activities(),
		TeamRepo:     f.store.Teams(),
		Dispatcher:   dispatcher,
		Clock:        clock,
	})
	f.workflow = NewWorkflowService(WorkflowDependencies{
		Registry:     registry,
		CaseRepo:     f.store.Cases(),
		ActivityRepo: f.store.Activities(),
		TeamRepo:     f.store.Teams(),
		HistoryRepo:  f.store.History(),
		Assignment:   f.assignment,
		Dispatcher:   dispatcher,
		Clock:        clock,
	})
	f.escalation = NewEscalationService(EscalationDependencies{
		CaseRepo:    f.store.Cases(),
		HistoryRepo: f.store.History(),
		Dispatcher:  dispatcher,
		PageSize:    2,
	})
	f.staff = NewStaffService(OrgDependencies{TeamRepo: f.store.Teams(), StaffRepo: f.store.Staff()})
	return f
}

func (f *fixture) team(t *testing.T, managerID *string, members map[string]string) string {
	t.Helper()
	ctx := context.Background()
	team := &domain.Team{Name: "Retail onboarding", ManagerID: managerID, IsActive: true}
	require.NoError(t, f.store.Teams().Create(ctx, team))
	for id, role := range members {
		require.NoError(t, f.store.Staff().Create(ctx, &domain.StaffMember{ID: id, Role: domain.StaffRole(role), Active: true}))
		require.NoError(t, f.store.Teams().AddMember(ctx, team.ID, id, role))
	}
	return team.ID
}

func byKey(t *testing.T, activities []domain.ActivityInstance, key string) domain.ActivityInstance {
	t.Helper()
	for _, a := range activities {
		if a.Key == key {
			return a
		}
	}
	t.Fatalf("activity %q not found", key)
	return domain.ActivityInstance{}
}

func (f *fixture) activity(t *testing.T, caseID, key string) domain.ActivityInstance {
	t.Helper()
	list, err := f.store.Activities().ListByCase(context.Background(), caseID)
	require.NoError(t, err)
	return byKey(t, list, key)
}

func strPtr(s string) *string { return &s }

func TestBestAssignee(t *testing.T) {
	tests := []struct {
		name    string
		members []domain.TeamMember
		want    string
		ok      bool
	}{
		{name: "empty", ok: false},
		{
			name: "lowest workload wins",
			members: []domain.TeamMember{
				{UserID: "u1", OpenCaseCount: 2, OpenActivityCount: 1},
				{UserID: "u2", OpenCaseCount: 1},
			},
			want: "u2", ok: true,
		},
		{
			name: "tie broken by user id",
			members: []domain.TeamMember{
				{UserID: "u9", OpenCaseCount: 1},
				{UserID: "u3", OpenActivityCount: 1},
			},
			want: "u3", ok: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := BestAssignee(tc.members)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFindBestAssignee_PrefersLighterWorkload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teamID := f.team(t, nil, map[string]string{"u1": "operator", "u2": "operator"})

	for id, owner := range map[string]string{"c1": "u1", "c2": "u1", "c3": "u1", "c4": "u2"} {
		require.NoError(t, f.store.Cases().Create(ctx, &domain.Case{
			ID:         id,
			Status:     domain.CaseStatusInProgress,
			AssignedTo: strPtr(owner),
			DueDate:    f.now.Add(time.Hour),
		}))
	}

	got, err := f.assignment.FindBestAssignee(ctx, teamID)
	require.NoError(t, err)
	assert.Equal(t, "u2", got)
}

func TestFindBestAssignee_EmptyTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teamID := f.team(t, nil, nil)

	_, err := f.assignment.FindBestAssignee(ctx, teamID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoAvailableAgents))

	_, err = f.assignment.FindBestAssignee(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAutoAssign_NoAgentsIsAnOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teamID := f.team(t, nil, nil)
	require.NoError(t, f.store.Cases().Create(ctx, &domain.Case{ID: "c1", Status: domain.CaseStatusPending, DueDate: f.now}))

	outcome, err := f.assignment.AutoAssign(ctx, "c1", teamID)
	require.NoError(t, err)
	assert.Equal(t, AssignmentNoAgents, outcome.Outcome)
	assert.False(t, outcome.Assigned())

	c, err := f.store.Cases().GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, c.AssignedTo)
	assert.Equal(t, domain.CaseStatusPending, c.Status)
	assert.Zero(t, f.events.count(events.EventCaseAssigned))
}

func TestAutoAssign_SetsOwnerAndActiveStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teamID := f.team(t, nil, map[string]string{"u1": "operator"})
	require.NoError(t, f.store.Cases().Create(ctx, &domain.Case{ID: "onb", Kind: domain.CaseKindOnboarding, Status: domain.CaseStatusPending, DueDate: f.now}))
	require.NoError(t, f.store.Cases().Create(ctx, &domain.Case{ID: "svc", Kind: domain.CaseKindService, Status: domain.CaseStatusPending, DueDate: f.now}))

	outcome, err := f.assignment.AutoAssign(ctx, "onb", teamID)
	require.NoError(t, err)
	assert.True(t, outcome.Assigned())
	assert.Equal(t, "u1", *outcome.AssigneeID)
	assert.Equal(t, domain.CaseStatusInProgress, outcome.Status)

	outcome, err = f.assignment.AutoAssign(ctx, "svc", teamID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusOpen, outcome.Status)

	c, err := f.store.Cases().GetByID(ctx, "onb")
	require.NoError(t, err)
	assert.Equal(t, "u1", *c.AssignedTo)
	assert.Equal(t, teamID, *c.TeamID)

	history, err := f.store.History().ListByCase(ctx, "onb")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.ChangeTypeAssignee, history[0].ChangeType)
	assert.Equal(t, domain.ChangeTypeStatus, history[1].ChangeType)
	assert.Equal(t, 2, f.events.count(events.EventCaseAssigned))
}

func TestStartCase_InstantiatesTemplateAndAssigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teamID := f.team(t, nil, map[string]string{"op": "operator", "mgr": "manager"})

	details, err := f.workflow.StartCase(ctx, "op", StartCaseInput{
		ContactID: "contact-1",
		CaseType:  workflow.TypeAccountOpening,
		Priority:  domain.CasePriorityHigh,
		TeamID:    &teamID,
	})
	require.NoError(t, err)

	c := details.Case
	assert.Equal(t, workflow.TypeAccountOpening, c.Type)
	assert.Equal(t, domain.CaseKindOnboarding, c.Kind)
	assert.Equal(t, 24, c.SLAHours)
	assert.Equal(t, f.now.Add(24*time.Hour), c.DueDate)
	assert.Equal(t, "Collect identity documents", c.CurrentStep)

	require.Len(t, details.Activities, 6)
	assert.Equal(t, domain.ActivityStatusTodo, byKey(t, details.Activities, "collect_documents").Status)
	assert.Equal(t, domain.ActivityStatusBlocked, byKey(t, details.Activities, "final_approval").Status)
	assert.Equal(t, "op", *byKey(t, details.Activities, "collect_documents").AssigneeID)
	assert.Equal(t, "mgr", *byKey(t, details.Activities, "final_approval").AssigneeID)
	assert.ElementsMatch(t, []string{"kyc_check", "aml_screening"}, details.Unassigned)
	for _, a := range details.Activities {
		require.NotNil(t, a.TeamID)
		assert.Equal(t, teamID, *a.TeamID)
	}

	// op holds three open activities and mgr one, so mgr owns the case.
	require.NotNil(t, details.Assignment)
	assert.True(t, details.Assignment.Assigned())
	assert.Equal(t, "mgr", *c.AssignedTo)
	assert.Equal(t, domain.CaseStatusInProgress, c.Status)

	assert.Equal(t, 1, f.events.count(events.EventCaseCreated))
	assert.Equal(t, 1, f.events.count(events.EventCaseAssigned))
}

func TestStartCase_TemplateSLAWhenPriorityMissing(t *testing.T) {
	f := newFixture(t)
	details, err := f.workflow.StartCase(context.Background(), "", StartCaseInput{CaseType: workflow.TypeAccountOpening})
	require.NoError(t, err)

	assert.Equal(t, domain.CasePriorityMedium, details.Case.Priority)
	assert.Equal(t, 5*24, details.Case.SLAHours)
	assert.Equal(t, f.now.Add(5*24*time.Hour), details.Case.DueDate)
	assert.Equal(t, domain.CaseStatusPending, details.Case.Status)
	assert.Nil(t, details.Assignment)
}

func TestStartCase_SignalsRootAutoActions(t *testing.T) {
	f := newFixture(t)
	details, err := f.workflow.StartCase(context.Background(), "", StartCaseInput{CaseType: workflow.TypeCreditApplication})
	require.NoError(t, err)

	assert.Equal(t, domain.ActivityStatusTodo, byKey(t, details.Activities, "credit_check").Status)
	assert.Equal(t, 1, f.events.count(events.EventActivityReady))
}

func TestStartCase_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: "mortgage"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTemplateNotFound))

	_, err = f.workflow.StartCase(ctx, "", StartCaseInput{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: workflow.TypeKYCRefresh, Priority: "urgent"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: workflow.TypeKYCRefresh, TeamID: strPtr("ghost")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestCompleteActivity_DocumentReviewWaitsForRequiredItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	details, err := f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: workflow.TypeAccountOpening, Priority: domain.CasePriorityMedium})
	require.NoError(t, err)
	caseID := details.Case.ID
	docs := byKey(t, details.Activities, "collect_documents")

	res, err := f.workflow.CompleteActivity(ctx, "op", caseID, docs.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Identity document", "Tax code"}, res.MissingItems)
	assert.Equal(t, domain.CaseStatusWaitingDocs, res.Case.Status)
	assert.Equal(t, domain.ActivityStatusTodo, f.activity(t, caseID, "collect_documents").Status)

	for _, item := range []string{"Identity document", "Tax code"} {
		_, err := f.workflow.ToggleChecklistItem(ctx, "op", caseID, docs.ID, item, true)
		require.NoError(t, err)
	}
	checked := f.activity(t, caseID, "collect_documents")
	require.NotNil(t, checked.Checklist[0].CheckedBy)
	assert.Equal(t, "op", *checked.Checklist[0].CheckedBy)

	res, err = f.workflow.CompleteActivity(ctx, "op", caseID, docs.ID, strPtr("all received"))
	require.NoError(t, err)
	assert.Empty(t, res.MissingItems)
	assert.Equal(t, domain.ActivityStatusCompleted, res.Activity.Status)
	assert.Equal(t, domain.CaseStatusInProgress, res.Case.Status)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, "verify_identity", res.Unlocked[0].Key)
	assert.Equal(t, "Verify customer identity", res.Case.CurrentStep)
}

func TestWorkflow_RunsToApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	details, err := f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: workflow.TypeAccountOpening, Priority: domain.CasePriorityLow})
	require.NoError(t, err)
	caseID := details.Case.ID
	id := func(key string) string { return byKey(t, details.Activities, key).ID }

	for _, item := range []string{"Identity document", "Tax code"} {
		_, err := f.workflow.ToggleChecklistItem(ctx, "op", caseID, id("collect_documents"), item, true)
		require.NoError(t, err)
	}
	_, err = f.workflow.CompleteActivity(ctx, "op", caseID, id("collect_documents"), nil)
	require.NoError(t, err)

	started, err := f.workflow.StartActivity(ctx, "op", caseID, id("verify_identity"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityStatusInProgress, started.Activity.Status)

	f.events.reset()
	res, err := f.workflow.CompleteActivity(ctx, "op", caseID, id("verify_identity"), nil)
	require.NoError(t, err)
	assert.Len(t, res.Unlocked, 2)
	assert.Len(t, res.ReadyForAutoExecution, 2)
	assert.Equal(t, 2, f.events.count(events.EventActivityUnlocked))
	assert.Equal(t, 2, f.events.count(events.EventActivityReady))

	res, err = f.workflow.CompleteActivity(ctx, "", caseID, id("kyc_check"), strPtr("auto:clear"))
	require.NoError(t, err)
	assert.Empty(t, res.Unlocked, "join waits for aml_screening")

	_, err = f.workflow.DecideCase(ctx, "mgr", caseID, DecisionApprove, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	res, err = f.workflow.CompleteActivity(ctx, "", caseID, id("aml_screening"), strPtr("auto:clear"))
	require.NoError(t, err)
	assert.Len(t, res.Unlocked, 2)

	_, err = f.workflow.SkipActivity(ctx, "op", caseID, id("welcome_call"), "customer unreachable")
	require.NoError(t, err)
	res, err = f.workflow.CompleteActivity(ctx, "mgr", caseID, id("final_approval"), nil)
	require.NoError(t, err)
	assert.True(t, res.AllTerminal)
	assert.Equal(t, domain.CaseStatusReview, res.Case.Status)

	decided, err := f.workflow.DecideCase(ctx, "mgr", caseID, DecisionApprove, "all checks clear")
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusApproved, decided.Status)
	require.NotNil(t, decided.ClosedAt)

	_, err = f.workflow.DecideCase(ctx, "mgr", caseID, DecisionReject, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = f.workflow.CompleteActivity(ctx, "mgr", caseID, id("final_approval"), nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "closed cases refuse activity changes")

	history, err := f.workflow.History(ctx, caseID)
	require.NoError(t, err)
	assert.NotEmpty(t, history)
	assert.Equal(t, 1, f.events.count(events.EventCaseDecided))
}

func TestCompleteActivity_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	details, err := f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: workflow.TypeKYCRefresh})
	require.NoError(t, err)
	first := byKey(t, details.Activities, "request_update")

	_, err = f.workflow.CompleteActivity(ctx, "op", details.Case.ID, first.ID, nil)
	require.NoError(t, err)
	before, err := f.store.Activities().ListByCase(ctx, details.Case.ID)
	require.NoError(t, err)
	f.events.reset()

	res, err := f.workflow.CompleteActivity(ctx, "op", details.Case.ID, first.ID, nil)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	after, err := f.store.Activities().ListByCase(ctx, details.Case.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.events.items)
}

func TestCompleteActivity_RejectsForeignActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: workflow.TypeKYCRefresh})
	require.NoError(t, err)
	b, err := f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: workflow.TypeKYCRefresh})
	require.NoError(t, err)

	_, err = f.workflow.CompleteActivity(ctx, "op", a.Case.ID, b.Activities[0].ID, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidActivity))

	_, err = f.workflow.CompleteActivity(ctx, "op", "missing", b.Activities[0].ID, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestCompleteActivity_BlockedDocumentReviewLeavesCaseAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	details, err := f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: workflow.TypeBusinessOnboarding})
	require.NoError(t, err)
	caseID := details.Case.ID
	owners := byKey(t, details.Activities, "beneficial_owners")
	require.Equal(t, domain.ActivityStatusBlocked, owners.Status)
	f.events.reset()

	res, err := f.workflow.CompleteActivity(ctx, "op", caseID, owners.ID, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidActivity))
	assert.Nil(t, res)

	stored, err := f.store.Cases().GetByID(ctx, caseID)
	require.NoError(t, err)
	assert.Equal(t, details.Case.Status, stored.Status)
	assert.Equal(t, domain.ActivityStatusBlocked, f.activity(t, caseID, "beneficial_owners").Status)
	history, err := f.workflow.History(ctx, caseID)
	require.NoError(t, err)
	for _, h := range history {
		assert.NotEqual(t, domain.CaseStatusWaitingDocs, h.NewValue["status"])
	}
	assert.Empty(t, f.events.items)
}

func TestCompleteActivity_ConcurrentSiblingsUnlockJoin(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		ctx := context.Background()
		details, err := f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: workflow.TypeAccountOpening})
		require.NoError(t, err)
		caseID := details.Case.ID
		id := func(key string) string { return byKey(t, details.Activities, key).ID }

		for _, item := range []string{"Identity document", "Tax code"} {
			_, err := f.workflow.ToggleChecklistItem(ctx, "op", caseID, id("collect_documents"), item, true)
			require.NoError(t, err)
		}
		_, err = f.workflow.CompleteActivity(ctx, "op", caseID, id("collect_documents"), nil)
		require.NoError(t, err)
		_, err = f.workflow.CompleteActivity(ctx, "op", caseID, id("verify_identity"), nil)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, key := range []string{"kyc_check", "aml_screening"} {
			wg.Add(1)
			go func(i int, activityID string) {
				defer wg.Done()
				_, errs[i] = f.workflow.CompleteActivity(ctx, "", caseID, activityID, strPtr("auto:clear"))
			}(i, id(key))
		}
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		assert.Equal(t, domain.ActivityStatusCompleted, f.activity(t, caseID, "kyc_check").Status)
		assert.Equal(t, domain.ActivityStatusCompleted, f.activity(t, caseID, "aml_screening").Status)
		assert.Equal(t, domain.ActivityStatusTodo, f.activity(t, caseID, "final_approval").Status, "round %d", round)
	}
}

func TestDecideCase_RejectAllowedOnOpenCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	details, err := f.workflow.StartCase(ctx, "", StartCaseInput{CaseType: workflow.TypeBusinessOnboarding})
	require.NoError(t, err)

	_, err = f.workflow.DecideCase(ctx, "mgr", details.Case.ID, "maybe", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	decided, err := f.workflow.DecideCase(ctx, "mgr", details.Case.ID, DecisionReject, "sanctions hit")
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusRejected, decided.Status)
}

func TestEscalate_CapsBumpsAndReportsUnowned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	managed := f.team(t, strPtr("boss"), nil)

	seed := []struct {
		id       string
		priority domain.CasePriority
		team     *string
		late     time.Duration
	}{
		{"a", domain.CasePriorityLow, &managed, 3 * time.Hour},
		{"b", domain.CasePriorityCritical, nil, 2 * time.Hour},
		{"c", domain.CasePriorityMedium, nil, time.Hour},
	}
	for _, s := range seed {
		require.NoError(t, f.store.Cases().Create(ctx, &domain.Case{
			ID: s.id, Status: domain.CaseStatusInProgress, Priority: s.priority, TeamID: s.team,
			DueDate: f.now.Add(-s.late),
		}))
	}
	breached, err := f.store.Cases().MarkBreached(ctx, f.now)
	require.NoError(t, err)

	res, err := f.escalation.Escalate(ctx, breached, f.now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"a", "b"}, res.EscalatedIDs)
	assert.Equal(t, []string{"b"}, res.Unowned)

	a, err := f.store.Cases().GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.CasePriorityHigh, a.Priority)
	assert.Equal(t, "boss", *a.AssignedTo)
	b, err := f.store.Cases().GetByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.CasePriorityCritical, b.Priority, "escalation never lowers priority")

	assert.Equal(t, 2, f.events.count(events.EventCaseEscalated))
	assert.Equal(t, 1, f.events.count(events.EventEscalationUnowned))

	history, err := f.store.History().ListByCase(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, history, 3)

	res, err = f.escalation.Escalate(ctx, breached, f.now)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.EscalatedIDs)

	res, err = f.escalation.Escalate(ctx, nil, f.now)
	require.NoError(t, err)
	assert.Zero(t, res.Count)
}

func TestAnnounceSweep_PublishesSLAEvents(t *testing.T) {
	f := newFixture(t)
	f.escalation.AnnounceSweep(context.Background(), []string{"a", "b"}, []string{"c"}, f.now)

	assert.Equal(t, 2, f.events.count(events.EventSLABreached))
	assert.Equal(t, 1, f.events.count(events.EventSLAWarning))
}

func TestStaffService_TeamAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := &domain.StaffMember{ID: "admin", Role: domain.StaffRoleAdmin, Active: true}
	operator := &domain.StaffMember{ID: "op", Role: domain.StaffRoleOperator, Active: true}

	_, err := f.staff.CreateTeam(ctx, operator, "KYC", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	team, err := f.staff.CreateTeam(ctx, admin, "KYC", nil)
	require.NoError(t, err)

	member, err := f.staff.CreateStaffMember(ctx, admin, "Ada", "ada@example.com", domain.StaffRoleCompliance, &team.ID)
	require.NoError(t, err)
	require.NoError(t, f.staff.AddTeamMember(ctx, admin, team.ID, member.ID, "compliance"))

	members, err := f.staff.ListTeamMembers(ctx, operator, team.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "compliance", members[0].RoleName)

	updated, err := f.staff.SetTeamManager(ctx, admin, team.ID, &member.ID)
	require.NoError(t, err)
	assert.Equal(t, member.ID, *updated.ManagerID)

	_, err = f.staff.CreateStaffMember(ctx, admin, "Bob", "bob@example.com", "intern", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}
