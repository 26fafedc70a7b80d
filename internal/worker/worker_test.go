package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/events"
	"github.com/spec-kit/onboarding-service/internal/observability"
	"github.com/spec-kit/onboarding-service/internal/repository"
	"github.com/spec-kit/onboarding-service/internal/service"
	"github.com/spec-kit/onboarding-service/internal/workflow"
)

type recordingCompleter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingCompleter) CompleteActivity(_ context.Context, _, _, activityID string, outcome *string) (*service.ActivityResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, activityID+"="+*outcome)
	return &service.ActivityResult{}, r.err
}

func TestProcess_Outcomes(t *testing.T) {
	completer := &recordingCompleter{}
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	w := NewActionWorker(ActionWorkerDependencies{
		Completer: completer,
		Metrics:   metrics,
		Executors: map[string]Executor{
			"kyc_check": StubExecutor{Result: "clear"},
			"aml_screening": ExecutorFunc(func(context.Context, string, string) (ActionResult, error) {
				return ActionResult{}, errors.New("provider timeout")
			}),
			"credit_check": ExecutorFunc(func(context.Context, string, string) (ActionResult, error) {
				return ActionResult{Success: false, Result: "declined"}, nil
			}),
			"pep_check": ExecutorFunc(func(context.Context, string, string) (ActionResult, error) {
				panic("boom")
			}),
		},
	})
	ctx := context.Background()

	assert.Equal(t, ResultCompleted, w.Process(ctx, Job{CaseID: "c", ActivityID: "a1", ActionType: "kyc_check"}))
	assert.Equal(t, ResultFailed, w.Process(ctx, Job{CaseID: "c", ActivityID: "a2", ActionType: "aml_screening"}))
	assert.Equal(t, ResultFailed, w.Process(ctx, Job{CaseID: "c", ActivityID: "a3", ActionType: "credit_check"}))
	assert.Equal(t, ResultFailed, w.Process(ctx, Job{CaseID: "c", ActivityID: "a4", ActionType: "pep_check"}))
	assert.Equal(t, ResultUnhandled, w.Process(ctx, Job{CaseID: "c", ActivityID: "a5", ActionType: "affordability_score"}))

	assert.Equal(t, []string{"a1=auto:clear"}, completer.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AutoExecutionsTotal.WithLabelValues("kyc_check", ResultCompleted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AutoExecutionsTotal.WithLabelValues("pep_check", ResultFailed)))

	completer.err = errors.New("case is closed")
	assert.Equal(t, ResultCompleteFailed, w.Process(ctx, Job{CaseID: "c", ActivityID: "a6", ActionType: "kyc_check"}))
}

func TestEnqueue_DropsWhenFull(t *testing.T) {
	w := NewActionWorker(ActionWorkerDependencies{Completer: &recordingCompleter{}, QueueSize: 1})

	assert.True(t, w.Enqueue(Job{ActivityID: "a1"}))
	assert.False(t, w.Enqueue(Job{ActivityID: "a2"}))
}

func TestHandleReady_RejectsForeignPayload(t *testing.T) {
	w := NewActionWorker(ActionWorkerDependencies{Completer: &recordingCompleter{}})
	err := w.handleReady(context.Background(), events.Event{Type: events.EventActivityReady, Payload: "nope"})
	assert.Error(t, err)
}

func TestActionWorker_CompletesSignalledChecks(t *testing.T) {
	store := repository.NewMemoryStore()
	registry, err := workflow.NewRegistry(workflow.DefaultTemplates()...)
	require.NoError(t, err)
	dispatcher := events.NewInMemoryDispatcher()
	svc := service.NewWorkflowService(service.WorkflowDependencies{
		Registry:     registry,
		CaseRepo:     store.Cases(),
		ActivityRepo: store.Activities(),
		TeamRepo:     store.Teams(),
		HistoryRepo:  store.History(),
		Dispatcher:   dispatcher,
	})
	w := NewActionWorker(ActionWorkerDependencies{Completer: svc, Executors: DefaultExecutors(), Concurrency: 2})
	w.Attach(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	defer func() {
		cancel()
		w.Wait()
	}()

	details, err := svc.StartCase(ctx, "", service.StartCaseInput{CaseType: workflow.TypeAccountOpening})
	require.NoError(t, err)
	caseID := details.Case.ID
	idOf := func(key string) string {
		for _, a := range details.Activities {
			if a.Key == key {
				return a.ID
			}
		}
		t.Fatalf("missing activity %s", key)
		return ""
	}

	for _, item := range []string{"Identity document", "Tax code"} {
		_, err := svc.ToggleChecklistItem(ctx, "op", caseID, idOf("collect_documents"), item, true)
		require.NoError(t, err)
	}
	_, err = svc.CompleteActivity(ctx, "op", caseID, idOf("collect_documents"), nil)
	require.NoError(t, err)
	_, err = svc.CompleteActivity(ctx, "op", caseID, idOf("verify_identity"), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		acts, err := store.Activities().ListByCase(ctx, caseID)
		if err != nil {
			return false
		}
		for _, a := range acts {
			if a.Key == "final_approval" {
				return a.Status == domain.ActivityStatusTodo
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	kyc, err := store.Activities().GetByID(ctx, idOf("kyc_check"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityStatusCompleted, kyc.Status)
	require.NotNil(t, kyc.Outcome)
	assert.Equal(t, "auto:clear", *kyc.Outcome)
}

func TestStartNotificationWorker_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() { StartNotificationWorker(nil, nil, nil) })
}
