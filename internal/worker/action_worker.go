package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/events"
	"github.com/spec-kit/onboarding-service/internal/observability"
	"github.com/spec-kit/onboarding-service/internal/service"
)

// Auto execution outcomes recorded per action type.
const (
	ResultCompleted      = "completed"
	ResultFailed         = "failed"
	ResultUnhandled      = "unhandled"
	ResultCompleteFailed = "complete_failed"
	ResultDropped        = "dropped"
)

const defaultQueueSize = 256

// ActionResult is what an executor reports for one system action.
type ActionResult struct {
	Success bool
	Result  string
}

// Executor runs one automated system action such as a KYC or AML check.
type Executor interface {
	Execute(ctx context.Context, activityID, actionType string) (ActionResult, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, activityID, actionType string) (ActionResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, activityID, actionType string) (ActionResult, error) {
	return f(ctx, activityID, actionType)
}

// ActivityCompleter completes activities on behalf of the system.
type ActivityCompleter interface {
	CompleteActivity(ctx context.Context, actorID, caseID, activityID string, outcome *string) (*service.ActivityResult, error)
}

// Job is one system action signalled ready.
type Job struct {
	CaseID     string
	ActivityID string
	ActionType string
}

// ActionWorkerDependencies bundles collaborators.
type ActionWorkerDependencies struct {
	Completer   ActivityCompleter
	Executors   map[string]Executor
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Concurrency int
	QueueSize   int
}

// ActionWorker drains activity_ready signals through a bounded queue. Each job
// runs in isolation: a failing or panicking executor leaves its activity in
// todo and never affects other jobs.
type ActionWorker struct {
	completer   ActivityCompleter
	executors   map[string]Executor
	metrics     *observability.Metrics
	logger      *zap.Logger
	concurrency int

	jobs chan Job
	wg   sync.WaitGroup
}

// NewActionWorker creates the worker.
func NewActionWorker(deps ActionWorkerDependencies) *ActionWorker {
	w := &ActionWorker{
		completer:   deps.Completer,
		executors:   make(map[string]Executor, len(deps.Executors)),
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		concurrency: deps.Concurrency,
	}
	for actionType, exec := range deps.Executors {
		w.executors[actionType] = exec
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	size := deps.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	w.jobs = make(chan Job, size)
	return w
}

// Attach subscribes the worker to activity_ready events.
func (w *ActionWorker) Attach(d events.Dispatcher) {
	d.Subscribe(events.EventActivityReady, w.handleReady)
}

func (w *ActionWorker) handleReady(_ context.Context, event events.Event) error {
	var payload events.ActivityReadyPayload
	switch p := event.Payload.(type) {
	case events.ActivityReadyPayload:
		payload = p
	case *events.ActivityReadyPayload:
		payload = *p
	default:
		return fmt.Errorf("unexpected activity_ready payload %T", event.Payload)
	}
	w.Enqueue(Job{CaseID: event.CaseID, ActivityID: payload.ActivityID, ActionType: payload.ActionType})
	return nil
}

// Enqueue queues a job without blocking. A full queue drops the job; the
// activity stays todo for manual completion.
func (w *ActionWorker) Enqueue(job Job) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		w.metrics.RecordAutoExecution(job.ActionType, ResultDropped)
		w.logger.Warn("action queue full; job dropped",
			zap.String("case_id", job.CaseID),
			zap.String("activity_id", job.ActivityID),
			zap.String("action_type", job.ActionType))
		return false
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled;
// Wait blocks until they have.
func (w *ActionWorker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-w.jobs:
					w.Process(ctx, job)
				}
			}
		}()
	}
	w.logger.Info("action worker started", zap.Int("concurrency", w.concurrency))
}

// Wait blocks until all worker goroutines have exited.
func (w *ActionWorker) Wait() {
	w.wg.Wait()
}

// Process runs one job to completion and returns its outcome.
func (w *ActionWorker) Process(ctx context.Context, job Job) string {
	ctx, span := observability.StartSpan(ctx, "worker.auto_execute",
		observability.AttrCaseID.String(job.CaseID), observability.AttrActivityID.String(job.ActivityID))
	result, err := w.process(ctx, job)
	observability.EndSpanWithError(span, err)
	w.metrics.RecordAutoExecution(job.ActionType, result)
	return result
}

func (w *ActionWorker) process(ctx context.Context, job Job) (string, error) {
	logger := w.logger.With(
		zap.String("case_id", job.CaseID),
		zap.String("activity_id", job.ActivityID),
		zap.String("action_type", job.ActionType))

	exec, ok := w.executors[job.ActionType]
	if !ok {
		logger.Warn("no executor registered for action")
		return ResultUnhandled, nil
	}

	res, err := safeExecute(ctx, exec, job)
	if err == nil && !res.Success {
		err = fmt.Errorf("action reported failure: %s", res.Result)
	}
	if err != nil {
		logger.Warn("auto execution failed", zap.Error(err))
		return ResultFailed, err
	}

	outcome := "auto:" + res.Result
	if _, err := w.completer.CompleteActivity(ctx, "", job.CaseID, job.ActivityID, &outcome); err != nil {
		logger.Error("complete auto executed activity failed", zap.Error(err))
		return ResultCompleteFailed, err
	}
	logger.Info("auto execution completed", zap.String("outcome", outcome))
	return ResultCompleted, nil
}

func safeExecute(ctx context.Context, exec Executor, job Job) (res ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return exec.Execute(ctx, job.ActivityID, job.ActionType)
}

// StubExecutor reports a fixed successful result for every call. It stands in
// for the screening providers in environments without them.
type StubExecutor struct {
	Result string
}

func (s StubExecutor) Execute(context.Context, string, string) (ActionResult, error) {
	return ActionResult{Success: true, Result: s.Result}, nil
}

// DefaultExecutors covers the system actions of the built-in templates.
func DefaultExecutors() map[string]Executor {
	return map[string]Executor{
		"kyc_check":     StubExecutor{Result: "clear"},
		"aml_screening": StubExecutor{Result: "no_match"},
		"credit_check":  StubExecutor{Result: "score_ok"},
	}
}
