package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/observability"
	"github.com/spec-kit/onboarding-service/internal/repository"
	"github.com/spec-kit/onboarding-service/internal/service"
	"github.com/spec-kit/onboarding-service/internal/sla"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 5 * time.Minute

// Sweep outcomes recorded on the sweep run counter.
const (
	resultOK      = "ok"
	resultRetried = "retried"
	resultFailed  = "failed"
)

// RunReport summarizes one sweep.
type RunReport struct {
	StartedAt  time.Time                `json:"started_at"`
	Duration   time.Duration            `json:"duration"`
	Attempts   int                      `json:"attempts"`
	Breached   []string                 `json:"breached_ids"`
	Warnings   []string                 `json:"warning_ids"`
	Escalation service.EscalationResult `json:"escalation"`
	Metrics    sla.Metrics              `json:"metrics"`
	Err        error                    `json:"-"`
}

// Dependencies bundles the collaborators of a Driver.
type Dependencies struct {
	Tracker    *sla.Tracker
	Escalation *service.EscalationService
	CaseRepo   repository.CaseRepository
	Locker     Locker
	Warnings   WarningFilter
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      service.Clock
	Interval   time.Duration
}

// Driver runs the SLA sweep on a fixed period. Runs never overlap: a tick that
// fires while a run is still active is skipped, not queued.
type Driver struct {
	tracker    *sla.Tracker
	escalation *service.EscalationService
	cases      repository.CaseRepository
	locker     Locker
	warnings   WarningFilter
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        service.Clock
	interval   time.Duration

	running atomic.Bool
}

// NewDriver builds a driver. A nil Locker falls back to LocalLocker and a nil
// WarningFilter announces every at-risk case on every tick.
func NewDriver(deps Dependencies) *Driver {
	d := &Driver{
		tracker:    deps.Tracker,
		escalation: deps.Escalation,
		cases:      deps.CaseRepo,
		locker:     deps.Locker,
		warnings:   deps.Warnings,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Clock,
		interval:   deps.Interval,
	}
	if d.locker == nil {
		d.locker = LocalLocker{}
	}
	if d.warnings == nil {
		d.warnings = passWarnings{}
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.now == nil {
		d.now = service.SystemClock
	}
	if d.interval <= 0 {
		d.interval = DefaultInterval
	}
	return d
}

// Run ticks until ctx is cancelled, then waits for the active run to finish.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("sla scheduler started", zap.Duration("interval", d.interval))
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("sla scheduler stopping")
			return
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.Tick(ctx)
			}()
		}
	}
}

// Tick performs one sweep. ran is false when the tick was skipped because a
// run is already active here or on another replica. Failures are logged and
// reported in RunReport.Err; the next tick re-derives everything from the
// stored timestamps.
func (d *Driver) Tick(ctx context.Context) (report RunReport, ran bool) {
	if !d.running.CompareAndSwap(false, true) {
		d.metrics.RecordSweepSkipped()
		d.logger.Warn("sla sweep skipped", zap.String("reason", "previous run active"))
		return RunReport{}, false
	}
	defer d.running.Store(false)

	lease, ok, err := d.locker.TryLock(ctx)
	if err != nil {
		d.metrics.RecordSweep(resultFailed, 0, 0, 0)
		d.logger.Error("sla sweep failed", zap.String("stage", "lock"), zap.Error(err))
		return RunReport{Err: err}, true
	}
	if !ok {
		d.metrics.RecordSweepSkipped()
		d.logger.Debug("sla sweep skipped", zap.String("reason", "lock held"))
		return RunReport{}, false
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			d.logger.Warn("release sweep lock failed", zap.Error(err))
		}
	}()

	ctx, span := observability.StartSpan(ctx, "sla.sweep")
	report = d.sweep(ctx)
	observability.EndSpanWithError(span, report.Err)
	return report, true
}

// sweep runs the cycle and retries it once on a storage conflict.
func (d *Driver) sweep(ctx context.Context) RunReport {
	report := RunReport{StartedAt: d.now()}
	result := resultOK
	for report.Attempts < 2 {
		report.Attempts++
		report.Err = d.cycle(ctx, &report)
		if report.Err == nil || !apperrors.HasCode(report.Err, apperrors.CodeStorageConflict) {
			break
		}
		result = resultRetried
		d.logger.Warn("sla sweep conflict", zap.Int("attempt", report.Attempts), zap.Error(report.Err))
	}
	report.Duration = d.now().Sub(report.StartedAt)
	if report.Err != nil {
		result = resultFailed
	}
	d.metrics.RecordSweep(result, report.Duration, len(report.Breached), len(report.Warnings))

	if report.Err != nil {
		d.logger.Error("sla sweep failed",
			zap.Int("attempts", report.Attempts),
			zap.Int("breached", len(report.Breached)),
			zap.Error(report.Err),
			zap.String("trace_id", observability.TraceIDFromContext(ctx)),
		)
		return report
	}
	d.logger.Info("sla sweep completed",
		zap.Int("breached", len(report.Breached)),
		zap.Int("warnings", len(report.Warnings)),
		zap.Int("escalated", report.Escalation.Count),
		zap.Int("unowned", len(report.Escalation.Unowned)),
		zap.Float64("breach_rate", report.Metrics.BreachRate),
	)
	return report
}

// cycle is sweep, then escalate, then metrics. Breaches found by an earlier
// attempt stay flagged, so a retry escalates them through the pending list.
func (d *Driver) cycle(ctx context.Context, report *RunReport) error {
	now := d.now()
	found, err := d.tracker.SweepBreaches(ctx, now)
	if err != nil {
		return err
	}
	warnings, err := d.warnings.Fresh(ctx, found.WarningIDs)
	if err != nil {
		d.logger.Warn("warning filter unavailable", zap.Error(err))
		warnings = found.WarningIDs
	}
	report.Breached = append(report.Breached, found.BreachedIDs...)
	report.Warnings = append(report.Warnings, warnings...)
	d.escalation.AnnounceSweep(ctx, found.BreachedIDs, warnings, now)

	pending, err := d.cases.ListPendingEscalation(ctx, d.escalation.PageSize())
	if err != nil {
		return apperrors.MapError(err)
	}
	escalated, err := d.escalation.Escalate(ctx, union(found.BreachedIDs, pending), now)
	if err != nil {
		return err
	}
	report.Escalation.Count += escalated.Count
	report.Escalation.EscalatedIDs = append(report.Escalation.EscalatedIDs, escalated.EscalatedIDs...)
	report.Escalation.Unowned = append(report.Escalation.Unowned, escalated.Unowned...)

	m, err := d.tracker.Metrics(ctx, now)
	if err != nil {
		return err
	}
	report.Metrics = m
	d.metrics.SetSLAGauges(m.TotalOpen, m.Breached, m.AtRisk, m.BreachRate)
	return nil
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
