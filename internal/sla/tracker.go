package sla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/repository"
)

// DefaultWarningWindow is how far ahead of its due date a case is flagged as at risk.
const DefaultWarningWindow = 4 * time.Hour

var hoursByPriority = map[domain.CasePriority]int{
	domain.CasePriorityCritical: 4,
	domain.CasePriorityHigh:     24,
	domain.CasePriorityMedium:   72,
	domain.CasePriorityLow:      168,
}

// Hours returns the SLA budget for priority. Unknown priorities get the
// medium budget.
func Hours(priority domain.CasePriority) int {
	if h, ok := hoursByPriority[priority]; ok {
		return h
	}
	return hoursByPriority[domain.CasePriorityMedium]
}

// DueDateFor returns the deadline of a case opened at now with priority.
func DueDateFor(priority domain.CasePriority, now time.Time) time.Time {
	return now.Add(time.Duration(Hours(priority)) * time.Hour)
}

// SweepResult carries the ids found by a sweep so callers can notify and
// escalate without querying again.
type SweepResult struct {
	BreachedIDs []string `json:"breached_ids"`
	WarningIDs  []string `json:"warning_ids"`
}

// Metrics summarizes SLA health over open cases.
type Metrics struct {
	TotalOpen  int     `json:"total_open"`
	Breached   int     `json:"breached"`
	AtRisk     int     `json:"at_risk"`
	BreachRate float64 `json:"breach_rate"`
}

// Tracker runs breach sweeps and SLA aggregation against the case store.
type Tracker struct {
	cases         repository.CaseRepository
	warningWindow time.Duration
	logger        *zap.Logger
}

// NewTracker builds a tracker. A non-positive window falls back to DefaultWarningWindow.
func NewTracker(cases repository.CaseRepository, warningWindow time.Duration, logger *zap.Logger) *Tracker {
	if warningWindow <= 0 {
		warningWindow = DefaultWarningWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{cases: cases, warningWindow: warningWindow, logger: logger}
}

// SweepBreaches flags every open case past its due date as breached in one
// conditional update and lists the cases entering the warning window. Cases
// already breached are never returned again.
func (t *Tracker) SweepBreaches(ctx context.Context, now time.Time) (SweepResult, error) {
	breached, err := t.cases.MarkBreached(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("mark breached cases: %w", err)
	}
	warnings, err := t.cases.ListAtRisk(ctx, now, t.warningWindow)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list at-risk cases: %w", err)
	}

	t.logger.Debug("sla sweep",
		zap.Time("now", now),
		zap.Int("breached", len(breached)),
		zap.Int("warnings", len(warnings)),
	)
	return SweepResult{BreachedIDs: breached, WarningIDs: warnings}, nil
}

// Metrics aggregates the open case population at now.
func (t *Tracker) Metrics(ctx context.Context, now time.Time) (Metrics, error) {
	counts, err := t.cases.Counts(ctx, now, t.warningWindow)
	if err != nil {
		return Metrics{}, fmt.Errorf("count open cases: %w", err)
	}
	return FromCounts(counts), nil
}

// FromCounts derives the breach rate; it is zero when nothing is open.
func FromCounts(counts repository.CaseCounts) Metrics {
	m := Metrics{TotalOpen: counts.Open, Breached: counts.Breached, AtRisk: counts.AtRisk}
	if counts.Open > 0 {
		m.BreachRate = float64(counts.Breached) / float64(counts.Open)
	}
	return m
}

// Aggregate computes Metrics over an in-memory case list.
func Aggregate(cases []domain.Case, now time.Time, window time.Duration) Metrics {
	var counts repository.CaseCounts
	limit := now.Add(window)
	for _, c := range cases {
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
	return FromCounts(counts)
}
