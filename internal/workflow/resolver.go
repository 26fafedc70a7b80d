package workflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/onboarding-service/internal/domain"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// AutoExecution signals a system action that became eligible and must be
// picked up by the action executor.
type AutoExecution struct {
	InstanceID string `json:"instance_id"`
	ActionType string `json:"action_type"`
}

// Resolution is the outcome of a mutation on a case's activity graph. The
// input slice is never modified; Instances holds the full updated set.
type Resolution struct {
	Instances             []domain.ActivityInstance
	Target                domain.ActivityInstance
	Unlocked              []domain.ActivityInstance
	ReadyForAutoExecution []AutoExecution
	CurrentStep           string
	AllTerminal           bool
	// Changed holds the ids of instances whose row must be written back.
	Changed []string
	// NoOp is set when the target was already in the requested state.
	NoOp bool
}

type graph struct {
	caseID string
	nodes  []domain.ActivityInstance
	index  map[string]int
}

func newGraph(caseID string, instances []domain.ActivityInstance) *graph {
	g := &graph{
		caseID: caseID,
		nodes:  make([]domain.ActivityInstance, len(instances)),
		index:  make(map[string]int, len(instances)),
	}
	for i, inst := range instances {
		g.nodes[i] = inst.Clone()
		g.index[inst.ID] = i
	}
	return g
}

func (g *graph) target(instanceID string) (*domain.ActivityInstance, error) {
	i, ok := g.index[instanceID]
	if !ok || g.nodes[i].CaseID != g.caseID {
		return nil, apperrors.NewInvalidActivity("activity does not belong to case", map[string]any{
			"case_id":     g.caseID,
			"activity_id": instanceID,
		})
	}
	return &g.nodes[i], nil
}

func (g *graph) status(id string) domain.ActivityStatus {
	i, ok := g.index[id]
	if !ok {
		return ""
	}
	return g.nodes[i].Status
}

// eligible reports whether every dependency of inst is completed. Skipped
// dependencies do not count.
func (g *graph) eligible(inst *domain.ActivityInstance) bool {
	for _, dep := range inst.DependsOn {
		if g.status(dep) != domain.ActivityStatusCompleted {
			return false
		}
	}
	return true
}

func (g *graph) resolution(target *domain.ActivityInstance, changed []string) Resolution {
	res := Resolution{
		Instances: g.nodes,
		Target:    *target,
		Changed:   changed,
	}
	res.CurrentStep, res.AllTerminal = CurrentStep(g.nodes)
	return res
}

// CompleteActivity marks instanceID completed and unlocks every blocked
// dependent whose dependencies are now all completed. Newly unlocked system
// actions flagged for auto execution are reported, never executed. Completing
// an already completed activity is a no-op.
func CompleteActivity(caseID, instanceID string, instances []domain.ActivityInstance, now time.Time, outcome *string) (Resolution, error) {
	g := newGraph(caseID, instances)
	target, err := g.target(instanceID)
	if err != nil {
		return Resolution{}, err
	}

	switch target.Status {
	case domain.ActivityStatusCompleted:
		res := g.resolution(target, nil)
		res.NoOp = true
		return res, nil
	case domain.ActivityStatusBlocked, domain.ActivityStatusSkipped:
		return Resolution{}, invalidTransition(target, domain.ActivityStatusCompleted)
	}

	target.Status = domain.ActivityStatusCompleted
	target.CompletedAt = &now
	if target.StartedAt == nil {
		target.StartedAt = &now
	}
	if outcome != nil {
		o := *outcome
		target.Outcome = &o
	}
	target.UpdatedAt = now
	changed := []string{target.ID}

	var unlocked []domain.ActivityInstance
	var ready []AutoExecution
	for _, i := range g.dependentsOf(target.ID) {
		cand := &g.nodes[i]
		if cand.Status != domain.ActivityStatusBlocked || !g.eligible(cand) {
			continue
		}
		cand.Status = domain.ActivityStatusTodo
		cand.UpdatedAt = now
		changed = append(changed, cand.ID)
		unlocked = append(unlocked, *cand)
		if action, ok := domain.AutoExecutable(cand.Config); ok {
			ready = append(ready, AutoExecution{InstanceID: cand.ID, ActionType: action})
		}
	}

	res := g.resolution(target, changed)
	res.Unlocked = unlocked
	res.ReadyForAutoExecution = ready
	return res, nil
}

// StartActivity moves a todo activity to in_progress.
func StartActivity(caseID, instanceID string, instances []domain.ActivityInstance, now time.Time) (Resolution, error) {
	g := newGraph(caseID, instances)
	target, err := g.target(instanceID)
	if err != nil {
		return Resolution{}, err
	}

	switch target.Status {
	case domain.ActivityStatusInProgress:
		res := g.resolution(target, nil)
		res.NoOp = true
		return res, nil
	case domain.ActivityStatusTodo:
	default:
		return Resolution{}, invalidTransition(target, domain.ActivityStatusInProgress)
	}

	target.Status = domain.ActivityStatusInProgress
	target.StartedAt = &now
	target.UpdatedAt = now
	return g.resolution(target, []string{target.ID}), nil
}

// SkipActivity marks an optional activity skipped. An activity another
// non-terminal activity depends on cannot be skipped, since its dependents
// could then never unlock.
func SkipActivity(caseID, instanceID string, instances []domain.ActivityInstance, now time.Time, reason string) (Resolution, error) {
	g := newGraph(caseID, instances)
	target, err := g.target(instanceID)
	if err != nil {
		return Resolution{}, err
	}

	switch {
	case target.Status == domain.ActivityStatusSkipped:
		res := g.resolution(target, nil)
		res.NoOp = true
		return res, nil
	case target.Status == domain.ActivityStatusCompleted:
		return Resolution{}, invalidTransition(target, domain.ActivityStatusSkipped)
	case target.Mandatory:
		return Resolution{}, apperrors.NewInvalidActivity("mandatory activity cannot be skipped", map[string]any{
			"activity_id": target.ID,
			"key":         target.Key,
		})
	}
	for _, i := range g.dependentsOf(target.ID) {
		if !g.nodes[i].Status.IsTerminal() {
			return Resolution{}, apperrors.NewInvalidActivity("activity has pending dependents", map[string]any{
				"activity_id":  target.ID,
				"dependent_id": g.nodes[i].ID,
			})
		}
	}

	target.Status = domain.ActivityStatusSkipped
	target.CompletedAt = &now
	if reason != "" {
		r := reason
		target.Outcome = &r
	}
	target.UpdatedAt = now
	return g.resolution(target, []string{target.ID}), nil
}

// ToggleChecklistItem sets the checked state of one checklist line on an
// activity that is still open.
func ToggleChecklistItem(caseID, instanceID string, instances []domain.ActivityInstance, item string, checked bool, by string, now time.Time) (Resolution, error) {
	g := newGraph(caseID, instances)
	target, err := g.target(instanceID)
	if err != nil {
		return Resolution{}, err
	}
	if target.Status.IsTerminal() {
		return Resolution{}, invalidTransition(target, target.Status)
	}

	for i := range target.Checklist {
		entry := &target.Checklist[i]
		if entry.Item != item {
			continue
		}
		if entry.Checked == checked {
			res := g.resolution(target, nil)
			res.NoOp = true
			return res, nil
		}
		entry.Checked = checked
		if checked {
			who, at := by, now
			entry.CheckedBy = &who
			entry.CheckedAt = &at
		} else {
			entry.CheckedBy = nil
			entry.CheckedAt = nil
		}
		target.UpdatedAt = now
		return g.resolution(target, []string{target.ID}), nil
	}

	return Resolution{}, apperrors.NewInvalidActivity("checklist item not found", map[string]any{
		"activity_id": target.ID,
		"item":        item,
	})
}

// CurrentStep returns the name of the lowest-sequence activity that is not yet
// terminal. When none remain the second result is true.
func CurrentStep(instances []domain.ActivityInstance) (string, bool) {
	best := -1
	for i := range instances {
		if instances[i].Status.IsTerminal() {
			continue
		}
		if best < 0 || instances[i].SequenceOrder < instances[best].SequenceOrder {
			best = i
		}
	}
	if best < 0 {
		return "", true
	}
	return instances[best].Name, false
}

// dependentsOf returns node indexes depending on id, ordered by sequence.
func (g *graph) dependentsOf(id string) []int {
	var out []int
	for i := range g.nodes {
		for _, dep := range g.nodes[i].DependsOn {
			if dep == id {
				out = append(out, i)
				break
			}
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return g.nodes[out[a]].SequenceOrder < g.nodes[out[b]].SequenceOrder
	})
	return out
}

func sortedBySequence(instances []domain.ActivityInstance) []domain.ActivityInstance {
	out := append([]domain.ActivityInstance(nil), instances...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SequenceOrder < out[j].SequenceOrder })
	return out
}

func invalidTransition(inst *domain.ActivityInstance, to domain.ActivityStatus) error {
	return apperrors.NewInvalidActivity(
		fmt.Sprintf("activity %q cannot move from %s to %s", inst.Key, inst.Status, to),
		map[string]any{"activity_id": inst.ID, "status": string(inst.Status)},
	)
}
