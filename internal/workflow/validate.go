package workflow

import (
	"fmt"

	"github.com/spec-kit/onboarding-service/internal/domain"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// ValidateTemplate checks the structural invariants of a template: unique keys
// and sequence orders, dependencies that resolve inside the template and point
// to a strictly lower sequence order, and an acyclic dependency graph.
func ValidateTemplate(tmpl domain.WorkflowTemplate) error {
	if tmpl.Type == "" {
		return apperrors.NewInvalidTemplate(tmpl.ID, "missing type")
	}
	if len(tmpl.Activities) == 0 {
		return apperrors.NewInvalidTemplate(tmpl.ID, "no activities")
	}

	byKey := make(map[string]domain.ActivityDef, len(tmpl.Activities))
	seqs := make(map[int]string, len(tmpl.Activities))
	for _, def := range tmpl.Activities {
		if def.Key == "" {
			return apperrors.NewInvalidTemplate(tmpl.ID, "activity with empty key")
		}
		if _, dup := byKey[def.Key]; dup {
			return apperrors.NewInvalidTemplate(tmpl.ID, fmt.Sprintf("duplicate activity key %q", def.Key))
		}
		if other, dup := seqs[def.SequenceOrder]; dup {
			return apperrors.NewInvalidTemplate(tmpl.ID,
				fmt.Sprintf("activities %q and %q share sequence order %d", other, def.Key, def.SequenceOrder))
		}
		if def.Config == nil {
			return apperrors.NewInvalidTemplate(tmpl.ID, fmt.Sprintf("activity %q has no kind", def.Key))
		}
		byKey[def.Key] = def
		seqs[def.SequenceOrder] = def.Key
	}

	for _, def := range tmpl.Activities {
		for _, dep := range def.DependsOn {
			parent, ok := byKey[dep]
			if !ok {
				return apperrors.NewInvalidTemplate(tmpl.ID, fmt.Sprintf("activity %q depends on unknown key %q", def.Key, dep))
			}
			if parent.SequenceOrder >= def.SequenceOrder {
				return apperrors.NewInvalidTemplate(tmpl.ID,
					fmt.Sprintf("activity %q depends on %q which does not precede it", def.Key, dep))
			}
		}
	}

	if key, ok := findCycle(byKey); ok {
		return apperrors.NewInvalidTemplate(tmpl.ID, fmt.Sprintf("dependency cycle through %q", key))
	}
	return nil
}

// findCycle runs a depth-first search over dependency edges and returns a key
// on a cycle when one exists.
func findCycle(byKey map[string]domain.ActivityDef) (string, bool) {
	visited := make(map[string]bool, len(byKey))
	stack := make(map[string]bool, len(byKey))

	var visit func(string) bool
	visit = func(key string) bool {
		if stack[key] {
			return true
		}
		if visited[key] {
			return false
		}
		visited[key] = true
		stack[key] = true
		for _, dep := range byKey[key].DependsOn {
			if visit(dep) {
				return true
			}
		}
		stack[key] = false
		return false
	}

	for key := range byKey {
		if visit(key) {
			return key, true
		}
	}
	return "", false
}
