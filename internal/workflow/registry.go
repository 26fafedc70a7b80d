package workflow

import (
	"sort"

	"github.com/spec-kit/onboarding-service/internal/domain"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

// Registry is the read-only catalog of workflow templates indexed by case type.
// It is built once at startup and safe for concurrent reads.
type Registry struct {
	templates map[string]domain.WorkflowTemplate
}

// NewRegistry validates every template and indexes it by type. Later templates
// with the same type replace earlier ones, so file templates can override the
// built-in catalog.
func NewRegistry(templates ...domain.WorkflowTemplate) (*Registry, error) {
	r := &Registry{templates: make(map[string]domain.WorkflowTemplate, len(templates))}
	for _, tmpl := range templates {
		if err := ValidateTemplate(tmpl); err != nil {
			return nil, err
		}
		r.templates[tmpl.Type] = tmpl
	}
	return r, nil
}

// Get returns the template registered for caseType.
func (r *Registry) Get(caseType string) (domain.WorkflowTemplate, error) {
	tmpl, ok := r.templates[caseType]
	if !ok {
		return domain.WorkflowTemplate{}, apperrors.NewTemplateNotFound(caseType)
	}
	return tmpl, nil
}

// List returns all templates ordered by type.
func (r *Registry) List() []domain.WorkflowTemplate {
	out := make([]domain.WorkflowTemplate, 0, len(r.templates))
	for _, tmpl := range r.templates {
		out = append(out, tmpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	return len(r.templates)
}
