package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/onboarding-service/internal/domain"
)

// TemplateDefinition is the YAML form of a workflow template.
type TemplateDefinition struct {
	ID         string               `yaml:"id"`
	Type       string               `yaml:"type"`
	Name       string               `yaml:"name"`
	SLADays    int                  `yaml:"sla_days"`
	Activities []ActivityDefinition `yaml:"activities"`
}

// ActivityDefinition is the YAML form of an activity. Kind-specific fields are
// flat in the file and folded into the matching variant on load.
type ActivityDefinition struct {
	Key            string                    `yaml:"key"`
	Name           string                    `yaml:"name"`
	Kind           string                    `yaml:"kind"`
	SequenceOrder  int                       `yaml:"sequence_order"`
	Mandatory      *bool                     `yaml:"mandatory"`
	DependsOn      []string                  `yaml:"depends_on"`
	EstimatedHours int                       `yaml:"estimated_hours"`
	AssignRole     string                    `yaml:"assign_role"`
	Checklist      []domain.ChecklistItemDef `yaml:"checklist,omitempty"`
	ActionType     string                    `yaml:"action_type,omitempty"`
	AutoExecute    bool                      `yaml:"auto_execute,omitempty"`
	Method         string                    `yaml:"method,omitempty"`
	Script         string                    `yaml:"script,omitempty"`
	MinApprovals   int                       `yaml:"min_approvals,omitempty"`
}

// LoadTemplateFromFile reads and validates a single YAML template.
func LoadTemplateFromFile(path string) (domain.WorkflowTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.WorkflowTemplate{}, fmt.Errorf("read template file: %w", err)
	}
	return ParseTemplate(data)
}

// ParseTemplate decodes a YAML template and validates it.
func ParseTemplate(data []byte) (domain.WorkflowTemplate, error) {
	var def TemplateDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return domain.WorkflowTemplate{}, fmt.Errorf("parse template yaml: %w", err)
	}
	tmpl, err := def.toTemplate()
	if err != nil {
		return domain.WorkflowTemplate{}, err
	}
	if err := ValidateTemplate(tmpl); err != nil {
		return domain.WorkflowTemplate{}, err
	}
	return tmpl, nil
}

// LoadTemplatesFromDir loads every *.yaml / *.yml file in dir, in name order.
// Any invalid file fails the whole load: templates are trusted configuration.
func LoadTemplatesFromDir(dir string) ([]domain.WorkflowTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read templates directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	templates := make([]domain.WorkflowTemplate, 0, len(names))
	for _, name := range names {
		tmpl, err := LoadTemplateFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}

func (d TemplateDefinition) toTemplate() (domain.WorkflowTemplate, error) {
	tmpl := domain.WorkflowTemplate{
		ID:      d.ID,
		Type:    d.Type,
		Name:    d.Name,
		SLADays: d.SLADays,
	}
	if tmpl.ID == "" {
		tmpl.ID = "tpl-" + d.Type
	}
	for _, a := range d.Activities {
		cfg, err := a.config()
		if err != nil {
			return domain.WorkflowTemplate{}, fmt.Errorf("activity %q: %w", a.Key, err)
		}
		mandatory := true
		if a.Mandatory != nil {
			mandatory = *a.Mandatory
		}
		tmpl.Activities = append(tmpl.Activities, domain.ActivityDef{
			Key:            a.Key,
			Name:           a.Name,
			SequenceOrder:  a.SequenceOrder,
			Mandatory:      mandatory,
			DependsOn:      a.DependsOn,
			EstimatedHours: a.EstimatedHours,
			AssignRole:     a.AssignRole,
			Config:         cfg,
		})
	}
	return tmpl, nil
}

func (a ActivityDefinition) config() (domain.ActivityConfig, error) {
	kind := domain.ActivityKind(a.Kind)
	if len(a.Checklist) > 0 && kind != domain.KindDocumentReview && kind != domain.KindVerifyIdentity {
		return nil, fmt.Errorf("checklist is not allowed on %s activities", a.Kind)
	}
	if (a.ActionType != "" || a.AutoExecute) && kind != domain.KindSystemAction {
		return nil, fmt.Errorf("action_type/auto_execute are only allowed on system_action activities")
	}

	switch kind {
	case domain.KindDocumentReview:
		return domain.DocumentReview{Checklist: a.Checklist}, nil
	case domain.KindCallCustomer:
		return domain.CallCustomer{Script: a.Script}, nil
	case domain.KindVerifyIdentity:
		return domain.VerifyIdentity{Method: a.Method, Checklist: a.Checklist}, nil
	case domain.KindSystemAction:
		if a.ActionType == "" {
			return nil, fmt.Errorf("system_action requires action_type")
		}
		return domain.SystemAction{ActionType: a.ActionType, AutoExecute: a.AutoExecute}, nil
	case domain.KindApproval:
		return domain.Approval{MinApprovals: a.MinApprovals}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", a.Kind)
	}
}
