package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/onboarding-service/internal/domain"
)

const defaultEstimatedHours = 24

// Instantiate materializes one activity instance per template activity for
// caseID, owned by the case's team when it has one. Dependencies are rewritten from template keys to sibling instance ids
// so the resulting graph is self-contained. Assignment is best effort: an
// activity whose role has no member stays unassigned.
func Instantiate(tmpl domain.WorkflowTemplate, caseID string, teamID *string, members []domain.TeamMember, now time.Time) ([]domain.ActivityInstance, error) {
	if err := ValidateTemplate(tmpl); err != nil {
		return nil, err
	}

	instances := make([]domain.ActivityInstance, 0, len(tmpl.Activities))
	idByKey := make(map[string]string, len(tmpl.Activities))
	for _, def := range tmpl.Activities {
		hours := def.EstimatedHours
		if hours <= 0 {
			hours = defaultEstimatedHours
		}
		inst := domain.ActivityInstance{
			ID:            uuid.NewString(),
			CaseID:        caseID,
			Key:           def.Key,
			Name:          def.Name,
			Config:        def.Config,
			SequenceOrder: def.SequenceOrder,
			Mandatory:     def.Mandatory,
			AssigneeID:    memberForRole(members, def.AssignRole),
			TeamID:        teamID,
			Status:        domain.ActivityStatusTodo,
			DueDate:       now.Add(time.Duration(hours) * time.Hour),
			Checklist:     checklistEntries(domain.ChecklistOf(def.Config)),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if len(def.DependsOn) > 0 {
			inst.Status = domain.ActivityStatusBlocked
		}
		idByKey[def.Key] = inst.ID
		instances = append(instances, inst)
	}

	for i, def := range tmpl.Activities {
		if len(def.DependsOn) == 0 {
			continue
		}
		deps := make([]string, 0, len(def.DependsOn))
		for _, key := range def.DependsOn {
			deps = append(deps, idByKey[key])
		}
		instances[i].DependsOn = deps
	}
	return instances, nil
}

// Unassigned returns the instances no team member could be matched to, for
// manual triage.
func Unassigned(instances []domain.ActivityInstance) []domain.ActivityInstance {
	var out []domain.ActivityInstance
	for _, inst := range instances {
		if inst.AssigneeID == nil {
			out = append(out, inst)
		}
	}
	return out
}

// ReadyForExecution lists todo instances flagged for automatic execution. It
// covers root system actions that are eligible straight after instantiation.
func ReadyForExecution(instances []domain.ActivityInstance) []AutoExecution {
	var out []AutoExecution
	for _, inst := range sortedBySequence(instances) {
		if inst.Status != domain.ActivityStatusTodo {
			continue
		}
		if action, ok := domain.AutoExecutable(inst.Config); ok {
			out = append(out, AutoExecution{InstanceID: inst.ID, ActionType: action})
		}
	}
	return out
}

func memberForRole(members []domain.TeamMember, role string) *string {
	if role == "" {
		return nil
	}
	for _, m := range members {
		if m.RoleName == role {
			id := m.UserID
			return &id
		}
	}
	return nil
}

func checklistEntries(defs []domain.ChecklistItemDef) []domain.ChecklistEntry {
	if len(defs) == 0 {
		return nil
	}
	out := make([]domain.ChecklistEntry, len(defs))
	for i, def := range defs {
		out[i] = domain.ChecklistEntry{Item: def.Item, Required: def.Required}
	}
	return out
}
