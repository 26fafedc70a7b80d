package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/onboarding-service/internal/domain"
	apperrors "github.com/spec-kit/onboarding-service/pkg/util/errorutil"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func def(key string, seq int, deps ...string) domain.ActivityDef {
	return domain.ActivityDef{
		Key:           key,
		Name:          "step " + key,
		SequenceOrder: seq,
		Mandatory:     true,
		DependsOn:     deps,
		Config:        domain.CallCustomer{},
	}
}

func template(defs ...domain.ActivityDef) domain.WorkflowTemplate {
	return domain.WorkflowTemplate{ID: "tpl-test", Type: "test", Name: "Test", SLADays: 3, Activities: defs}
}

func byKey(t *testing.T, instances []domain.ActivityInstance, key string) domain.ActivityInstance {
	t.Helper()
	for _, inst := range instances {
		if inst.Key == key {
			return inst
		}
	}
	t.Fatalf("no instance with key %s", key)
	return domain.ActivityInstance{}
}

func TestDefaultTemplatesAreValid(t *testing.T) {
	reg, err := NewRegistry(DefaultTemplates()...)
	require.NoError(t, err)
	assert.Equal(t, 4, reg.Len())

	tmpl, err := reg.Get(TypeAccountOpening)
	require.NoError(t, err)
	assert.Equal(t, "tpl-account-opening", tmpl.ID)
}

func TestRegistry_GetUnknownType(t *testing.T) {
	reg, err := NewRegistry(DefaultTemplates()...)
	require.NoError(t, err)

	_, err = reg.Get("mortgage")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTemplateNotFound))
}

func TestRegistry_LaterTemplateOverrides(t *testing.T) {
	override := template(def("only", 1))
	override.Type = TypeKYCRefresh

	reg, err := NewRegistry(append(DefaultTemplates(), override)...)
	require.NoError(t, err)

	tmpl, err := reg.Get(TypeKYCRefresh)
	require.NoError(t, err)
	assert.Len(t, tmpl.Activities, 1)
}

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name string
		tmpl domain.WorkflowTemplate
		want string
	}{
		{"duplicate key", template(def("a", 1), def("a", 2)), "duplicate activity key"},
		{"duplicate sequence", template(def("a", 1), def("b", 1)), "share sequence order"},
		{"unknown dependency", template(def("a", 1, "ghost")), "unknown key"},
		{"dependency not preceding", template(def("a", 2, "b"), def("b", 1, "a")), "does not precede"},
		{"self dependency", template(def("a", 1, "a")), "does not precede"},
		{"no activities", template(), "no activities"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTemplate(tt.tmpl)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTemplate))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFindCycle(t *testing.T) {
	defs := map[string]domain.ActivityDef{
		"a": {Key: "a", DependsOn: []string{"c"}},
		"b": {Key: "b", DependsOn: []string{"a"}},
		"c": {Key: "c", DependsOn: []string{"b"}},
	}
	_, found := findCycle(defs)
	assert.True(t, found)

	delete(defs, "c")
	defs["a"] = domain.ActivityDef{Key: "a"}
	_, found = findCycle(defs)
	assert.False(t, found)
}

func TestParseTemplate(t *testing.T) {
	data := []byte(`
type: savings_account
name: Savings account
sla_days: 4
activities:
  - key: docs
    name: Collect documents
    kind: document_review
    sequence_order: 1
    estimated_hours: 12
    assign_role: operator
    checklist:
      - item: ID card
        required: true
  - key: aml
    name: AML screening
    kind: system_action
    sequence_order: 2
    depends_on: [docs]
    action_type: aml_screening
    auto_execute: true
  - key: call
    name: Courtesy call
    kind: call_customer
    sequence_order: 3
    mandatory: false
    depends_on: [aml]
`)
	tmpl, err := ParseTemplate(data)
	require.NoError(t, err)

	assert.Equal(t, "tpl-savings_account", tmpl.ID)
	require.Len(t, tmpl.Activities, 3)
	assert.Equal(t, domain.DocumentReview{Checklist: []domain.ChecklistItemDef{{Item: "ID card", Required: true}}}, tmpl.Activities[0].Config)
	assert.Equal(t, domain.SystemAction{ActionType: "aml_screening", AutoExecute: true}, tmpl.Activities[1].Config)
	assert.True(t, tmpl.Activities[1].Mandatory)
	assert.False(t, tmpl.Activities[2].Mandatory)
}

func TestParseTemplate_RejectsFieldsOfOtherKinds(t *testing.T) {
	_, err := ParseTemplate([]byte(`
type: x
activities:
  - key: call
    kind: call_customer
    sequence_order: 1
    action_type: kyc_check
`))
	assert.ErrorContains(t, err, "only allowed on system_action")

	_, err = ParseTemplate([]byte(`
type: x
activities:
  - key: a
    kind: teleport
    sequence_order: 1
`))
	assert.ErrorContains(t, err, "unknown kind")
}

func TestLoadTemplatesFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("type: b\nactivities:\n  - key: x\n    kind: approval\n    sequence_order: 1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("type: a\nactivities:\n  - key: x\n    kind: call_customer\n    sequence_order: 1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	templates, err := LoadTemplatesFromDir(dir)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "a", templates[0].Type)
	assert.Equal(t, "b", templates[1].Type)
}

func TestInstantiate(t *testing.T) {
	tmpl := DefaultTemplates()[0]
	members := []domain.TeamMember{
		{UserID: "u-op", RoleName: "operator"},
		{UserID: "u-op-2", RoleName: "operator"},
	}

	teamID := "team-retail"
	instances, err := Instantiate(tmpl, "case-1", &teamID, members, testNow)
	require.NoError(t, err)
	require.Len(t, instances, len(tmpl.Activities))

	docs := byKey(t, instances, "collect_documents")
	assert.Equal(t, domain.ActivityStatusTodo, docs.Status)
	require.NotNil(t, docs.AssigneeID)
	assert.Equal(t, "u-op", *docs.AssigneeID)
	assert.Equal(t, testNow.Add(24*time.Hour), docs.DueDate)
	assert.Len(t, docs.Checklist, 3)

	verify := byKey(t, instances, "verify_identity")
	assert.Equal(t, domain.ActivityStatusBlocked, verify.Status)
	assert.Equal(t, []string{docs.ID}, verify.DependsOn)

	approval := byKey(t, instances, "final_approval")
	assert.Nil(t, approval.AssigneeID, "no manager in the team")

	ids := make(map[string]bool)
	for _, inst := range instances {
		assert.Equal(t, "case-1", inst.CaseID)
		require.NotNil(t, inst.TeamID)
		assert.Equal(t, teamID, *inst.TeamID)
		ids[inst.ID] = true
	}
	for _, inst := range instances {
		for _, dep := range inst.DependsOn {
			assert.True(t, ids[dep], "dependency %s must be a sibling id", dep)
		}
	}

	assert.NotEmpty(t, Unassigned(instances))
}

func TestInstantiate_DefaultEstimatedHours(t *testing.T) {
	instances, err := Instantiate(template(def("a", 1)), "c", nil, nil, testNow)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(24*time.Hour), instances[0].DueDate)
}

func TestInstantiate_RejectsCyclicTemplate(t *testing.T) {
	_, err := Instantiate(template(def("a", 1, "b"), def("b", 2, "a")), "c", nil, nil, testNow)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTemplate))
}

func TestReadyForExecution_RootSystemAction(t *testing.T) {
	instances, err := Instantiate(DefaultTemplates()[3], "c", nil, nil, testNow)
	require.NoError(t, err)

	ready := ReadyForExecution(instances)
	require.Len(t, ready, 1)
	assert.Equal(t, "credit_check", ready[0].ActionType)
}

func TestCompleteActivity_LinearChain(t *testing.T) {
	instances, err := Instantiate(template(def("A", 1), def("B", 2, "A"), def("C", 3, "B")), "case", nil, nil, testNow)
	require.NoError(t, err)

	assert.Equal(t, domain.ActivityStatusTodo, byKey(t, instances, "A").Status)
	assert.Equal(t, domain.ActivityStatusBlocked, byKey(t, instances, "B").Status)
	assert.Equal(t, domain.ActivityStatusBlocked, byKey(t, instances, "C").Status)

	res, err := CompleteActivity("case", byKey(t, instances, "A").ID, instances, testNow, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityStatusTodo, byKey(t, res.Instances, "B").Status)
	assert.Equal(t, domain.ActivityStatusBlocked, byKey(t, res.Instances, "C").Status)
	assert.Equal(t, "step B", res.CurrentStep)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, "B", res.Unlocked[0].Key)

	res, err = CompleteActivity("case", byKey(t, instances, "B").ID, res.Instances, testNow, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityStatusTodo, byKey(t, res.Instances, "C").Status)

	res, err = CompleteActivity("case", byKey(t, instances, "C").ID, res.Instances, testNow, nil)
	require.NoError(t, err)
	assert.True(t, res.AllTerminal)
	assert.Empty(t, res.CurrentStep)
}

func TestCompleteActivity_Join(t *testing.T) {
	instances, err := Instantiate(template(def("A", 1), def("B", 2), def("D", 3, "A", "B")), "case", nil, nil, testNow)
	require.NoError(t, err)

	res, err := CompleteActivity("case", byKey(t, instances, "A").ID, instances, testNow, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityStatusBlocked, byKey(t, res.Instances, "D").Status)
	assert.Empty(t, res.Unlocked)

	res, err = CompleteActivity("case", byKey(t, instances, "B").ID, res.Instances, testNow, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityStatusTodo, byKey(t, res.Instances, "D").Status)
}

func TestCompleteActivity_ReportsAutoExecution(t *testing.T) {
	tmpl := template(
		def("docs", 1),
		domain.ActivityDef{Key: "kyc", Name: "KYC", SequenceOrder: 2, DependsOn: []string{"docs"},
			Config: domain.SystemAction{ActionType: "kyc_check", AutoExecute: true}},
		domain.ActivityDef{Key: "manual", Name: "Manual", SequenceOrder: 3, DependsOn: []string{"docs"},
			Config: domain.SystemAction{ActionType: "credit_check"}},
	)
	instances, err := Instantiate(tmpl, "case", nil, nil, testNow)
	require.NoError(t, err)

	res, err := CompleteActivity("case", byKey(t, instances, "docs").ID, instances, testNow, nil)
	require.NoError(t, err)
	assert.Len(t, res.Unlocked, 2)
	assert.Equal(t, []AutoExecution{{InstanceID: byKey(t, instances, "kyc").ID, ActionType: "kyc_check"}}, res.ReadyForAutoExecution)
	assert.Equal(t, domain.ActivityStatusTodo, byKey(t, res.Instances, "kyc").Status, "resolver never executes")
}

func TestCompleteActivity_Idempotent(t *testing.T) {
	instances, err := Instantiate(template(def("A", 1), def("B", 2, "A")), "case", nil, nil, testNow)
	require.NoError(t, err)
	a := byKey(t, instances, "A").ID

	once, err := CompleteActivity("case", a, instances, testNow, nil)
	require.NoError(t, err)

	twice, err := CompleteActivity("case", a, once.Instances, testNow.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.True(t, twice.NoOp)
	assert.Empty(t, twice.Changed)
	assert.Equal(t, once.Instances, twice.Instances)
}

func TestCompleteActivity_Errors(t *testing.T) {
	instances, err := Instantiate(template(def("A", 1), def("B", 2, "A")), "case", nil, nil, testNow)
	require.NoError(t, err)

	_, err = CompleteActivity("other-case", byKey(t, instances, "A").ID, instances, testNow, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidActivity))

	_, err = CompleteActivity("case", "missing", instances, testNow, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidActivity))

	_, err = CompleteActivity("case", byKey(t, instances, "B").ID, instances, testNow, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidActivity))
	assert.Equal(t, domain.ActivityStatusBlocked, byKey(t, instances, "B").Status, "input untouched")
}

func TestCompleteActivity_DoesNotMutateInput(t *testing.T) {
	instances, err := Instantiate(template(def("A", 1), def("B", 2, "A")), "case", nil, nil, testNow)
	require.NoError(t, err)

	_, err = CompleteActivity("case", byKey(t, instances, "A").ID, instances, testNow, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityStatusTodo, byKey(t, instances, "A").Status)
}

func TestStartActivity(t *testing.T) {
	instances, err := Instantiate(template(def("A", 1), def("B", 2, "A")), "case", nil, nil, testNow)
	require.NoError(t, err)

	res, err := StartActivity("case", byKey(t, instances, "A").ID, instances, testNow)
	require.NoError(t, err)
	a := byKey(t, res.Instances, "A")
	assert.Equal(t, domain.ActivityStatusInProgress, a.Status)
	require.NotNil(t, a.StartedAt)

	_, err = StartActivity("case", byKey(t, instances, "B").ID, instances, testNow)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidActivity))

	res, err = CompleteActivity("case", a.ID, res.Instances, testNow.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, testNow, *byKey(t, res.Instances, "A").StartedAt)
}

func TestSkipActivity(t *testing.T) {
	optional := def("opt", 2)
	optional.Mandatory = false
	parent := def("parent", 3)
	parent.Mandatory = false
	instances, err := Instantiate(template(def("A", 1), optional, parent, def("child", 4, "parent")), "case", nil, nil, testNow)
	require.NoError(t, err)

	_, err = SkipActivity("case", byKey(t, instances, "A").ID, instances, testNow, "")
	assert.ErrorContains(t, err, "mandatory")

	_, err = SkipActivity("case", byKey(t, instances, "parent").ID, instances, testNow, "")
	assert.ErrorContains(t, err, "pending dependents")

	res, err := SkipActivity("case", byKey(t, instances, "opt").ID, instances, testNow, "customer declined")
	require.NoError(t, err)
	skipped := byKey(t, res.Instances, "opt")
	assert.Equal(t, domain.ActivityStatusSkipped, skipped.Status)
	assert.Equal(t, "customer declined", *skipped.Outcome)
	assert.Equal(t, "step A", res.CurrentStep)
}

func TestToggleChecklistItem(t *testing.T) {
	tmpl := template(domain.ActivityDef{Key: "docs", Name: "Docs", SequenceOrder: 1, Config: domain.DocumentReview{
		Checklist: []domain.ChecklistItemDef{{Item: "ID", Required: true}},
	}})
	instances, err := Instantiate(tmpl, "case", nil, nil, testNow)
	require.NoError(t, err)
	id := instances[0].ID

	res, err := ToggleChecklistItem("case", id, instances, "ID", true, "u-1", testNow)
	require.NoError(t, err)
	entry := res.Instances[0].Checklist[0]
	assert.True(t, entry.Checked)
	assert.Equal(t, "u-1", *entry.CheckedBy)
	assert.Empty(t, res.Instances[0].MissingRequiredItems())

	res, err = ToggleChecklistItem("case", id, res.Instances, "ID", true, "u-2", testNow)
	require.NoError(t, err)
	assert.True(t, res.NoOp)

	res, err = ToggleChecklistItem("case", id, res.Instances, "ID", false, "u-1", testNow)
	require.NoError(t, err)
	assert.Nil(t, res.Instances[0].Checklist[0].CheckedBy)

	_, err = ToggleChecklistItem("case", id, res.Instances, "Passport", true, "u-1", testNow)
	assert.ErrorContains(t, err, "checklist item not found")
}
