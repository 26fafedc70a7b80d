package domain

// ActivityDef is one node of a workflow template.
type ActivityDef struct {
	Key            string
	Name           string
	SequenceOrder  int
	Mandatory      bool
	DependsOn      []string
	EstimatedHours int
	AssignRole     string
	Config         ActivityConfig
}

// WorkflowTemplate is a named activity graph shared by every case of a type.
type WorkflowTemplate struct {
	ID         string
	Type       string
	Name       string
	SLADays    int
	Activities []ActivityDef
}
