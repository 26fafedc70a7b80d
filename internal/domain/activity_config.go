package domain

import (
	"encoding/json"
	"fmt"
)

// ActivityKind enumerates the closed set of activity variants.
type ActivityKind string

const (
	KindDocumentReview ActivityKind = "document_review"
	KindCallCustomer   ActivityKind = "call_customer"
	KindVerifyIdentity ActivityKind = "verify_identity"
	KindSystemAction   ActivityKind = "system_action"
	KindApproval       ActivityKind = "approval"
)

// ActivityConfig is the per-kind payload of an activity. Only the variants in
// this file implement it.
type ActivityConfig interface {
	Kind() ActivityKind
	isActivityConfig()
}

// ChecklistItemDef is a template checklist line.
type ChecklistItemDef struct {
	Item     string `json:"item" yaml:"item"`
	Required bool   `json:"required" yaml:"required"`
}

// DocumentReview asks an operator to review collected documents.
type DocumentReview struct {
	Checklist []ChecklistItemDef `json:"checklist,omitempty"`
}

// CallCustomer asks an operator to reach the customer.
type CallCustomer struct {
	Script string `json:"script,omitempty"`
}

// VerifyIdentity asks an operator to verify the customer's identity.
type VerifyIdentity struct {
	Method    string             `json:"method,omitempty"`
	Checklist []ChecklistItemDef `json:"checklist,omitempty"`
}

// SystemAction is executed by the external action executor (KYC, AML, credit checks).
type SystemAction struct {
	ActionType  string `json:"action_type"`
	AutoExecute bool   `json:"auto_execute"`
}

// Approval is a human sign-off step.
type Approval struct {
	MinApprovals int `json:"min_approvals,omitempty"`
}

func (DocumentReview) Kind() ActivityKind { return KindDocumentReview }
func (CallCustomer) Kind() ActivityKind   { return KindCallCustomer }
func (VerifyIdentity) Kind() ActivityKind { return KindVerifyIdentity }
func (SystemAction) Kind() ActivityKind   { return KindSystemAction }
func (Approval) Kind() ActivityKind       { return KindApproval }

func (DocumentReview) isActivityConfig() {}
func (CallCustomer) isActivityConfig()   {}
func (VerifyIdentity) isActivityConfig() {}
func (SystemAction) isActivityConfig()   {}
func (Approval) isActivityConfig()       {}

// ChecklistOf returns the checklist carried by the variant, if any.
func ChecklistOf(cfg ActivityConfig) []ChecklistItemDef {
	switch c := cfg.(type) {
	case DocumentReview:
		return c.Checklist
	case VerifyIdentity:
		return c.Checklist
	default:
		return nil
	}
}

// AutoExecutable returns the action type when cfg is a system action flagged for auto execution.
func AutoExecutable(cfg ActivityConfig) (string, bool) {
	action, ok := cfg.(SystemAction)
	if !ok || !action.AutoExecute {
		return "", false
	}
	return action.ActionType, true
}

type configEnvelope struct {
	Kind ActivityKind    `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalActivityConfig encodes a variant together with its kind tag.
func MarshalActivityConfig(cfg ActivityConfig) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("activity config is nil")
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(configEnvelope{Kind: cfg.Kind(), Data: data})
}

// UnmarshalActivityConfig decodes a tagged payload produced by MarshalActivityConfig.
func UnmarshalActivityConfig(raw []byte) (ActivityConfig, error) {
	var env configEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode activity config: %w", err)
	}
	return DecodeActivityConfig(env.Kind, env.Data)
}

// DecodeActivityConfig builds the variant for kind from its JSON body.
func DecodeActivityConfig(kind ActivityKind, data []byte) (ActivityConfig, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	var (
		cfg ActivityConfig
		err error
	)
	switch kind {
	case KindDocumentReview:
		var v DocumentReview
		err = json.Unmarshal(data, &v)
		cfg = v
	case KindCallCustomer:
		var v CallCustomer
		err = json.Unmarshal(data, &v)
		cfg = v
	case KindVerifyIdentity:
		var v VerifyIdentity
		err = json.Unmarshal(data, &v)
		cfg = v
	case KindSystemAction:
		var v SystemAction
		err = json.Unmarshal(data, &v)
		cfg = v
	case KindApproval:
		var v Approval
		err = json.Unmarshal(data, &v)
		cfg = v
	default:
		return nil, fmt.Errorf("unknown activity kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s config: %w", kind, err)
	}
	return cfg, nil
}
