package workflow

import "github.com/spec-kit/onboarding-service/internal/domain"

// Case types served by the built-in catalog.
const (
	TypeAccountOpening     = "account_opening"
	TypeBusinessOnboarding = "business_onboarding"
	TypeKYCRefresh         = "kyc_refresh"
	TypeCreditApplication  = "credit_application"
)

// DefaultTemplates returns the templates compiled into the service.
func DefaultTemplates() []domain.WorkflowTemplate {
	return []domain.WorkflowTemplate{
		{
			ID:      "tpl-account-opening",
			Type:    TypeAccountOpening,
			Name:    "Retail account opening",
			SLADays: 5,
			Activities: []domain.ActivityDef{
				{
					Key: "collect_documents", Name: "Collect identity documents", SequenceOrder: 1,
					Mandatory: true, EstimatedHours: 24, AssignRole: "operator",
					Config: domain.DocumentReview{Checklist: []domain.ChecklistItemDef{
						{Item: "Identity document", Required: true},
						{Item: "Tax code", Required: true},
						{Item: "Proof of address", Required: false},
					}},
				},
				{
					Key: "verify_identity", Name: "Verify customer identity", SequenceOrder: 2,
					Mandatory: true, DependsOn: []string{"collect_documents"}, EstimatedHours: 8, AssignRole: "operator",
					Config: domain.VerifyIdentity{Method: "video_call"},
				},
				{
					Key: "kyc_check", Name: "KYC check", SequenceOrder: 3,
					Mandatory: true, DependsOn: []string{"verify_identity"}, EstimatedHours: 1,
					Config: domain.SystemAction{ActionType: "kyc_check", AutoExecute: true},
				},
				{
					Key: "aml_screening", Name: "AML screening", SequenceOrder: 4,
					Mandatory: true, DependsOn: []string{"verify_identity"}, EstimatedHours: 1,
					Config: domain.SystemAction{ActionType: "aml_screening", AutoExecute: true},
				},
				{
					Key: "welcome_call", Name: "Welcome call", SequenceOrder: 5,
					Mandatory: false, DependsOn: []string{"kyc_check", "aml_screening"}, EstimatedHours: 24, AssignRole: "operator",
					Config: domain.CallCustomer{Script: "welcome"},
				},
				{
					Key: "final_approval", Name: "Final approval", SequenceOrder: 6,
					Mandatory: true, DependsOn: []string{"kyc_check", "aml_screening"}, EstimatedHours: 8, AssignRole: "manager",
					Config: domain.Approval{MinApprovals: 1},
				},
			},
		},
		{
			ID:      "tpl-business-onboarding",
			Type:    TypeBusinessOnboarding,
			Name:    "Business customer onboarding",
			SLADays: 10,
			Activities: []domain.ActivityDef{
				{
					Key: "company_documents", Name: "Review company documents", SequenceOrder: 1,
					Mandatory: true, EstimatedHours: 48, AssignRole: "operator",
					Config: domain.DocumentReview{Checklist: []domain.ChecklistItemDef{
						{Item: "Chamber of commerce extract", Required: true},
						{Item: "Articles of association", Required: true},
						{Item: "Latest financial statements", Required: true},
					}},
				},
				{
					Key: "verify_representative", Name: "Verify legal representative", SequenceOrder: 2,
					Mandatory: true, EstimatedHours: 8, AssignRole: "operator",
					Config: domain.VerifyIdentity{Method: "branch_visit", Checklist: []domain.ChecklistItemDef{
						{Item: "Representative ID", Required: true},
					}},
				},
				{
					Key: "beneficial_owners", Name: "Identify beneficial owners", SequenceOrder: 3,
					Mandatory: true, DependsOn: []string{"company_documents"}, EstimatedHours: 16, AssignRole: "compliance",
					Config: domain.DocumentReview{Checklist: []domain.ChecklistItemDef{
						{Item: "Ownership chart", Required: true},
					}},
				},
				{
					Key: "aml_screening", Name: "AML screening", SequenceOrder: 4,
					Mandatory: true, DependsOn: []string{"beneficial_owners", "verify_representative"}, EstimatedHours: 1,
					Config: domain.SystemAction{ActionType: "aml_screening", AutoExecute: true},
				},
				{
					Key: "credit_check", Name: "Credit bureau check", SequenceOrder: 5,
					Mandatory: true, DependsOn: []string{"company_documents"}, EstimatedHours: 1,
					Config: domain.SystemAction{ActionType: "credit_check", AutoExecute: true},
				},
				{
					Key: "compliance_review", Name: "Compliance review", SequenceOrder: 6,
					Mandatory: true, DependsOn: []string{"aml_screening", "credit_check"}, EstimatedHours: 24, AssignRole: "compliance",
					Config: domain.Approval{MinApprovals: 1},
				},
				{
					Key: "relationship_call", Name: "Relationship manager call", SequenceOrder: 7,
					Mandatory: false, DependsOn: []string{"compliance_review"}, EstimatedHours: 24, AssignRole: "manager",
					Config: domain.CallCustomer{Script: "business_welcome"},
				},
			},
		},
		{
			ID:      "tpl-kyc-refresh",
			Type:    TypeKYCRefresh,
			Name:    "Periodic KYC refresh",
			SLADays: 15,
			Activities: []domain.ActivityDef{
				{
					Key: "request_update", Name: "Ask customer for updated data", SequenceOrder: 1,
					Mandatory: true, EstimatedHours: 24, AssignRole: "operator",
					Config: domain.CallCustomer{Script: "kyc_refresh"},
				},
				{
					Key: "review_documents", Name: "Review updated documents", SequenceOrder: 2,
					Mandatory: true, DependsOn: []string{"request_update"}, EstimatedHours: 16, AssignRole: "compliance",
					Config: domain.DocumentReview{Checklist: []domain.ChecklistItemDef{
						{Item: "Valid identity document", Required: true},
						{Item: "Updated questionnaire", Required: true},
					}},
				},
				{
					Key: "aml_screening", Name: "AML screening", SequenceOrder: 3,
					Mandatory: true, DependsOn: []string{"review_documents"}, EstimatedHours: 1,
					Config: domain.SystemAction{ActionType: "aml_screening", AutoExecute: true},
				},
				{
					Key: "sign_off", Name: "Compliance sign-off", SequenceOrder: 4,
					Mandatory: true, DependsOn: []string{"aml_screening"}, EstimatedHours: 8, AssignRole: "compliance",
					Config: domain.Approval{MinApprovals: 1},
				},
			},
		},
		{
			ID:      "tpl-credit-application",
			Type:    TypeCreditApplication,
			Name:    "Consumer credit application",
			SLADays: 7,
			Activities: []domain.ActivityDef{
				{
					Key: "income_documents", Name: "Collect income documents", SequenceOrder: 1,
					Mandatory: true, EstimatedHours: 24, AssignRole: "operator",
					Config: domain.DocumentReview{Checklist: []domain.ChecklistItemDef{
						{Item: "Last two payslips", Required: true},
						{Item: "Tax return", Required: false},
					}},
				},
				{
					Key: "credit_check", Name: "Credit bureau check", SequenceOrder: 2,
					Mandatory: true, EstimatedHours: 1,
					Config: domain.SystemAction{ActionType: "credit_check", AutoExecute: true},
				},
				{
					Key: "affordability", Name: "Affordability assessment", SequenceOrder: 3,
					Mandatory: true, DependsOn: []string{"income_documents", "credit_check"}, EstimatedHours: 8, AssignRole: "operator",
					Config: domain.SystemAction{ActionType: "affordability_score"},
				},
				{
					Key: "credit_committee", Name: "Credit committee approval", SequenceOrder: 4,
					Mandatory: true, DependsOn: []string{"affordability"}, EstimatedHours: 24, AssignRole: "manager",
					Config: domain.Approval{MinApprovals: 2},
				},
			},
		},
	}
}
