package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes raised by the onboarding core.
const (
	CodeTemplateNotFound  = "TEMPLATE_NOT_FOUND"
	CodeInvalidTemplate   = "INVALID_TEMPLATE"
	CodeInvalidActivity   = "INVALID_ACTIVITY"
	CodeNoAvailableAgents = "NO_AVAILABLE_AGENTS"
	CodeStorageConflict   = "STORAGE_CONFLICT"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_FAILED"
	CodeConflict          = "CONFLICT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewTemplateNotFound reports a case type with no registered workflow template.
func NewTemplateNotFound(caseType string) error {
	return NewDomainError(CodeTemplateNotFound, fmt.Sprintf("no workflow template for type %q", caseType),
		http.StatusNotFound, map[string]any{"type": caseType})
}

// NewInvalidTemplate reports a structurally broken template (unknown dependency, cycle, ...).
func NewInvalidTemplate(templateID, reason string) error {
	return NewDomainError(CodeInvalidTemplate, fmt.Sprintf("template %q is malformed: %s", templateID, reason),
		http.StatusInternalServerError, map[string]any{"template_id": templateID})
}

// NewInvalidActivity reports an activity that does not belong to the case or cannot take the requested transition.
func NewInvalidActivity(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidActivity, message, http.StatusUnprocessableEntity, details)
}

// NewNoAvailableAgents reports a team with no active members to assign to.
func NewNoAvailableAgents(teamID string) error {
	return NewDomainError(CodeNoAvailableAgents, "no available agents in team",
		http.StatusConflict, map[string]any{"team_id": teamID})
}

// NewStorageConflict reports an optimistic-concurrency failure.
func NewStorageConflict(resource string, err error) error {
	return &DomainError{
		Code:       CodeStorageConflict,
		Message:    fmt.Sprintf("%s was modified concurrently", resource),
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &DomainError{
			Code:       CodeNotFound,
			Message:    "resource not found",
			HTTPStatus: http.StatusNotFound,
			Details:    map[string]any{},
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts err into a DomainError, keeping nil as nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
