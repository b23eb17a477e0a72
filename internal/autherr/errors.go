// Package autherr defines the caller-facing outcomes of the credential and session flows.
// Handlers map them to HTTP status codes; anything else is an unexpected failure.
package autherr

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCode is returned for an unknown, superseded, consumed, or expired single-use code.
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrInvalidToken is returned for a malformed, unsigned or expired token, or one whose device session is gone.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrAlreadyConfirmed is returned when the principal's email is already confirmed.
	ErrAlreadyConfirmed = errors.New("email already confirmed")
	// ErrStateConflict is returned when a concurrent operation won the confirmation flip.
	ErrStateConflict = errors.New("state changed concurrently")
	// ErrForbidden is returned when a principal acts on another principal's device.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned for an unknown principal or device.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCredential is returned when the email or login is already registered.
	ErrDuplicateCredential = errors.New("email or login already registered")
	// ErrInvalidCredentials is returned by login for unknown principal, wrong password, or unconfirmed email alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// FieldError is one input problem reported back to the client.
type FieldError struct {
	Message string `json:"message"`
	Field   string `json:"field"`
}

// ValidationError carries field-level problems; handlers render it as 400.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError returns a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Message: message, Field: field}}}
}

// Add appends a field problem.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Message: message, Field: field})
}

// Empty reports whether no field problems were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsValidation returns the ValidationError in err's chain, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
