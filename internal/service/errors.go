// Package service provides business logic services for Helpdesk.
package service

import (
	"errors"
	"sort"
	"strings"
)

// Error kinds. Every error returned by a service unwraps to exactly one of these,
// so transports can map them with errors.Is.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrAuthentication = errors.New("authentication failed")
	ErrInternalError  = errors.New("internal server error")
)

// kindError is a sentinel with a specific message that belongs to a kind.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Common service errors.
var (
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = &kindError{msg: "user not found", kind: ErrNotFound}

	// ErrInvalidCredentials is returned for an unknown username, a wrong password
	// and an inactive account alike.
	ErrInvalidCredentials = &kindError{msg: "unable to log in with provided credentials", kind: ErrAuthentication}

	// ErrInvalidToken is returned when a presented token does not resolve to an active user.
	ErrInvalidToken = &kindError{msg: "invalid token", kind: ErrAuthentication}
)

// Validation messages.
const (
	msgRequired        = "This field is required."
	msgBlank           = "This field may not be blank."
	msgUsernameTaken   = "A user with that username already exists."
	msgUsernameInvalid = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	msgEmailInvalid    = "Enter a valid email address."
)

// ValidationError carries per-field messages. It unwraps to ErrValidation.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError creates a ValidationError with a single message.
func NewValidationError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

// Add appends a message for field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no messages were added.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], " "))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// errOrNil returns v as an error only when it holds messages.
func (e *ValidationError) errOrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}
