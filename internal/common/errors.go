// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound        = errors.New("not found")
	ErrDuplicateEntry  = errors.New("duplicate entry")
	ErrVersionConflict = errors.New("version conflict")
	ErrStorageBusy     = errors.New("storage busy")

	// Pipeline errors.
	ErrValidation         = errors.New("validation failed")
	ErrIncompleteScenario = errors.New("scenario incomplete")
	ErrCommitConflict     = errors.New("commit conflict")
	ErrScenarioClosed     = errors.New("scenario closed")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports a malformed request: an unknown scenario type, a
// parameter with the wrong shape, or an out-of-range value. It is surfaced to the
// caller immediately and never proceeds to apply.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a validation error for field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IncompleteScenarioError is returned when apply is requested before every
// required parameter is present and every linked prompt has been answered.
type IncompleteScenarioError struct {
	Missing       []string
	PendingLinked []string
}

func (e *IncompleteScenarioError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing parameters: "+strings.Join(e.Missing, ", "))
	}
	if len(e.PendingLinked) > 0 {
		parts = append(parts, "unanswered linked prompts: "+strings.Join(e.PendingLinked, ", "))
	}
	return "scenario incomplete: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrIncompleteScenario) match.
func (e *IncompleteScenarioError) Is(target error) bool {
	return target == ErrIncompleteScenario
}

// CommitConflictError reports that a delta could not be written, typically
// because an event it references changed or vanished after apply.
type CommitConflictError struct {
	Err     error
	EventID string
}

func (e *CommitConflictError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("commit conflict on event %s: %v", e.EventID, e.Err)
	}
	return fmt.Sprintf("commit conflict: %v", e.Err)
}

func (e *CommitConflictError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrCommitConflict) match.
func (e *CommitConflictError) Is(target error) bool {
	return target == ErrCommitConflict
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStorageBusy) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
