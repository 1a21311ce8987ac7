package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain-specific errors for lifecycle validation.
var (
	// Task errors
	ErrTaskNotFound     = errors.New("task not found")
	ErrInvalidState     = errors.New("operation not allowed in current state")
	ErrClaimConflict    = errors.New("task already claimed")
	ErrConcurrentUpdate = errors.New("task was modified concurrently")
	ErrNotClaimant      = errors.New("caller does not hold the claim")
	ErrNotAssignee      = errors.New("caller is not an assignee of the task")

	// Directory errors
	ErrUserNotFound = errors.New("user not found")

	// Validation errors
	ErrValidation        = errors.New("validation failed")
	ErrUnauthenticated   = fmt.Errorf("%w: authenticated user is required", ErrValidation)
	ErrInvalidPriority   = fmt.Errorf("%w: invalid task priority", ErrValidation)
	ErrInvalidTarget     = fmt.Errorf("%w: invalid assignment target", ErrValidation)
	ErrInvalidDuration   = fmt.Errorf("%w: invalid duration", ErrValidation)
	ErrInvalidSchema     = fmt.Errorf("%w: invalid form schema", ErrValidation)
	ErrInvalidEscalation = fmt.Errorf("%w: invalid escalation config", ErrValidation)
)

// ValidationError carries per-field messages for a rejected form submission.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError builds a ValidationError from field errors.
func NewValidationError(fields map[string][]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Fields[name], "; ")))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

// Is lets errors.Is(err, ErrValidation) match field validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
