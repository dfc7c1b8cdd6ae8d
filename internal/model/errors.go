package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a tenant or one of its owned records does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMigrationStatusNotFound is returned when a status update names a
	// service that was never initialized for the tenant.
	ErrMigrationStatusNotFound = errors.New("migration status not found")

	// ErrConcurrentUpdate is returned when an optimistic concurrency check fails.
	ErrConcurrentUpdate = errors.New("concurrent update")

	// ErrMigrationInProgress is returned to a delivery that tries to claim a
	// migration another delivery is still running.
	ErrMigrationInProgress = errors.New("migration already in progress")
)

// ValidationError reports bad input to a command. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError is a shorthand used throughout the domain.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError reports a uniqueness violation, such as a duplicate tenant identifier.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Resource, e.Key)
}

// MigrationStatusNotFoundError names the uninitialized service.
type MigrationStatusNotFoundError struct {
	ServiceName string
}

func (e *MigrationStatusNotFoundError) Error() string {
	return fmt.Sprintf("migration status not found for service %q", e.ServiceName)
}

func (e *MigrationStatusNotFoundError) Is(target error) bool {
	return target == ErrMigrationStatusNotFound || target == ErrNotFound
}

// IsValidation reports whether err (or anything it wraps) is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err (or anything it wraps) is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
