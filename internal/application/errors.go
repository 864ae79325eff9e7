package application

import (
	"errors"
	"fmt"

	"github.com/example/booking-engine/internal/persistence"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("application: not found")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// ConflictError reports that an operation lost to concurrent state: a full
// slot, a stale status check, or a resource still referenced elsewhere.
type ConflictError struct {
	Reason string
}

// Error implements the error interface.
func (c *ConflictError) Error() string {
	if c == nil || c.Reason == "" {
		return "conflict"
	}
	return "conflict: " + c.Reason
}

// mapRepositoryError translates persistence sentinels into service level
// errors, naming the entity for operator-facing messages.
func mapRepositoryError(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	case errors.Is(err, persistence.ErrDuplicate):
		return &ConflictError{Reason: entity + " already exists"}
	case errors.Is(err, persistence.ErrConflict):
		return &ConflictError{Reason: err.Error()}
	default:
		return err
	}
}
