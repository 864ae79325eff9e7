package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is created twice.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConflict is returned when an operation loses to concurrent state,
	// such as booking the last unit of a full slot or deleting a resource
	// that still has bookings.
	ErrConflict = errors.New("persistence: conflict")
	// ErrConstraintViolation is returned when stored data would violate a
	// schema constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
)
