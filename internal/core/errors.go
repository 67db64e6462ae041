package core

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StateError reports an operation that is not allowed in the current state,
// such as repaying a loan twice.
type StateError struct {
	Op     string
	Reason string
	// Count is the number of blocking references, when relevant.
	Count int
}

func (e *StateError) Error() string {
	if e.Count > 0 {
		return fmt.Sprintf("%s: %s (%d references)", e.Op, e.Reason, e.Count)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsState(err error) bool {
	var s *StateError
	return errors.As(err, &s)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
