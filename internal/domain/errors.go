// Package domain holds the error taxonomy shared by the workflow core, the
// services and the HTTP layer. Callers classify errors with errors.Is against
// the sentinels below; the constructors only add context.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthorized: the actor is not the designated evaluator/manager for the entity.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidStateTransition: the requested transition does not match the current state.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrValidation: bad input, raised before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound: a referenced evaluation, period, session, question or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict: the row was modified concurrently (optimistic lock lost).
	ErrConflict = errors.New("concurrent modification")
)

func NotAuthorized(format string, args ...interface{}) error {
	return wrap(ErrNotAuthorized, format, args...)
}

func InvalidTransition(format string, args ...interface{}) error {
	return wrap(ErrInvalidStateTransition, format, args...)
}

func Validation(format string, args ...interface{}) error {
	return wrap(ErrValidation, format, args...)
}

func NotFound(entity string, id uint) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

func Conflict(format string, args ...interface{}) error {
	return wrap(ErrConflict, format, args...)
}

func wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
