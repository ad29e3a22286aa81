// Package apperr holds the error kinds shared by the sync engine, the
// scheduler and the API handlers. Callers classify with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks remote throttling or timeouts. Retried with backoff.
	ErrTransient = errors.New("transient remote error")

	// ErrFatal aborts the current run only.
	ErrFatal = errors.New("fatal remote error")

	// ErrValidation is invalid caller input; no run is attempted.
	ErrValidation = errors.New("validation error")

	// ErrCapacity is returned when the scheduler already holds its maximum number of triggers.
	ErrCapacity = errors.New("scheduler capacity reached")

	// ErrNotFound is returned for unknown trigger ids.
	ErrNotFound = errors.New("not found")
)

// Transient wraps a message as ErrTransient.
func Transient(format string, args ...interface{}) error {
	return wrap(ErrTransient, format, args...)
}

// Fatal wraps a message as ErrFatal.
func Fatal(format string, args ...interface{}) error {
	return wrap(ErrFatal, format, args...)
}

// Validation wraps a message as ErrValidation.
func Validation(format string, args ...interface{}) error {
	return wrap(ErrValidation, format, args...)
}

// Capacity wraps a message as ErrCapacity.
func Capacity(format string, args ...interface{}) error {
	return wrap(ErrCapacity, format, args...)
}

// NotFound wraps a message as ErrNotFound.
func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

// Escalate turns any error into a fatal one, keeping the original in the chain.
func Escalate(err error) error {
	if err == nil || errors.Is(err, ErrFatal) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// IsRecoverable reports whether err is a scheduler bookkeeping error the
// caller can surface as a structured failure.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrCapacity) || errors.Is(err, ErrNotFound)
}

func wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
