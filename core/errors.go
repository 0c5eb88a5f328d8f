package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when no task exists for the given id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskTerminal is returned when a mutation is attempted on a task
	// that already reached completed or failed.
	ErrTaskTerminal = errors.New("task already terminal")
)

// TransientError wraps a failure that is expected to succeed on retry:
// timeouts, rate limits, transient network conditions. The stage executor
// retries these with backoff up to its attempt cap.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Transientf formats and wraps a new TransientError.
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// FatalError wraps a failure a collaborator reported as non-retryable.
// The stage executor escalates these on first occurrence.
type FatalError struct {
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError. A nil err returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// Fatalf formats and wraps a new FatalError.
func Fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// ValidationError reports a malformed request. It is raised before a task is
// created and is never retried.
type ValidationError struct {
	Msg string
}

// Error implements the error interface.
func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// Validationf formats a new ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// CancellationError reports that a task was cancelled while running.
type CancellationError struct {
	Reason string
}

// Error implements the error interface.
func (e *CancellationError) Error() string { return "cancelled: " + e.Reason }

// Cancellation constructs a CancellationError with the given reason.
func Cancellation(reason string) error { return &CancellationError{Reason: reason} }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCancellation reports whether err is (or wraps) a CancellationError.
func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce)
}

// ErrorClass labels the failure bucket an error belongs to. It is what a
// failed task surfaces to callers instead of backend internals.
type ErrorClass string

// Recognized error classes.
const (
	ClassTransient    ErrorClass = "transient"
	ClassFatal        ErrorClass = "fatal"
	ClassValidation   ErrorClass = "validation"
	ClassCancellation ErrorClass = "cancelled"
	ClassUnknown      ErrorClass = "unknown"
)

// Classify maps an error onto its ErrorClass bucket.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case IsCancellation(err):
		return ClassCancellation
	case IsValidation(err):
		return ClassValidation
	case IsTransient(err):
		return ClassTransient
	case IsFatal(err):
		return ClassFatal
	default:
		return ClassUnknown
	}
}
