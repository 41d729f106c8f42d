// Package domain defines core types, interfaces, and errors for the audit
// trail engine.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TransportError indicates the remote service call itself failed. It is
// recovered into a degraded result at the fetch or resolve boundary and
// surfaced through the error-state channel, never propagated upward from a
// fetch orchestrator.
type TransportError struct {
	Op  string // remote operation that failed, e.g. "run query"
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedRecordError indicates a row or detail payload could not be
// converted. Malformed items are skipped individually and logged, never
// fatal to the batch that contains them.
type MalformedRecordError struct {
	Message string
}

func (e *MalformedRecordError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrTransport wraps a failed remote call.
func ErrTransport(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// ErrMalformedRecord creates a MalformedRecordError with a formatted message.
func ErrMalformedRecord(format string, args ...interface{}) *MalformedRecordError {
	return &MalformedRecordError{Message: fmt.Sprintf(format, args...)}
}
