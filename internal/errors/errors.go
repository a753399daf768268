// Package errors provides centralized error definitions and error handling
// utilities for stageflow. It defines the error taxonomy of the workflow
// engine, error constructors with context wrapping, and the retryability
// classification used by the retry engine.
//
// # Error Types
//
// Four categories of errors exist in the engine:
//
//   - TransitionError: illegal state-machine calls. These are
//     programming-contract violations, raised synchronously and never retried.
//   - PersistenceError: checkpoint read/write failures. Always carries the
//     underlying cause. Absence of a snapshot is not an error and is
//     represented by a nil result, distinct from a corrupt snapshot which
//     yields a SnapshotFormatError.
//   - SnapshotFormatError: a snapshot or checkpoint file exists but is
//     missing required fields or cannot be parsed.
//   - ExecutionError: a failure reported by the external step runner,
//     captured as {code, message, retry count} and persisted into the
//     interim checkpoint before being returned to the caller.
//
// # Retryability
//
// Only errors classified as transient are eligible for automatic re-attempt.
// An error is retryable when it carries an explicit retryable flag
// (ExecutionError.Retryable) or when its message matches a known transient
// signature: timeouts, rate limiting (429), connection resets, and DNS
// failures. Everything else fails on the first attempt.
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrCheckpointNotFound) { ... }
//
//	var transErr *errors.TransitionError
//	if errors.As(err, &transErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrCheckpointNotFound indicates that a per-step checkpoint file does
	// not exist. Callers treat this as "nothing recorded", not as a failure.
	ErrCheckpointNotFound = New("checkpoint not found")
	// ErrSnapshotNotFound indicates that no workflow snapshot exists on disk.
	ErrSnapshotNotFound = New("workflow snapshot not found")
	// ErrSnapshotNotResumable indicates a snapshot exists but was not
	// written with the resumable flag set.
	ErrSnapshotNotResumable = New("workflow snapshot is not resumable")
	// ErrManualOutputNotFound indicates that no manual output artifact
	// exists for a step.
	ErrManualOutputNotFound = New("manual output not found")
	// ErrWorkflowHalted indicates that the run stopped on a step failure.
	ErrWorkflowHalted = New("workflow halted")
)

// -----------------------------------------------------------------------------
// Transition Errors
// -----------------------------------------------------------------------------

// TransitionError reports an illegal state-machine call, such as completing
// a step that was never started. Transition errors are contract violations:
// they are never retried and indicate a bug in the caller.
type TransitionError struct {
	// Op is the attempted operation ("start", "complete", "skip", "goto").
	Op string
	// StepID identifies the step the operation targeted.
	StepID string
	// Status is the step's actual status at the time of the call.
	Status string
}

// NewTransitionError creates a TransitionError for the given operation.
func NewTransitionError(op, stepID, status string) *TransitionError {
	return &TransitionError{Op: op, StepID: stepID, Status: status}
}

// Error returns the formatted error message.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: cannot %s step %q in status %q", e.Op, e.StepID, e.Status)
}

// Is reports whether this error matches the target.
func (e *TransitionError) Is(target error) bool {
	_, ok := target.(*TransitionError)
	return ok
}

// -----------------------------------------------------------------------------
// Persistence Errors
// -----------------------------------------------------------------------------

// PersistenceError reports a checkpoint read, write, or delete failure.
// It always wraps the underlying filesystem or encoding error.
type PersistenceError struct {
	// Op is the failed operation ("save", "load", "clear").
	Op string
	// Path is the file the operation targeted.
	Path  string
	cause error
}

// NewPersistenceError creates a PersistenceError wrapping cause.
func NewPersistenceError(op, path string, cause error) *PersistenceError {
	return &PersistenceError{Op: op, Path: path, cause: cause}
}

// Error returns the formatted error message.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint %s failed for %s: %v", e.Op, e.Path, e.cause)
}

// Unwrap returns the underlying cause.
func (e *PersistenceError) Unwrap() error {
	return e.cause
}

// SnapshotFormatError reports a snapshot or checkpoint file that exists but
// does not conform to any known schema. This is deliberately distinct from
// absence: a missing snapshot is a normal condition, a corrupt one is not.
type SnapshotFormatError struct {
	// Path is the offending file.
	Path string
	// Missing lists the required fields that were absent, if any.
	Missing []string
	cause   error
}

// NewSnapshotFormatError creates a SnapshotFormatError.
func NewSnapshotFormatError(path string, missing []string, cause error) *SnapshotFormatError {
	return &SnapshotFormatError{Path: path, Missing: missing, cause: cause}
}

// Error returns the formatted error message.
func (e *SnapshotFormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("invalid snapshot %s: missing required fields: %s", e.Path, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("invalid snapshot %s: %v", e.Path, e.cause)
}

// Unwrap returns the underlying cause, if any.
func (e *SnapshotFormatError) Unwrap() error {
	return e.cause
}

// -----------------------------------------------------------------------------
// Execution Errors
// -----------------------------------------------------------------------------

// ExecutionError reports a failure from the external step runner. It carries
// the structured fields persisted into the in-progress checkpoint so that a
// later resume can surface what went wrong and how many times it was tried.
type ExecutionError struct {
	// StepID identifies the step that failed.
	StepID string
	// Code is a machine-readable failure code (e.g. "RUNNER_TIMEOUT").
	Code string
	// Message is the human-readable failure description.
	Message string
	// RetryCount is the number of retries already performed when the
	// error was recorded.
	RetryCount int
	// Retryable marks the error as transient. The retry engine honors
	// this flag before falling back to signature matching.
	Retryable bool
	cause     error
}

// NewExecutionError creates an ExecutionError for the given step.
func NewExecutionError(stepID, code, message string) *ExecutionError {
	return &ExecutionError{StepID: stepID, Code: code, Message: message}
}

// WithCause attaches the underlying error.
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	e.cause = cause
	return e
}

// WithRetryable sets the explicit retryable flag.
func (e *ExecutionError) WithRetryable(r bool) *ExecutionError {
	e.Retryable = r
	return e
}

// WithRetryCount records how many retries preceded this error.
func (e *ExecutionError) WithRetryCount(n int) *ExecutionError {
	e.RetryCount = n
	return e
}

// Error returns the formatted error message.
func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("step %s failed [%s]: %s", e.StepID, e.Code, e.Message)
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *ExecutionError) Unwrap() error {
	return e.cause
}

// IsRetryable reports the explicit retryable flag.
func (e *ExecutionError) IsRetryable() bool {
	return e.Retryable
}

// Is reports whether this error matches the target.
func (e *ExecutionError) Is(target error) bool {
	_, ok := target.(*ExecutionError)
	return ok
}

// -----------------------------------------------------------------------------
// Retryability Classification
// -----------------------------------------------------------------------------

// transientSignatures are substrings that mark an error message as a known
// transient condition. Matching is case-insensitive.
var transientSignatures = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"rate limit",
	"too many requests",
	"429",
	"connection reset",
	"econnreset",
	"connection refused",
	"no such host",
	"temporary failure in name resolution",
}

// retryable is implemented by errors that carry an explicit retryable flag.
type retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether err represents a transient condition that may
// succeed on retry. An explicit flag on the error takes precedence over
// message signature matching, so a domain error marked non-retryable is
// never retried even if its message mentions a timeout.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r retryable
	if As(err, &r) {
		return r.IsRetryable()
	}

	return IsTransientMessage(err.Error())
}

// IsTransientMessage reports whether msg matches a known transient failure
// signature: timeouts, rate limiting, connection resets, or DNS failures.
func IsTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, sig := range transientSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
