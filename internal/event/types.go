// Package event defines the typed events emitted by the workflow engine and
// the synchronous bus that delivers them. Events decouple the state machine,
// the retry engine, and the CLI/history listeners from each other.
package event

import (
	"time"

	"github.com/stageflow/stageflow/internal/step"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g. "step.started", "retry.attempt").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeStepStarted       = "step.started"
	TypeStepCompleted     = "step.completed"
	TypeStepSkipped       = "step.skipped"
	TypeStepReset         = "step.reset"
	TypeModeChanged       = "step.mode_changed"
	TypeWorkflowStarted   = "workflow.started"
	TypeWorkflowCompleted = "workflow.completed"
	TypeRetryAttempt      = "retry.attempt"
	TypeRetrySucceeded    = "retry.succeeded"
	TypeRetryFailed       = "retry.failed"
	TypeRetryExhausted    = "retry.exhausted"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Step Lifecycle Events
// -----------------------------------------------------------------------------

// StepStartedEvent is emitted when a step transitions pending -> in-progress.
type StepStartedEvent struct {
	baseEvent
	Step step.Step
}

// NewStepStartedEvent creates a StepStartedEvent.
func NewStepStartedEvent(s step.Step) StepStartedEvent {
	return StepStartedEvent{baseEvent: newBaseEvent(TypeStepStarted), Step: s}
}

// StepCompletedEvent is emitted when a step transitions in-progress -> completed.
type StepCompletedEvent struct {
	baseEvent
	Step     step.Step
	Duration time.Duration
}

// NewStepCompletedEvent creates a StepCompletedEvent.
func NewStepCompletedEvent(s step.Step, d time.Duration) StepCompletedEvent {
	return StepCompletedEvent{baseEvent: newBaseEvent(TypeStepCompleted), Step: s, Duration: d}
}

// StepSkippedEvent is emitted when a step is marked skipped.
type StepSkippedEvent struct {
	baseEvent
	Step step.Step
}

// NewStepSkippedEvent creates a StepSkippedEvent.
func NewStepSkippedEvent(s step.Step) StepSkippedEvent {
	return StepSkippedEvent{baseEvent: newBaseEvent(TypeStepSkipped), Step: s}
}

// StepResetEvent is emitted when a completed or skipped step is rewound to
// pending via an explicit go-to.
type StepResetEvent struct {
	baseEvent
	Step step.Step
}

// NewStepResetEvent creates a StepResetEvent.
func NewStepResetEvent(s step.Step) StepResetEvent {
	return StepResetEvent{baseEvent: newBaseEvent(TypeStepReset), Step: s}
}

// ModeChangedEvent is emitted when a step's automation mode actually changes.
// Setting the mode a step already has emits nothing.
type ModeChangedEvent struct {
	baseEvent
	Step step.Step
	Old  string
	New  string
}

// NewModeChangedEvent creates a ModeChangedEvent.
func NewModeChangedEvent(s step.Step, oldMode, newMode string) ModeChangedEvent {
	return ModeChangedEvent{baseEvent: newBaseEvent(TypeModeChanged), Step: s, Old: oldMode, New: newMode}
}

// -----------------------------------------------------------------------------
// Workflow Lifecycle Events
// -----------------------------------------------------------------------------

// WorkflowStartedEvent is emitted when the first step of a run starts.
type WorkflowStartedEvent struct {
	baseEvent
}

// NewWorkflowStartedEvent creates a WorkflowStartedEvent.
func NewWorkflowStartedEvent() WorkflowStartedEvent {
	return WorkflowStartedEvent{baseEvent: newBaseEvent(TypeWorkflowStarted)}
}

// WorkflowCompletedEvent is emitted when every step is completed or skipped.
type WorkflowCompletedEvent struct {
	baseEvent
	Completed int
	Skipped   int
}

// NewWorkflowCompletedEvent creates a WorkflowCompletedEvent.
func NewWorkflowCompletedEvent(completed, skipped int) WorkflowCompletedEvent {
	return WorkflowCompletedEvent{baseEvent: newBaseEvent(TypeWorkflowCompleted), Completed: completed, Skipped: skipped}
}

// -----------------------------------------------------------------------------
// Retry Events
// -----------------------------------------------------------------------------

// RetryAttemptEvent is emitted before each retry-engine attempt.
type RetryAttemptEvent struct {
	baseEvent
	Operation string
	Attempt   int
}

// NewRetryAttemptEvent creates a RetryAttemptEvent.
func NewRetryAttemptEvent(operation string, attempt int) RetryAttemptEvent {
	return RetryAttemptEvent{baseEvent: newBaseEvent(TypeRetryAttempt), Operation: operation, Attempt: attempt}
}

// RetrySucceededEvent is emitted when an attempt returns without error.
type RetrySucceededEvent struct {
	baseEvent
	Operation string
	Attempt   int
}

// NewRetrySucceededEvent creates a RetrySucceededEvent.
func NewRetrySucceededEvent(operation string, attempt int) RetrySucceededEvent {
	return RetrySucceededEvent{baseEvent: newBaseEvent(TypeRetrySucceeded), Operation: operation, Attempt: attempt}
}

// RetryFailedEvent is emitted when an attempt fails with a non-retryable
// error, ending the retry loop immediately.
type RetryFailedEvent struct {
	baseEvent
	Operation string
	Attempt   int
	Reason    string
}

// NewRetryFailedEvent creates a RetryFailedEvent.
func NewRetryFailedEvent(operation string, attempt int, reason string) RetryFailedEvent {
	return RetryFailedEvent{baseEvent: newBaseEvent(TypeRetryFailed), Operation: operation, Attempt: attempt, Reason: reason}
}

// RetryExhaustedEvent is emitted when the attempt budget is used up without
// a success.
type RetryExhaustedEvent struct {
	baseEvent
	Operation string
	Attempts  int
	Reason    string
}

// NewRetryExhaustedEvent creates a RetryExhaustedEvent.
func NewRetryExhaustedEvent(operation string, attempts int, reason string) RetryExhaustedEvent {
	return RetryExhaustedEvent{baseEvent: newBaseEvent(TypeRetryExhausted), Operation: operation, Attempts: attempts, Reason: reason}
}
