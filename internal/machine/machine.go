// Package machine implements the workflow state machine: per-step status and
// automation mode for the fixed pipeline, legal transition enforcement, and
// typed event emission on every mutation.
//
// State is held in fixed-size arrays indexed by step ordinal, so lookups
// cannot miss and no allocation happens on the transition path. All
// transitions are synchronous; events are delivered on the calling goroutine
// through an event.Bus, which isolates listener panics from the machine.
//
// Legal transitions:
//
//	pending     -> in-progress   (StartStep)
//	in-progress -> completed     (CompleteStep)
//	pending     -> skipped       (SkipStep)
//	in-progress -> skipped       (SkipStep)
//	completed   -> pending       (GoToStep, explicit rewind)
//	skipped     -> pending       (GoToStep, explicit rewind)
//
// Everything else is a TransitionError.
package machine

import (
	"sync"
	"time"

	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/event"
	"github.com/stageflow/stageflow/internal/step"
)

// Status is the lifecycle status of a single step.
type Status string

// Step statuses.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
)

// Mode is the per-step automation policy.
type Mode string

// Automation modes.
const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
	ModeSkip   Mode = "skip"
)

// StepState is the observable state of one step. Values returned by the
// machine are copies; mutating them has no effect on the machine.
type StepState struct {
	Step        step.Step
	Status      Status
	Mode        Mode
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
}

// Machine tracks the status of every pipeline step and enforces legal
// transitions. The zero value is not usable; construct with New.
type Machine struct {
	mu         sync.Mutex
	states     [step.Count]StepState
	current    step.Step
	globalMode Mode

	startedAt   *time.Time
	completedAt *time.Time

	bus *event.Bus
}

// New creates a Machine with every step pending in auto mode, publishing
// events to bus. The bus must not be nil.
func New(bus *event.Bus) *Machine {
	m := &Machine{
		current:    step.First(),
		globalMode: ModeAuto,
		bus:        bus,
	}
	for i := range m.states {
		m.states[i] = StepState{
			Step:   step.Step(i),
			Status: StatusPending,
			Mode:   ModeAuto,
		}
	}
	return m
}

// Bus returns the event bus the machine publishes to.
func (m *Machine) Bus() *event.Bus {
	return m.bus
}

// StartStep transitions s from pending to in-progress and makes it the
// current step. The first start of a run also marks the workflow started.
// Fails with a TransitionError unless s is pending.
func (m *Machine) StartStep(s step.Step) error {
	m.mu.Lock()
	st := &m.states[s]
	if st.Status != StatusPending {
		status := st.Status
		m.mu.Unlock()
		return errors.NewTransitionError("start", s.ID(), string(status))
	}

	now := time.Now()
	st.Status = StatusInProgress
	st.StartedAt = &now
	st.CompletedAt = nil
	st.Error = ""
	m.current = s

	workflowStarted := false
	if m.startedAt == nil {
		m.startedAt = &now
		workflowStarted = true
	}
	m.mu.Unlock()

	if workflowStarted {
		m.bus.Publish(event.NewWorkflowStartedEvent())
	}
	m.bus.Publish(event.NewStepStartedEvent(s))
	return nil
}

// CompleteStep transitions s from in-progress to completed.
// Fails with a TransitionError unless s is in-progress.
func (m *Machine) CompleteStep(s step.Step) error {
	m.mu.Lock()
	st := &m.states[s]
	if st.Status != StatusInProgress {
		status := st.Status
		m.mu.Unlock()
		return errors.NewTransitionError("complete", s.ID(), string(status))
	}

	now := time.Now()
	st.Status = StatusCompleted
	st.CompletedAt = &now
	st.Error = ""

	var duration time.Duration
	if st.StartedAt != nil {
		duration = now.Sub(*st.StartedAt)
	}

	completed, skipped, done := m.completionLocked()
	if done {
		m.completedAt = &now
	}
	m.mu.Unlock()

	m.bus.Publish(event.NewStepCompletedEvent(s, duration))
	if done {
		m.bus.Publish(event.NewWorkflowCompletedEvent(completed, skipped))
	}
	return nil
}

// SkipStep marks s skipped. Legal from pending or in-progress.
func (m *Machine) SkipStep(s step.Step) error {
	m.mu.Lock()
	st := &m.states[s]
	if st.Status != StatusPending && st.Status != StatusInProgress {
		status := st.Status
		m.mu.Unlock()
		return errors.NewTransitionError("skip", s.ID(), string(status))
	}

	now := time.Now()
	st.Status = StatusSkipped
	st.CompletedAt = &now
	st.Error = ""

	completed, skipped, done := m.completionLocked()
	if done {
		m.completedAt = &now
	}
	m.mu.Unlock()

	m.bus.Publish(event.NewStepSkippedEvent(s))
	if done {
		m.bus.Publish(event.NewWorkflowCompletedEvent(completed, skipped))
	}
	return nil
}

// GoToStep rewinds s to pending and makes it the current step. Legal only
// from completed or skipped; the rewind clears the step's timestamps and
// error, and clears workflow-level completion. Calling it on a pending step
// only moves the current position and emits nothing. Calling it on an
// in-progress step fails.
func (m *Machine) GoToStep(s step.Step) error {
	m.mu.Lock()
	st := &m.states[s]

	switch st.Status {
	case StatusPending:
		m.current = s
		m.mu.Unlock()
		return nil
	case StatusInProgress:
		m.mu.Unlock()
		return errors.NewTransitionError("goto", s.ID(), string(StatusInProgress))
	}

	st.Status = StatusPending
	st.StartedAt = nil
	st.CompletedAt = nil
	st.Error = ""
	m.current = s
	m.completedAt = nil
	m.mu.Unlock()

	m.bus.Publish(event.NewStepResetEvent(s))
	return nil
}

// SetMode sets the automation mode for s. Setting the mode a step already
// has is a no-op and emits no event.
func (m *Machine) SetMode(s step.Step, mode Mode) {
	m.mu.Lock()
	st := &m.states[s]
	if st.Mode == mode {
		m.mu.Unlock()
		return
	}
	old := st.Mode
	st.Mode = mode
	m.mu.Unlock()

	m.bus.Publish(event.NewModeChangedEvent(s, string(old), string(mode)))
}

// SetGlobalMode sets the default automation mode and applies it to every
// step still pending. Steps that already ran keep their history.
func (m *Machine) SetGlobalMode(mode Mode) {
	m.mu.Lock()
	m.globalMode = mode
	var changed []struct {
		s   step.Step
		old Mode
	}
	for i := range m.states {
		st := &m.states[i]
		if st.Status == StatusPending && st.Mode != mode {
			changed = append(changed, struct {
				s   step.Step
				old Mode
			}{step.Step(i), st.Mode})
			st.Mode = mode
		}
	}
	m.mu.Unlock()

	for _, c := range changed {
		m.bus.Publish(event.NewModeChangedEvent(c.s, string(c.old), string(mode)))
	}
}

// RecordFailure stores an error message on an in-progress step without
// changing its status. The message surfaces in snapshots and resume info.
func (m *Machine) RecordFailure(s step.Step, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s].Error = msg
}

// CurrentStep returns the step the workflow is positioned on.
func (m *Machine) CurrentStep() step.Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// StateOf returns a copy of the state of s.
func (m *Machine) StateOf(s step.Step) StepState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[s]
}

// StatusOf returns the status of s.
func (m *Machine) StatusOf(s step.Step) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[s].Status
}

// ModeOf returns the effective automation mode of s.
func (m *Machine) ModeOf(s step.Step) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[s].Mode
}

// GlobalMode returns the workflow-level default automation mode.
func (m *Machine) GlobalMode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globalMode
}

// States returns a copy of every step's state, in pipeline order.
func (m *Machine) States() []StepState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StepState, step.Count)
	copy(out, m.states[:])
	return out
}

// StartedAt returns when the first step started, or nil before any start.
func (m *Machine) StartedAt() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

// CompletedAt returns when the workflow finished, or nil while unfinished.
func (m *Machine) CompletedAt() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completedAt
}

// IsStarted reports whether any step has left pending.
func (m *Machine) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.states {
		if m.states[i].Status != StatusPending {
			return true
		}
	}
	return false
}

// IsComplete reports whether every step is completed or skipped.
func (m *Machine) IsComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _, done := m.completionLocked()
	return done
}

// completionLocked counts completed and skipped steps and reports whether
// the workflow is finished. Callers must hold m.mu.
func (m *Machine) completionLocked() (completed, skipped int, done bool) {
	for i := range m.states {
		switch m.states[i].Status {
		case StatusCompleted:
			completed++
		case StatusSkipped:
			skipped++
		}
	}
	return completed, skipped, completed+skipped == step.Count
}
