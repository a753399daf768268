// Package controller exposes the discrete user actions of an interactive
// workflow session: skipping the current step, stepping back, switching
// automation modes, pausing, and resuming. The legal action set is computed
// from the state machine's current position and status, and every action
// executes purely in terms of state-machine and checkpoint calls, so any
// frontend (CLI flags today, a TUI tomorrow) can drive it.
package controller

import (
	"github.com/stageflow/stageflow/internal/checkpoint"
	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/executor"
	"github.com/stageflow/stageflow/internal/machine"
	"github.com/stageflow/stageflow/internal/resume"
	"github.com/stageflow/stageflow/internal/step"
)

// Action identifies one user-invokable operation.
type Action string

// User actions.
const (
	ActionSkip    Action = "skip"
	ActionBack    Action = "back"
	ActionSetMode Action = "set-mode"
	ActionPause   Action = "pause"
	ActionResume  Action = "resume"
)

// Controller computes and executes user actions against a workflow.
type Controller struct {
	machine     *machine.Machine
	store       *checkpoint.Store
	coordinator *resume.Coordinator
	project     checkpoint.ProjectInfo
}

// New creates a Controller.
func New(m *machine.Machine, store *checkpoint.Store, coordinator *resume.Coordinator, project checkpoint.ProjectInfo) *Controller {
	return &Controller{
		machine:     m,
		store:       store,
		coordinator: coordinator,
		project:     project,
	}
}

// AvailableActions returns the actions that are legal right now:
//
//   - skip: the current step is pending or in-progress
//   - back: not on the first step, and the previous step can be rewound
//   - set-mode: always available
//   - pause: the workflow has started and is not complete
//   - resume: a resumable snapshot exists on disk
func (c *Controller) AvailableActions() []Action {
	actions := []Action{ActionSetMode}

	current := c.machine.CurrentStep()
	switch c.machine.StatusOf(current) {
	case machine.StatusPending, machine.StatusInProgress:
		actions = append(actions, ActionSkip)
	}

	if current != step.First() {
		prev := step.Step(int(current) - 1)
		switch c.machine.StatusOf(prev) {
		case machine.StatusCompleted, machine.StatusSkipped:
			actions = append(actions, ActionBack)
		}
	}

	if c.machine.IsStarted() && !c.machine.IsComplete() {
		actions = append(actions, ActionPause)
	}

	if c.coordinator.DetectResumable() {
		actions = append(actions, ActionResume)
	}

	return actions
}

// Skip marks the current step skipped without executing it.
func (c *Controller) Skip() error {
	return c.machine.SkipStep(c.machine.CurrentStep())
}

// Back rewinds to the previous step, resetting it to pending so it can be
// re-executed. Fails on the first step, or when the previous step is not
// in a rewindable status.
func (c *Controller) Back() error {
	current := c.machine.CurrentStep()
	if current == step.First() {
		return errors.NewTransitionError("back", current.ID(), string(c.machine.StatusOf(current)))
	}
	return c.machine.GoToStep(step.Step(int(current) - 1))
}

// SetStepMode changes one step's automation mode.
func (c *Controller) SetStepMode(s step.Step, mode machine.Mode) {
	c.machine.SetMode(s, mode)
}

// SetGlobalMode changes the default automation mode for all pending steps.
func (c *Controller) SetGlobalMode(mode machine.Mode) {
	c.machine.SetGlobalMode(mode)
}

// Pause persists a resumable snapshot of current progress so the session
// can be closed and picked up later with Resume.
func (c *Controller) Pause(wctx *executor.Context) error {
	snap := checkpoint.Capture(c.machine, c.project, wctx.Outputs.Completed(), "", nil, true)
	return c.store.SaveSnapshot(snap)
}

// Resume replays the latest resumable snapshot into the fresh machine m.
// See resume.Coordinator.Resume for replay semantics.
func (c *Controller) Resume(m *machine.Machine) (*resume.Result, error) {
	return c.coordinator.Resume(m)
}
