// Package resume detects interrupted workflow runs and replays their
// persisted snapshot into a fresh state machine, so the next invocation can
// offer "resume from step N" or "start fresh".
//
// Recovery data is treated as precious: the snapshot is destroyed only
// after a demonstrably successful replay. A failed resume leaves every
// checkpoint artifact in place.
package resume

import (
	"fmt"

	"github.com/stageflow/stageflow/internal/checkpoint"
	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/executor"
	"github.com/stageflow/stageflow/internal/logging"
	"github.com/stageflow/stageflow/internal/machine"
	"github.com/stageflow/stageflow/internal/step"
)

// Info is the user-facing summary of a resumable snapshot, derived purely
// by reading it; building an Info mutates nothing.
type Info struct {
	// CanResume is true iff a snapshot exists with the resumable flag set.
	CanResume bool
	// CurrentStepID is the step the halted run was positioned on.
	// Empty when CanResume is false.
	CurrentStepID string
	// CurrentStepName is the display name of that step.
	CurrentStepName string
	// CurrentOrdinal is its 1-based pipeline position. Zero when
	// CanResume is false.
	CurrentOrdinal int
	// CompletedCount is how many steps the halted run completed.
	CompletedCount int
	// TotalSteps is the pipeline length.
	TotalSteps int
	// ErrorMessage is the failure that halted the run, if one was recorded.
	ErrorMessage string
	// RetryCount is how many retries the failing step had consumed.
	RetryCount int
}

// Result is the outcome of a successful resume replay.
type Result struct {
	// ResumeStep is where execution continues: the failed step when the
	// snapshot carries error info, else the snapshot's current step,
	// advanced past any step that already finished.
	ResumeStep step.Step
	// Outputs holds the completed outputs rebuilt from the snapshot.
	Outputs *executor.Outputs
	// Project is the project info carried by the snapshot.
	Project checkpoint.ProjectInfo
}

// Coordinator inspects and replays workflow snapshots.
type Coordinator struct {
	store  *checkpoint.Store
	logger *logging.Logger
}

// New creates a Coordinator. A nil logger defaults to a no-op logger.
func New(store *checkpoint.Store, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Coordinator{store: store, logger: logger}
}

// DetectResumable reports whether a resumable snapshot exists. Corrupt or
// non-resumable snapshots report false.
func (c *Coordinator) DetectResumable() bool {
	snap, err := c.store.LoadLatestSnapshot()
	if err != nil || snap == nil {
		return false
	}
	return snap.Resumable
}

// ResumeInfo summarizes the latest snapshot without mutating anything.
// With no snapshot present the summary has CanResume=false and only
// TotalSteps populated. A corrupt snapshot is an error.
func (c *Coordinator) ResumeInfo() (*Info, error) {
	info := &Info{TotalSteps: step.Count}

	snap, err := c.store.LoadLatestSnapshot()
	if err != nil {
		return nil, err
	}
	if snap == nil || !snap.Resumable {
		return info, nil
	}

	info.CanResume = true
	info.CurrentStepID = snap.CurrentStep
	if s, err := step.FromID(snap.CurrentStep); err == nil {
		info.CurrentStepName = s.DisplayName()
		info.CurrentOrdinal = s.Ordinal()
	}
	for _, st := range snap.StepStatuses {
		if st.Status == string(machine.StatusCompleted) {
			info.CompletedCount++
		}
	}
	if snap.Error != nil {
		info.ErrorMessage = snap.Error.Message
		info.RetryCount = snap.Error.RetryCount
	}
	return info, nil
}

// Resume replays the latest snapshot into m, which must be fresh (every
// step pending). Completed steps are replayed via start+complete and
// skipped steps via skip, so replay goes through the same legality checks
// as live execution. The snapshot is cleared only after the whole replay
// succeeds; any replay failure leaves it on disk.
func (c *Coordinator) Resume(m *machine.Machine) (*Result, error) {
	snap, err := c.store.LoadLatestSnapshot()
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.ErrSnapshotNotFound
	}
	if !snap.Resumable {
		return nil, errors.ErrSnapshotNotResumable
	}

	for _, rec := range snap.StepStatuses {
		s, err := step.FromID(rec.StepID)
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot references unknown step")
		}

		if rec.Mode != "" {
			m.SetMode(s, machine.Mode(rec.Mode))
		}

		switch machine.Status(rec.Status) {
		case machine.StatusCompleted:
			if err := m.StartStep(s); err != nil {
				return nil, errors.Wrapf(err, "replay of step %s", s.ID())
			}
			if err := m.CompleteStep(s); err != nil {
				return nil, errors.Wrapf(err, "replay of step %s", s.ID())
			}
		case machine.StatusSkipped:
			if err := m.SkipStep(s); err != nil {
				return nil, errors.Wrapf(err, "replay of step %s", s.ID())
			}
		case machine.StatusPending, machine.StatusInProgress:
			// An in-progress step was interrupted mid-flight; it stays
			// pending so the runner re-executes it.
		default:
			return nil, fmt.Errorf("snapshot has unknown status %q for step %s", rec.Status, s.ID())
		}
	}

	outputs := executor.NewOutputs()
	for _, out := range snap.CompletedOutputs {
		s, err := step.FromID(out.StepID)
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot output references unknown step")
		}
		outputs.Set(s, out.Output)
	}

	resumeStep, err := c.resumePoint(snap)
	if err != nil {
		return nil, err
	}

	// A paused snapshot's current step may already be finished. Continue at
	// the next unfinished step rather than rewinding completed work; when
	// nothing is left the position stays where it is.
	positioned := false
	for s := resumeStep; s < step.Count; s++ {
		if m.StatusOf(s) == machine.StatusPending {
			resumeStep = s
			positioned = true
			break
		}
	}
	if positioned {
		if err := m.GoToStep(resumeStep); err != nil {
			return nil, errors.Wrapf(err, "positioning on resume step %s", resumeStep.ID())
		}
	}

	// Replay verified; recovery data is now safe to destroy.
	if err := c.store.ClearSnapshot(); err != nil {
		return nil, err
	}

	c.logger.Info("workflow resumed",
		"resume_step", resumeStep.ID(),
		"completed", len(snap.CompletedOutputs))

	return &Result{
		ResumeStep: resumeStep,
		Outputs:    outputs,
		Project:    snap.Project,
	}, nil
}

// resumePoint picks where execution continues: the failed step when error
// info is present, else the snapshot's current step.
func (c *Coordinator) resumePoint(snap *checkpoint.Snapshot) (step.Step, error) {
	id := snap.CurrentStep
	if snap.Error != nil && snap.Error.StepID != "" {
		id = snap.Error.StepID
	}
	s, err := step.FromID(id)
	if err != nil {
		return 0, errors.Wrapf(err, "snapshot resume point")
	}
	return s, nil
}

// StartFresh unconditionally deletes every checkpoint artifact and returns
// the first step as the new start point, whether or not anything existed.
func (c *Coordinator) StartFresh() (step.Step, error) {
	if err := c.store.ClearAll(); err != nil {
		return 0, err
	}
	c.logger.Info("checkpoints cleared, starting fresh")
	return step.First(), nil
}
