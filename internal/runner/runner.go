// Package runner drives a single pass over the fixed pipeline, respecting
// each step's automation mode and halting the whole run on the first
// unrecoverable failure.
//
// The runner itself never retries. Transient-failure re-attempts are the
// retry engine's job, composed around the external runner call inside the
// step executor (see executor.Executor.WithRetry).
package runner

import (
	"context"

	"github.com/stageflow/stageflow/internal/checkpoint"
	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/executor"
	"github.com/stageflow/stageflow/internal/logging"
	"github.com/stageflow/stageflow/internal/machine"
	"github.com/stageflow/stageflow/internal/step"
)

// ManualDetector loads an externally produced output for a manual-mode
// step. It returns errors.ErrManualOutputNotFound when no artifact exists.
type ManualDetector interface {
	Load(s step.Step) (string, error)
}

// ProgressSink receives step-level progress for UI rendering. The runner
// reports ordinals and totals so sinks need no pipeline knowledge.
// Implementations must not block.
type ProgressSink interface {
	OnStepStart(s step.Step, ordinal, total int)
	OnStepDone(s step.Step, ordinal, total int, skipped bool)
}

// NopSink is a ProgressSink that discards all progress.
type NopSink struct{}

// OnStepStart implements ProgressSink.
func (NopSink) OnStepStart(step.Step, int, int) {}

// OnStepDone implements ProgressSink.
func (NopSink) OnStepDone(step.Step, int, int, bool) {}

// Runner iterates the pipeline once per Run invocation.
type Runner struct {
	machine  *machine.Machine
	executor *executor.Executor
	store    *checkpoint.Store
	manual   ManualDetector
	sink     ProgressSink
	project  checkpoint.ProjectInfo
	logger   *logging.Logger
}

// Options configures optional Runner collaborators.
type Options struct {
	// Manual detects externally produced outputs for manual-mode steps.
	// Nil disables manual detection; manual steps then execute
	// automatically.
	Manual ManualDetector
	// Sink receives progress events. Nil discards them.
	Sink ProgressSink
	// Logger defaults to a no-op logger.
	Logger *logging.Logger
}

// New creates a Runner for the given project.
func New(m *machine.Machine, exec *executor.Executor, store *checkpoint.Store, project checkpoint.ProjectInfo, opts Options) *Runner {
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		machine:  m,
		executor: exec,
		store:    store,
		manual:   opts.Manual,
		sink:     sink,
		project:  project,
		logger:   logger,
	}
}

// Run iterates the pipeline in order exactly once. Already completed or
// skipped steps are bypassed, which makes re-entry after a resume
// idempotent. A step whose effective mode is skip is marked skipped without
// execution. A manual step first consults the manual-output detector and
// adopts its artifact if present, otherwise it falls through to automatic
// execution. The first failure halts the run, persists a resumable
// snapshot, and surfaces the failing step and error.
func (r *Runner) Run(ctx context.Context, wctx *executor.Context) error {
	for _, s := range step.All() {
		switch r.machine.StatusOf(s) {
		case machine.StatusCompleted, machine.StatusSkipped:
			continue
		}

		if err := ctx.Err(); err != nil {
			return r.halt(s, wctx, errors.NewExecutionError(s.ID(), "CANCELED", err.Error()).WithCause(err))
		}

		mode := r.machine.ModeOf(s)
		if mode == machine.ModeSkip {
			if err := r.machine.SkipStep(s); err != nil {
				return err
			}
			r.sink.OnStepDone(s, s.Ordinal(), step.Count, true)
			continue
		}

		if mode == machine.ModeManual && r.manual != nil {
			output, err := r.manual.Load(s)
			switch {
			case err == nil:
				if err := r.executor.AdoptManualOutput(s, output, wctx); err != nil {
					return err
				}
				r.sink.OnStepDone(s, s.Ordinal(), step.Count, false)
				continue
			case errors.Is(err, errors.ErrManualOutputNotFound):
				// No artifact yet: fall through to automatic execution
				// rather than hang waiting for one.
				r.logger.Debug("no manual output, executing automatically", "step", s.ID())
			default:
				return r.halt(s, wctx, errors.NewExecutionError(s.ID(), "MANUAL_LOAD_ERROR", err.Error()).WithCause(err))
			}
		}

		r.sink.OnStepStart(s, s.Ordinal(), step.Count)
		if _, err := r.executor.ExecuteStep(ctx, s, wctx); err != nil {
			return r.halt(s, wctx, err)
		}
		r.sink.OnStepDone(s, s.Ordinal(), step.Count, false)
	}

	return nil
}

// halt persists a resumable snapshot for the failed step and returns the
// halting error. A halted run must always leave recovery data behind.
func (r *Runner) halt(s step.Step, wctx *executor.Context, err error) error {
	var snapErr *checkpoint.SnapshotError
	var execErr *errors.ExecutionError
	if errors.As(err, &execErr) {
		snapErr = &checkpoint.SnapshotError{
			StepID:     execErr.StepID,
			Code:       execErr.Code,
			Message:    execErr.Message,
			RetryCount: execErr.RetryCount,
		}
	} else {
		snapErr = &checkpoint.SnapshotError{
			StepID:  s.ID(),
			Code:    "UNKNOWN",
			Message: err.Error(),
		}
	}

	snap := checkpoint.Capture(r.machine, r.project, wctx.Outputs.Completed(), "", snapErr, true)
	if saveErr := r.store.SaveSnapshot(snap); saveErr != nil {
		r.logger.Error("failed to save halt snapshot", "error", saveErr)
		return errors.Join(err, saveErr)
	}

	r.logger.Warn("workflow halted", "step", s.ID(), "error", err.Error())
	return errors.Wrapf(err, "workflow halted at step %s", s.ID())
}
