// Package executor runs individual pipeline steps. It resolves each step's
// prompt from the workflow context, delegates execution to an external
// step-runner collaborator, and brackets the call with checkpoints: an
// interim in-progress record before the runner is invoked (so a crash
// mid-call still leaves a recoverable record) and a terminal record after.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/stageflow/stageflow/internal/checkpoint"
	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/logging"
	"github.com/stageflow/stageflow/internal/machine"
	"github.com/stageflow/stageflow/internal/retry"
	"github.com/stageflow/stageflow/internal/step"
)

// RunResult is what the external step runner produces for one step.
type RunResult struct {
	// Content is the step's output artifact.
	Content string
	// Metadata carries runner-specific details (model, token counts, ...).
	Metadata map[string]string
}

// Runner is the engine's only execution call-out. In production it shells
// out to an AI CLI; tests substitute any implementation. The runner owns
// timeout enforcement and must return a failure rather than hang.
type Runner interface {
	Run(ctx context.Context, s step.Step, prompt string) (*RunResult, error)
}

// PromptSource supplies the prompt template for a step. Template content is
// an external collaborator concern; the executor only substitutes variables.
type PromptSource interface {
	Template(s step.Step) string
}

// Context carries the per-run data prompts are resolved against.
type Context struct {
	// ProjectIdea is the user's product idea, substituted for
	// {{projectIdea}}.
	ProjectIdea string
	// Outputs accumulates completed step outputs in pipeline order.
	Outputs *Outputs
}

// Executor executes steps against the state machine and checkpoint store.
type Executor struct {
	machine  *machine.Machine
	store    *checkpoint.Store
	runner   Runner
	prompts  PromptSource
	retryCfg *retry.Config
	logger   *logging.Logger
}

// New creates an Executor. All dependencies are required except logger,
// which defaults to a no-op logger.
func New(m *machine.Machine, store *checkpoint.Store, runner Runner, prompts PromptSource, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{
		machine: m,
		store:   store,
		runner:  runner,
		prompts: prompts,
		logger:  logger,
	}
}

// WithRetry composes the retry engine around the external runner call.
// Only the runner invocation is retried: the step stays in-progress across
// attempts, so the "only pending steps can start" invariant holds and the
// interim checkpoint is written exactly once. Returns the Executor for
// chaining.
func (e *Executor) WithRetry(cfg retry.Config) *Executor {
	e.retryCfg = &cfg
	return e
}

// ExecuteStep runs one step end to end:
//
//  1. transition the step to in-progress,
//  2. write an interim in-progress checkpoint with startedAt,
//  3. resolve the prompt and invoke the runner,
//  4. on success, complete the step and write a terminal completed
//     checkpoint with duration and output,
//  5. on failure, write an interim checkpoint carrying the structured
//     error and return it so the caller can halt the run and hand off
//     to recovery.
//
// The interim write happens before the runner call on purpose: a crash
// mid-call leaves a record that the step was attempted.
func (e *Executor) ExecuteStep(ctx context.Context, s step.Step, wctx *Context) (string, error) {
	logger := e.logger.WithStep(s.ID())

	if err := e.machine.StartStep(s); err != nil {
		return "", err
	}
	startedAt := e.machine.StateOf(s).StartedAt

	if err := e.store.SaveRecord(&checkpoint.Record{
		StepID:    s.ID(),
		Status:    checkpoint.RecordInProgress,
		StartedAt: startedAt,
	}); err != nil {
		return "", err
	}

	prompt := e.ResolvePrompt(s, wctx)
	logger.Info("executing step", "ordinal", s.Ordinal(), "prompt_bytes", len(prompt))

	result, err := e.invokeRunner(ctx, s, prompt)
	if err != nil {
		execErr := asExecutionError(s, err)
		e.machine.RecordFailure(s, execErr.Message)

		if saveErr := e.store.SaveRecord(&checkpoint.Record{
			StepID:    s.ID(),
			Status:    checkpoint.RecordFailed,
			StartedAt: startedAt,
			Error: &checkpoint.RecordError{
				Code:       execErr.Code,
				Message:    execErr.Message,
				RetryCount: execErr.RetryCount,
			},
		}); saveErr != nil {
			logger.Error("failed to checkpoint step failure", "error", saveErr)
		}

		logger.Warn("step failed", "code", execErr.Code, "error", execErr.Message)
		return "", execErr
	}

	if err := e.machine.CompleteStep(s); err != nil {
		return "", err
	}

	now := time.Now()
	var duration time.Duration
	if startedAt != nil {
		duration = now.Sub(*startedAt)
	}

	if err := e.store.SaveRecord(&checkpoint.Record{
		StepID:     s.ID(),
		Status:     checkpoint.RecordCompleted,
		StartedAt:  startedAt,
		ExecutedAt: &now,
		Duration:   duration,
		Output:     result.Content,
	}); err != nil {
		return "", err
	}

	wctx.Outputs.Set(s, result.Content)
	logger.Info("step completed", "duration", duration.String(), "output_bytes", len(result.Content))
	return result.Content, nil
}

// AdoptManualOutput records an externally produced output for a step as if
// it had executed: the step passes through in-progress to completed and a
// terminal checkpoint is written. Used when a manual-mode step's artifact
// is found on disk.
func (e *Executor) AdoptManualOutput(s step.Step, output string, wctx *Context) error {
	if err := e.machine.StartStep(s); err != nil {
		return err
	}
	startedAt := e.machine.StateOf(s).StartedAt
	if err := e.machine.CompleteStep(s); err != nil {
		return err
	}

	now := time.Now()
	if err := e.store.SaveRecord(&checkpoint.Record{
		StepID:     s.ID(),
		Status:     checkpoint.RecordCompleted,
		StartedAt:  startedAt,
		ExecutedAt: &now,
		Output:     output,
	}); err != nil {
		return err
	}

	wctx.Outputs.Set(s, output)
	e.logger.WithStep(s.ID()).Info("adopted manual output", "output_bytes", len(output))
	return nil
}

// invokeRunner calls the external runner, wrapped in the retry engine when
// one is configured. The retry count consumed by failed attempts lands on
// the returned ExecutionError so it survives into the failure checkpoint.
func (e *Executor) invokeRunner(ctx context.Context, s step.Step, prompt string) (*RunResult, error) {
	if e.retryCfg == nil {
		return e.runner.Run(ctx, s, prompt)
	}

	cfg := *e.retryCfg
	cfg.Operation = s.ID()
	if cfg.Bus == nil {
		cfg.Bus = e.machine.Bus()
	}

	res := retry.Do(ctx, cfg, func(ctx context.Context) (*RunResult, error) {
		return e.runner.Run(ctx, s, prompt)
	})
	if res.Success {
		return res.Value, nil
	}

	execErr := asExecutionError(s, res.Err)
	execErr.RetryCount = res.Attempts - 1
	return nil, execErr
}

// asExecutionError normalizes a runner error into an ExecutionError,
// preserving structured fields when the runner already produced one.
func asExecutionError(s step.Step, err error) *errors.ExecutionError {
	var execErr *errors.ExecutionError
	if errors.As(err, &execErr) {
		if execErr.StepID == "" {
			execErr.StepID = s.ID()
		}
		return execErr
	}

	return errors.NewExecutionError(s.ID(), "RUNNER_ERROR", err.Error()).
		WithCause(err).
		WithRetryable(errors.IsTransientMessage(err.Error()))
}

// -----------------------------------------------------------------------------
// Prompt Resolution
// -----------------------------------------------------------------------------

// Substitution variables understood by ResolvePrompt.
const (
	varProjectIdea  = "{{projectIdea}}"
	varStepName     = "{{stepName}}"
	varAllOutputs   = "{{allPreviousOutputs}}"
	varOutputPrefix = "{{previousOutput."
)

// ResolvePrompt builds the final prompt for s by substituting the workflow
// context into the step's template:
//
//	{{projectIdea}}            the project idea
//	{{stepName}}               the step's display name
//	{{allPreviousOutputs}}     every prior output, concatenated in
//	                           pipeline order
//	{{previousOutput.<id>}}    one named prior output
//
// A {{previousOutput.X}} reference whose output does not exist resolves to
// the empty string rather than failing. That leniency is intentional and
// kept from the engine's original behavior; see the missing-dependency note
// in DESIGN.md before tightening it.
func (e *Executor) ResolvePrompt(s step.Step, wctx *Context) string {
	tmpl := e.prompts.Template(s)

	resolved := strings.ReplaceAll(tmpl, varProjectIdea, wctx.ProjectIdea)
	resolved = strings.ReplaceAll(resolved, varStepName, s.DisplayName())

	if strings.Contains(resolved, varAllOutputs) {
		resolved = strings.ReplaceAll(resolved, varAllOutputs, wctx.Outputs.Concatenated())
	}

	for {
		start := strings.Index(resolved, varOutputPrefix)
		if start < 0 {
			break
		}
		rest := resolved[start+len(varOutputPrefix):]
		end := strings.Index(rest, "}}")
		if end < 0 {
			break
		}
		ref := rest[:end]

		var output string
		if refStep, err := step.FromID(ref); err == nil {
			output, _ = wctx.Outputs.Get(refStep)
		}
		resolved = resolved[:start] + output + rest[end+2:]
	}

	return resolved
}
