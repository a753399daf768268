// Package ai provides the production step-runner: a thin adapter that
// shells out to an AI CLI in one-shot print mode. The engine core never
// imports this package; it sees only the executor.Runner contract.
package ai

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/executor"
	"github.com/stageflow/stageflow/internal/logging"
	"github.com/stageflow/stageflow/internal/step"
)

// CLIRunner executes steps by invoking an external AI CLI with the resolved
// prompt on stdin and reading the artifact from stdout. Timeout enforcement
// belongs to the caller's context: a canceled context kills the subprocess,
// so the runner resolves with failure rather than hang.
type CLIRunner struct {
	command string
	args    []string
	logger  *logging.Logger
}

// NewCLIRunner creates a CLIRunner. An empty command defaults to
// "claude -p".
func NewCLIRunner(command string, args []string, logger *logging.Logger) *CLIRunner {
	if command == "" {
		command = "claude"
		args = []string{"-p"}
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &CLIRunner{command: command, args: args, logger: logger}
}

// Run implements executor.Runner.
func (r *CLIRunner) Run(ctx context.Context, s step.Step, prompt string) (*executor.RunResult, error) {
	cmd := exec.CommandContext(ctx, r.command, r.args...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("invoking runner", "step", s.ID(), "command", r.command)

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, errors.NewExecutionError(s.ID(), "RUNNER_EXIT", detail).
			WithCause(err).
			WithRetryable(errors.IsTransientMessage(detail))
	}

	content := strings.TrimSpace(stdout.String())
	if content == "" {
		return nil, errors.NewExecutionError(s.ID(), "EMPTY_OUTPUT", "runner produced no output")
	}

	return &executor.RunResult{
		Content: content,
		Metadata: map[string]string{
			"command": r.command,
		},
	}, nil
}
