package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/stageflow/stageflow/internal/ai"
	"github.com/stageflow/stageflow/internal/checkpoint"
	"github.com/stageflow/stageflow/internal/config"
	"github.com/stageflow/stageflow/internal/event"
	"github.com/stageflow/stageflow/internal/executor"
	"github.com/stageflow/stageflow/internal/history"
	"github.com/stageflow/stageflow/internal/logging"
	"github.com/stageflow/stageflow/internal/machine"
	"github.com/stageflow/stageflow/internal/manual"
	"github.com/stageflow/stageflow/internal/prompts"
	"github.com/stageflow/stageflow/internal/resume"
	"github.com/stageflow/stageflow/internal/retry"
	"github.com/stageflow/stageflow/internal/runner"
)

// app bundles the wired engine for one command invocation.
type app struct {
	cfg         *config.Config
	logger      *logging.Logger
	bus         *event.Bus
	machine     *machine.Machine
	store       *checkpoint.Store
	coordinator *resume.Coordinator
	journal     *history.Journal
}

// newApp loads configuration and wires the engine core. When withJournal is
// true and history is enabled, a run is registered in the history journal
// and its recorder attached to the event bus.
func newApp(withJournal bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Project.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus()
	m := machine.New(bus)
	store := checkpoint.NewStore(cfg.Project.Dir, logger)
	coordinator := resume.New(store, logger)

	a := &app{
		cfg:         cfg,
		logger:      logger,
		bus:         bus,
		machine:     m,
		store:       store,
		coordinator: coordinator,
	}

	if withJournal && cfg.History.Enabled {
		journal, err := history.Open(cfg.Project.Dir, logger)
		if err != nil {
			// History is an observer. A broken journal should not stop
			// the run it would have recorded.
			logger.Warn("history journal unavailable", "error", err)
		} else {
			journal.Attach(bus)
			a.journal = journal
			a.logger = logger.WithRun(journal.RunID())
		}
	}

	return a, nil
}

// close releases the app's resources.
func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("failed to close history journal", "error", err)
		}
	}
	_ = a.logger.Close()
}

// retryConfig translates the retry section of the configuration into the
// engine's retry policy.
func (a *app) retryConfig() (retry.Config, error) {
	cfg := retry.Config{
		MaxRetries: a.cfg.Retry.MaxRetries,
		BaseDelay:  a.cfg.Retry.BaseDelay(),
		MaxDelay:   a.cfg.Retry.MaxDelay(),
	}
	switch s := retry.Strategy(a.cfg.Retry.Strategy); s {
	case retry.StrategyFixed, retry.StrategyLinear, retry.StrategyExponential:
		cfg.Strategy = s
	default:
		return retry.Config{}, fmt.Errorf("unknown retry strategy %q", a.cfg.Retry.Strategy)
	}
	return cfg, nil
}

// buildRunner assembles the execution side: prompt source, AI runner,
// retrying executor, manual detector, and the pipeline runner.
func (a *app) buildRunner(detector runner.ManualDetector, sink runner.ProgressSink) (*runner.Runner, error) {
	retryCfg, err := a.retryConfig()
	if err != nil {
		return nil, err
	}

	source := prompts.NewSource(promptOverrideDir(a.cfg), a.logger)
	aiRunner := ai.NewCLIRunner(a.cfg.Runner.Command, a.cfg.Runner.Args, a.logger)
	exec := executor.New(a.machine, a.store, aiRunner, source, a.logger).WithRetry(retryCfg)

	project := checkpoint.ProjectInfo{Name: a.cfg.Project.Name, Idea: a.cfg.Project.Idea}
	return runner.New(a.machine, exec, a.store, project, runner.Options{
		Manual: detector,
		Sink:   sink,
		Logger: a.logger,
	}), nil
}

// newDetector builds the manual-output detector from configuration.
func (a *app) newDetector() (*manual.Detector, error) {
	return manual.NewDetector(a.cfg.Project.Dir, a.cfg.Manual.Pattern, a.logger)
}

// promptOverrideDir is where per-project prompt overrides live.
func promptOverrideDir(cfg *config.Config) string {
	return filepath.Join(cfg.Project.Dir, "prompts")
}
