package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stageflow/stageflow/internal/config"
	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/executor"
	"github.com/stageflow/stageflow/internal/machine"
	"github.com/stageflow/stageflow/internal/manual"
	"github.com/stageflow/stageflow/internal/runner"
	"github.com/stageflow/stageflow/internal/step"
)

var runCmd = &cobra.Command{
	Use:   "run [idea]",
	Short: "Run the pipeline from the beginning",
	Long: `Run the full development pipeline for a product idea. The idea comes
from the positional argument, falling back to project.idea in the config.

If a halted run left a resumable snapshot behind, run refuses to start;
use "stageflow resume" to continue it or "stageflow fresh" to discard it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("modes", "", "modes preset file (default is <project-dir>/modes.yaml)")
	runCmd.Flags().String("mode", "", "global automation mode: auto, manual, or skip")
	runCmd.Flags().Bool("wait-manual", false, "wait for manual outputs to appear instead of falling back to automatic execution")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	app, err := newApp(true)
	if err != nil {
		return err
	}
	defer app.close()

	if app.coordinator.DetectResumable() {
		return fmt.Errorf("a halted run can be resumed; use \"stageflow resume\" to continue it or \"stageflow fresh\" to discard it")
	}

	idea := app.cfg.Project.Idea
	if len(args) == 1 {
		idea = args[0]
	}
	if idea == "" {
		return fmt.Errorf("no project idea: pass one as an argument or set project.idea")
	}
	app.cfg.Project.Idea = idea

	if err := applyModes(cmd, app); err != nil {
		return err
	}

	detector, err := manualDetector(cmd, app)
	if err != nil {
		return err
	}

	r, err := app.buildRunner(detector, consoleSink{})
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("stageflow") + dimStyle.Render("  "+idea))
	fmt.Println(rule())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wctx := &executor.Context{ProjectIdea: idea, Outputs: executor.NewOutputs()}
	if err := r.Run(ctx, wctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			fmt.Println(failedStyle.Render("interrupted; progress saved, resume with \"stageflow resume\""))
			return nil
		}
		return err
	}

	printCompletion(app)
	return nil
}

// applyModes loads the modes preset (if any) and the --mode override into
// the state machine before the run starts.
func applyModes(cmd *cobra.Command, app *app) error {
	path, _ := cmd.Flags().GetString("modes")
	if path == "" {
		path = filepath.Join(app.cfg.Project.Dir, "modes.yaml")
	}
	modes, err := config.LoadModes(path)
	if err != nil {
		return err
	}
	for s, mode := range modes {
		app.machine.SetMode(s, mode)
	}

	if global, _ := cmd.Flags().GetString("mode"); global != "" {
		mode := machine.Mode(global)
		switch mode {
		case machine.ModeAuto, machine.ModeManual, machine.ModeSkip:
			app.machine.SetGlobalMode(mode)
		default:
			return fmt.Errorf("unknown mode %q", global)
		}
	}
	return nil
}

// manualDetector builds the detector, wrapped in wait mode when requested.
func manualDetector(cmd *cobra.Command, app *app) (runner.ManualDetector, error) {
	detector, err := app.newDetector()
	if err != nil {
		return nil, err
	}
	if wait, _ := cmd.Flags().GetBool("wait-manual"); wait {
		return &waitingDetector{detector: detector, timeout: app.cfg.Manual.WaitTimeout()}, nil
	}
	return detector, nil
}

// waitingDetector adapts Detector.Wait to the runner's Load contract: it
// blocks until the artifact appears or the timeout elapses, reporting a
// timeout as not-found so the step falls through to automatic execution.
type waitingDetector struct {
	detector *manual.Detector
	timeout  time.Duration
}

func (w *waitingDetector) Load(s step.Step) (string, error) {
	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	fmt.Printf("%s waiting for manual output in %s\n",
		activeStyle.Render("[manual]"), w.detector.Dir())

	output, err := w.detector.Wait(ctx, s)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", errors.ErrManualOutputNotFound
	}
	return output, err
}

// printCompletion summarizes a finished pipeline.
func printCompletion(app *app) {
	completed, skipped := 0, 0
	for _, st := range app.machine.States() {
		switch st.Status {
		case machine.StatusCompleted:
			completed++
		case machine.StatusSkipped:
			skipped++
		}
	}
	fmt.Println(rule())
	fmt.Printf("%s %d completed, %d skipped\n",
		completedStyle.Render("pipeline complete:"), completed, skipped)
}
