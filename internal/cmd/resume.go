package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/executor"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a halted run from its snapshot",
	Long: `Resume replays the checkpointed state of a halted run and continues
the pipeline from the step that failed. Completed and skipped steps are
not re-executed.`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().String("modes", "", "modes preset file (default is <project-dir>/modes.yaml)")
	resumeCmd.Flags().String("mode", "", "global automation mode: auto, manual, or skip")
	resumeCmd.Flags().Bool("wait-manual", false, "wait for manual outputs to appear instead of falling back to automatic execution")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	app, err := newApp(true)
	if err != nil {
		return err
	}
	defer app.close()

	info, err := app.coordinator.ResumeInfo()
	if err != nil {
		return err
	}
	if !info.CanResume {
		fmt.Println("Nothing to resume.")
		return nil
	}

	fmt.Printf("%s step %d/%d (%s), %d completed\n",
		titleStyle.Render("resuming at"),
		info.CurrentOrdinal, info.TotalSteps, info.CurrentStepName,
		info.CompletedCount)
	if info.ErrorMessage != "" {
		fmt.Printf("%s %s (retries used: %d)\n",
			failedStyle.Render("previous failure:"), info.ErrorMessage, info.RetryCount)
	}
	fmt.Println(rule())

	res, err := app.coordinator.Resume(app.machine)
	if err != nil {
		return err
	}

	idea := res.Project.Idea
	if idea == "" {
		idea = app.cfg.Project.Idea
	}
	app.cfg.Project.Name = res.Project.Name
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wctx := &executor.Context{ProjectIdea: idea, Outputs: res.Outputs}
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
