package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stageflow/stageflow/internal/checkpoint"
	"github.com/stageflow/stageflow/internal/history"
	"github.com/stageflow/stageflow/internal/step"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress from checkpoints",
	Long: `Status reads the checkpoint directory and reports each step's state
without touching it. With --history it also prints recent events from the
run-history journal.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Int("history", 0, "also show the last N history events")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := newApp(false)
	if err != nil {
		return err
	}
	defer app.close()

	name := app.cfg.Project.Name
	if name == "" {
		name = app.cfg.Project.Dir
	}
	fmt.Println(titleStyle.Render("stageflow status") + dimStyle.Render("  "+name))
	fmt.Println(rule())

	// Skipped steps leave no per-step record; the snapshot carries their
	// status when one exists.
	snap, err := app.store.LoadLatestSnapshot()
	if err != nil {
		return err
	}
	snapStatus := make(map[string]string)
	if snap != nil {
		for _, st := range snap.StepStatuses {
			snapStatus[st.StepID] = st.Status
		}
	}

	for _, s := range step.All() {
		rec, err := app.store.LoadRecord(s)
		if err != nil {
			return err
		}
		fmt.Println(statusLine(s, rec, snapStatus[s.ID()]))
	}

	info, err := app.coordinator.ResumeInfo()
	if err != nil {
		return err
	}
	if info.CanResume {
		fmt.Println(rule())
		fmt.Printf("%s halted at %s (%d/%d), %d completed; run \"stageflow resume\"\n",
			activeStyle.Render("resumable:"),
			info.CurrentStepName, info.CurrentOrdinal, info.TotalSteps,
			info.CompletedCount)
		if info.ErrorMessage != "" {
			fmt.Printf("%s %s\n", failedStyle.Render("error:"), info.ErrorMessage)
		}
	}

	if limit, _ := cmd.Flags().GetInt("history"); limit > 0 {
		if err := printHistory(app, limit); err != nil {
			return err
		}
	}
	return nil
}

// statusLine renders one step's row from its checkpoint record, falling
// back to the snapshot status when no record exists.
func statusLine(s step.Step, rec *checkpoint.Record, snapStatus string) string {
	ordinal := fmt.Sprintf("%2d.", s.Ordinal())
	name := stepNameStyle.Render(s.DisplayName())
	category := categoryStyle.Render(string(s.Category()))

	switch {
	case rec == nil && snapStatus == "skipped":
		return fmt.Sprintf("%s %s %s  %s", skippedStyle.Render("−"), ordinal, name, category)
	case rec == nil:
		return fmt.Sprintf("%s %s %s  %s", pendingStyle.Render("·"), ordinal, name, category)
	case rec.Status == checkpoint.RecordCompleted:
		detail := ""
		if rec.Duration > 0 {
			detail = dimStyle.Render("  " + rec.Duration.String())
		}
		return fmt.Sprintf("%s %s %s  %s%s", completedStyle.Render("✓"), ordinal, name, category, detail)
	case rec.Status == checkpoint.RecordFailed:
		detail := ""
		if rec.Error != nil {
			detail = failedStyle.Render("  " + rec.Error.Code)
		}
		return fmt.Sprintf("%s %s %s  %s%s", failedStyle.Render("✗"), ordinal, name, category, detail)
	case rec.Status == checkpoint.RecordInProgress:
		return fmt.Sprintf("%s %s %s  %s", activeStyle.Render("▸"), ordinal, name, category)
	default:
		return fmt.Sprintf("%s %s %s  %s", pendingStyle.Render("?"), ordinal, name, category)
	}
}

// printHistory shows the tail of the run-history journal.
func printHistory(app *app, limit int) error {
	journal, err := history.OpenReadOnly(app.cfg.Project.Dir, app.logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	entries, err := journal.RecentEvents(limit)
	if err != nil {
		return err
	}

	fmt.Println(rule())
	fmt.Println(titleStyle.Render("recent events"))
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-22s %-20s %s",
			dimStyle.Render(e.At.Local().Format("2006-01-02 15:04:05")),
			e.EventType, e.StepID, e.Detail)
		fmt.Println(line)
	}
	return nil
}
