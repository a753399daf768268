package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var freshCmd = &cobra.Command{
	Use:   "fresh",
	Short: "Discard all checkpoints and snapshots",
	Long: `Fresh clears the checkpoint directory, discarding any resumable
snapshot and all per-step records. The next run starts from the first
step. Manual outputs and the history journal are kept.`,
	Args: cobra.NoArgs,
	RunE: runFresh,
}

func init() {
	rootCmd.AddCommand(freshCmd)
}

func runFresh(cmd *cobra.Command, args []string) error {
	app, err := newApp(false)
	if err != nil {
		return err
	}
	defer app.close()

	first, err := app.coordinator.StartFresh()
	if err != nil {
		return err
	}

	fmt.Printf("Checkpoints cleared. The next run starts at %s.\n", first.DisplayName())
	return nil
}
