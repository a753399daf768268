package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stageflow/stageflow/internal/step"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List the pipeline steps",
	Long:  `Steps prints the fixed pipeline: every step with its identifier, category, and dependencies.`,
	Args:  cobra.NoArgs,
	RunE:  runSteps,
}

func init() {
	rootCmd.AddCommand(stepsCmd)
}

func runSteps(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("pipeline"))
	fmt.Println(rule())

	for _, s := range step.All() {
		fmt.Printf("%2d. %s %s  %s\n",
			s.Ordinal(),
			stepNameStyle.Render(s.DisplayName()),
			dimStyle.Render("("+s.ID()+")"),
			categoryStyle.Render(string(s.Category())))

		if deps := s.Dependencies(); len(deps) > 0 {
			ids := make([]string, len(deps))
			for i, d := range deps {
				ids[i] = d.ID()
			}
			fmt.Printf("    %s\n", dimStyle.Render("after: "+strings.Join(ids, ", ")))
		}
	}
	return nil
}
