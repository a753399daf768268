package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/stageflow/stageflow/internal/step"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stepNameStyle  = lipgloss.NewStyle().Bold(true)
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	skippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	activeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	categoryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

// terminalWidth returns the stdout width, falling back to 80 when stdout is
// not a terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// rule prints a horizontal separator sized to the terminal.
func rule() string {
	w := terminalWidth()
	if w > 100 {
		w = 100
	}
	return dimStyle.Render(strings.Repeat("─", w))
}

// consoleSink prints step progress as the pipeline advances.
type consoleSink struct{}

func (consoleSink) OnStepStart(s step.Step, ordinal, total int) {
	fmt.Printf("%s %s %s\n",
		activeStyle.Render(fmt.Sprintf("[%d/%d]", ordinal, total)),
		stepNameStyle.Render(s.DisplayName()),
		dimStyle.Render("running..."))
}

func (consoleSink) OnStepDone(s step.Step, ordinal, total int, skipped bool) {
	if skipped {
		fmt.Printf("%s %s %s\n",
			skippedStyle.Render(fmt.Sprintf("[%d/%d]", ordinal, total)),
			s.DisplayName(),
			skippedStyle.Render("skipped"))
		return
	}
	fmt.Printf("%s %s %s\n",
		completedStyle.Render(fmt.Sprintf("[%d/%d]", ordinal, total)),
		stepNameStyle.Render(s.DisplayName()),
		completedStyle.Render("done"))
}
