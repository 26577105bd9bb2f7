package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/swapbatch/swapbatch/internal/batch"
)

var (
	successColor = lipgloss.Color("#85DCB0")
	warningColor = lipgloss.Color("#F6AE2D")
	errorColor   = lipgloss.Color("#E85D75")
	mutedColor   = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(12)

	valueStyle = lipgloss.NewStyle().Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	errorLineStyle = lipgloss.NewStyle().Foreground(errorColor)
)

const maxListedErrors = 5

// Summary renders the statistics as a bordered box for a terminal.
func Summary(stats *batch.RunStatistics, outputDir string) string {
	title := "Batch complete"
	border := successColor
	switch {
	case stats.Interrupted:
		title = "Batch interrupted"
		border = warningColor
	case stats.Failed > 0:
		border = warningColor
	}

	rows := []string{
		titleStyle.Render(title),
		row("Successful", fmt.Sprintf("%d/%d (%.1f%%)", stats.Successful, stats.Total, stats.SuccessRate())),
		row("Failed", fmt.Sprintf("%d/%d", stats.Failed, stats.Total)),
		row("Duration", fmt.Sprintf("%.1f min", stats.DurationMinutes)),
		row("Output", outputDir),
	}

	if len(stats.Errors) > 0 {
		rows = append(rows, "")
		for i, e := range stats.Errors {
			if i == maxListedErrors {
				rows = append(rows, errorLineStyle.Render(fmt.Sprintf("… and %d more", len(stats.Errors)-i)))
				break
			}
			rows = append(rows, errorLineStyle.Render("✗ "+filepath.Base(e.File)+": "+firstLine(e.Error)))
		}
	}

	return boxStyle.BorderForeground(border).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
