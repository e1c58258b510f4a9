package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

const wrapWidth = 80

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")) // pink

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("86")) // green

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

// bullet wraps msg and indents continuation lines under the bullet.
func bullet(msg string) string {
	lines := strings.Split(wordwrap.String(msg, wrapWidth-4), "\n")
	return "  - " + strings.Join(lines, "\n    ")
}
