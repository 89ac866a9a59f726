package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent    = lipgloss.Color("#1877F2")
	highlight = lipgloss.Color("#A6C8FF")
	muted     = lipgloss.Color("8")
)

func pageLayout(content string) string {
	return lipgloss.NewStyle().
		Padding(0, 1).
		Render(content)
}

// renderHeader shows the breadcrumb of the current page over a divider.
func renderHeader(crumbs []string, width int) string {
	styled := make([]string, len(crumbs))
	for i, c := range crumbs {
		style := lipgloss.NewStyle().Foreground(muted)
		if i == len(crumbs)-1 {
			style = lipgloss.NewStyle().Foreground(accent).Bold(true)
		}
		styled[i] = style.Render(c)
	}
	title := strings.Join(styled, lipgloss.NewStyle().Foreground(muted).Render(" › "))
	divider := lipgloss.NewStyle().Foreground(muted).Render(strings.Repeat("─", max(0, width)))
	return lipgloss.JoinVertical(lipgloss.Left, title, divider)
}

func truncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
