package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func helpBar(items ...string) string {
	return lipgloss.NewStyle().
		Foreground(muted).
		MarginTop(1).
		Render(strings.Join(items, " • "))
}
