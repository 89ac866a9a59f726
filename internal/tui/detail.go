package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type detailPage struct {
	width    int
	height   int
	viewport viewport.Model
	record   *record
}

func (m detailPage) Init() tea.Cmd {
	return nil
}

func (m detailPage) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q", "esc", "backspace":
			return m, func() tea.Msg { return goToTableMsg{} }
		case "k", "up":
			m.viewport.ScrollUp(1)
		case "j", "down":
			m.viewport.ScrollDown(1)
		case "g":
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width - 4
		m.height = msg.Height - 4
		if m.record != nil {
			m.viewport = setupViewport(m.width, m.height, m.record)
		}
		return m, nil
	case goToDetailMsg:
		m.record = msg.record
		m.viewport = setupViewport(m.width, m.height, m.record)
		return m, nil
	}
	return m, nil
}

func (m detailPage) View() string {
	if m.record == nil {
		return "No row selected"
	}

	header := renderHeader([]string{"fbpages", "tables", m.record.table, "row"}, m.width)
	border := lipgloss.NewStyle().
		Border(lipgloss.ThickBorder()).
		BorderForeground(accent)

	scroll := min(max(m.viewport.ScrollPercent(), 0), 1)
	scrollInfo := lipgloss.NewStyle().
		Foreground(muted).
		Bold(true).
		Render(fmt.Sprintf("Scroll: %d%%", int(scroll*100)))

	return pageLayout(lipgloss.JoinVertical(lipgloss.Left,
		header,
		border.Render(m.viewport.View()),
		scrollInfo,
		helpBar("j/k: scroll", "g/G: top/bottom", "esc: back"),
	))
}

// renderRecord lays out one field per line, wrapping long values under
// their column name.
func renderRecord(r *record, width int) string {
	nameWidth := 0
	for _, c := range r.cols {
		nameWidth = max(nameWidth, len(c))
	}
	nameStyle := lipgloss.NewStyle().Foreground(accent).Bold(true).Width(nameWidth + 2)
	valueStyle := lipgloss.NewStyle().Width(max(10, width-nameWidth-4))

	var b strings.Builder
	for i, c := range r.cols {
		v := ""
		if i < len(r.values) {
			v = r.values[i]
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, nameStyle.Render(c), valueStyle.Render(v)))
		b.WriteString("\n")
	}
	return b.String()
}

func setupViewport(width, height int, r *record) viewport.Model {
	contentWidth := max(20, width)
	vp := viewport.New(contentWidth, max(5, height-8))
	vp.SetContent(renderRecord(r, contentWidth))
	return vp
}
