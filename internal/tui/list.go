package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"fbpages/internal/store"
)

// listPage shows every table with its size.
type listPage struct {
	items  []store.TableStat
	cursor int
	width  int
}

func (m listPage) Init() tea.Cmd {
	return nil
}

func (m listPage) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "j", "down":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "enter", " ", "l":
			if len(m.items) == 0 {
				return m, nil
			}
			name := m.items[m.cursor].Name
			return m, func() tea.Msg { return goToRowsMsg{table: name} }
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width - 2
	}
	return m, nil
}

func (m listPage) View() string {
	header := renderHeader([]string{"fbpages", "tables"}, m.width)
	if len(m.items) == 0 {
		return pageLayout(lipgloss.JoinVertical(lipgloss.Left, header, "No tables yet. Run 'fbpages extract' first.", helpBar("q: quit")))
	}

	rows := make([][]string, len(m.items))
	for i, s := range m.items {
		rows[i] = []string{s.Name, strconv.FormatInt(s.Rows, 10), strconv.Itoa(s.Columns)}
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		Headers("Table", "Rows", "Columns").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if col > 0 {
				style = style.Align(lipgloss.Right)
			}
			switch {
			case row == table.HeaderRow:
				return style.Bold(true).Foreground(accent)
			case row == m.cursor:
				return style.Background(highlight).Foreground(lipgloss.Color("0"))
			}
			return style
		})

	footer := fmt.Sprintf("%d tables", len(m.items))
	return pageLayout(lipgloss.JoinVertical(lipgloss.Left,
		header,
		t.Render(),
		lipgloss.NewStyle().Foreground(muted).Render(footer),
		helpBar("j/k: move", "enter: open", "q: quit"),
	))
}
