package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	cellWidth       = 18
	defaultPageSize = 10
)

// tablePage pages through the rows of one table. Columns that do not fit the
// terminal are scrolled horizontally.
type tablePage struct {
	name  string
	cols  []string
	items [][]string

	cursor      int
	currentPage int
	pageSize    int
	firstCol    int
	visibleCols int
	width       int
}

func newTablePage(name string, cols []string, rows [][]string) tablePage {
	return tablePage{
		name:        name,
		cols:        cols,
		items:       rows,
		pageSize:    defaultPageSize,
		visibleCols: max(1, len(cols)),
	}
}

func (m *tablePage) resize(width, height int) {
	if width <= 0 {
		return
	}
	m.width = width - 2
	// borders and padding take 3 cells per column
	m.visibleCols = max(1, min(len(m.cols), (m.width-1)/(cellWidth+3)))
	if height > 0 {
		m.pageSize = max(5, height-10)
	}
	m.clamp()
}

func (m tablePage) totalPages() int {
	if len(m.items) == 0 {
		return 1
	}
	return (len(m.items) + m.pageSize - 1) / m.pageSize
}

func (m tablePage) itemsOnPage() int {
	return max(0, min(m.pageSize, len(m.items)-m.currentPage*m.pageSize))
}

func (m *tablePage) clamp() {
	m.currentPage = max(0, min(m.currentPage, m.totalPages()-1))
	m.cursor = max(0, min(m.cursor, m.itemsOnPage()-1))
	m.firstCol = max(0, min(m.firstCol, len(m.cols)-m.visibleCols))
}

// selected returns the index of the row under the cursor.
func (m tablePage) selected() int {
	return m.currentPage*m.pageSize + m.cursor
}

func (m tablePage) Init() tea.Cmd {
	return nil
}

func (m tablePage) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q", "esc", "backspace":
			return m, func() tea.Msg { return goToListMsg{} }
		case " ", "enter":
			if i := m.selected(); i < len(m.items) {
				rec := &record{table: m.name, cols: m.cols, values: m.items[i]}
				return m, func() tea.Msg { return goToDetailMsg{record: rec} }
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			} else if m.currentPage > 0 {
				m.currentPage--
				m.cursor = m.pageSize - 1
			}
		case "j", "down":
			if m.cursor < m.itemsOnPage()-1 {
				m.cursor++
			} else if m.currentPage < m.totalPages()-1 {
				m.currentPage++
				m.cursor = 0
			}
		case "l", "pgdown":
			if m.currentPage < m.totalPages()-1 {
				m.currentPage++
				m.cursor = 0
				return m, tea.ClearScreen
			}
		case "h", "pgup":
			if m.currentPage > 0 {
				m.currentPage--
				m.cursor = 0
				return m, tea.ClearScreen
			}
		case "right", ">":
			m.firstCol++
		case "left", "<":
			m.firstCol--
		case "g":
			m.currentPage, m.cursor = 0, 0
		case "G":
			m.currentPage = m.totalPages() - 1
			m.cursor = m.itemsOnPage() - 1
		}
		m.clamp()
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, tea.ClearScreen
	}
	return m, nil
}

func (m tablePage) View() string {
	header := renderHeader([]string{"fbpages", "tables", m.name}, m.width)
	if len(m.items) == 0 {
		return pageLayout(lipgloss.JoinVertical(lipgloss.Left, header, "No rows in this table.", helpBar("esc: back")))
	}

	lastCol := min(len(m.cols), m.firstCol+m.visibleCols)
	headers := make([]string, 0, lastCol-m.firstCol)
	for _, c := range m.cols[m.firstCol:lastCol] {
		headers = append(headers, truncateString(c, cellWidth))
	}
	start := m.currentPage * m.pageSize
	end := min(start+m.pageSize, len(m.items))
	rows := make([][]string, 0, end-start)
	for _, r := range m.items[start:end] {
		row := make([]string, 0, len(headers))
		for j := m.firstCol; j < lastCol && j < len(r); j++ {
			row = append(row, truncateString(r[j], cellWidth))
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.ThickBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return style.Bold(true).Foreground(accent)
			case row == m.cursor:
				return style.Background(highlight).Foreground(lipgloss.Color("0"))
			}
			return style
		})

	status := fmt.Sprintf("rows %d-%d of %d • page %d/%d • columns %d-%d of %d",
		start+1, end, len(m.items), m.currentPage+1, m.totalPages(), m.firstCol+1, lastCol, len(m.cols))
	return pageLayout(lipgloss.JoinVertical(lipgloss.Left,
		header,
		t.Render(),
		lipgloss.NewStyle().Foreground(muted).Render(status),
		helpBar("j/k: move", "h/l: page", "←/→: columns", "g/G: first/last", "space: details", "esc: back"),
	))
}
