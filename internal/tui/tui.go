// Package tui is a terminal browser for the tables a pipeline run loaded.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"fbpages/internal/config"
	"fbpages/internal/store"
)

// maxRows bounds how many rows of one table are loaded into the browser.
const maxRows = 5000

type viewMode int

const (
	listView viewMode = iota
	tableView
	detailView
)

// Navigation messages
type goToRowsMsg struct{ table string }
type goToDetailMsg struct{ record *record }
type goToTableMsg struct{}
type goToListMsg struct{}

type rowsLoadedMsg struct {
	table string
	cols  []string
	rows  [][]string
	err   error
}

// record is one row shown in the detail page.
type record struct {
	table  string
	cols   []string
	values []string
}

// Fetcher returns the columns and rows of a table.
type Fetcher func(ctx context.Context, table string) ([]string, [][]string, error)

type rootPage struct {
	ctx        context.Context
	fetch      Fetcher
	viewMode   viewMode
	listPage   listPage
	tablePage  tablePage
	detailPage detailPage
	width      int
	height     int
	err        error
}

func newRootPage(ctx context.Context, stats []store.TableStat, fetch Fetcher) rootPage {
	return rootPage{
		ctx:      ctx,
		fetch:    fetch,
		listPage: listPage{items: stats},
	}
}

// Run opens the configured database read-only and starts the browser.
func Run(ctx context.Context, load config.Loader, logger *zap.Logger) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	kind, err := store.ParseKind(cfg.Pipeline.Destination)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	dbPath := cfg.DatabasePath()
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("database not found at %s, run 'fbpages extract' first", dbPath)
	}
	st, err := store.OpenReadOnly(ctx, kind, dbPath, logger)
	if err != nil {
		return fmt.Errorf("failed opening the database: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	fetch := func(ctx context.Context, table string) ([]string, [][]string, error) {
		return st.Sample(ctx, table, maxRows)
	}

	p := tea.NewProgram(newRootPage(ctx, stats, fetch), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func (m rootPage) Init() tea.Cmd {
	return nil
}

func (m rootPage) load(table string) tea.Cmd {
	return func() tea.Msg {
		cols, rows, err := m.fetch(m.ctx, table)
		return rowsLoadedMsg{table: table, cols: cols, rows: rows, err: err}
	}
}

func (m rootPage) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.viewMode {
	case listView:
		m.listPage, cmd = update[listPage](m.listPage, msg)
	case tableView:
		m.tablePage, cmd = update[tablePage](m.tablePage, msg)
	case detailView:
		m.detailPage, cmd = update[detailPage](m.detailPage, msg)
	}

	switch msg := msg.(type) {
	case goToRowsMsg:
		return m, m.load(msg.table)
	case rowsLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.tablePage = newTablePage(msg.table, msg.cols, msg.rows)
		m.tablePage.resize(m.width, m.height)
		m.viewMode = tableView
		return m, nil
	case goToListMsg:
		m.viewMode = listView
	case goToTableMsg:
		m.viewMode = tableView
	case goToDetailMsg:
		m.viewMode = detailView
		m.detailPage, cmd = update[detailPage](m.detailPage, msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		var cmds []tea.Cmd

		m.listPage, cmd = update[listPage](m.listPage, msg)
		cmds = append(cmds, cmd)
		m.tablePage, cmd = update[tablePage](m.tablePage, msg)
		cmds = append(cmds, cmd)
		m.detailPage, cmd = update[detailPage](m.detailPage, msg)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	return m, cmd
}

func (m rootPage) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nq: quit", m.err)
	}

	switch m.viewMode {
	case listView:
		return m.listPage.View()
	case tableView:
		return m.tablePage.View()
	case detailView:
		return m.detailPage.View()
	default:
		return "Unknown View"
	}
}

func update[T any](model tea.Model, msg tea.Msg) (T, tea.Cmd) {
	newModel, cmd := model.Update(msg)
	return newModel.(T), cmd
}
