package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"fbpages/internal/store"
)

func fakeFetch(n int) Fetcher {
	return func(ctx context.Context, table string) ([]string, [][]string, error) {
		if table == "broken" {
			return nil, nil, errors.New("boom")
		}
		cols := []string{"id", "message"}
		rows := make([][]string, n)
		for i := range rows {
			rows[i] = []string{fmt.Sprintf("post_%d", i+1), "hello " + table}
		}
		return cols, rows, nil
	}
}

// send feeds msg to m and runs any returned command once, feeding its
// message back in, which is enough to follow one navigation step.
func send(t *testing.T, m tea.Model, msg tea.Msg) tea.Model {
	t.Helper()
	m, cmd := m.Update(msg)
	for i := 0; cmd != nil && i < 3; i++ {
		next := cmd()
		if next == nil {
			break
		}
		if _, ok := next.(tea.QuitMsg); ok {
			break
		}
		m, cmd = m.Update(next)
	}
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func stats() []store.TableStat {
	return []store.TableStat{
		{Name: "page", Rows: 1, Columns: 14},
		{Name: "post_history", Rows: 25, Columns: 12},
	}
}

func TestNavigateToRowsAndDetail(t *testing.T) {
	var m tea.Model = newRootPage(context.Background(), stats(), fakeFetch(25))
	m = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 20})

	if !strings.Contains(m.View(), "post_history") {
		t.Fatalf("list view should show tables:\n%s", m.View())
	}

	m = send(t, m, key("j"))
	m = send(t, m, key("enter"))
	root := m.(rootPage)
	if root.viewMode != tableView || root.tablePage.name != "post_history" {
		t.Fatalf("expected post_history rows, got mode %d table %q", root.viewMode, root.tablePage.name)
	}
	if len(root.tablePage.items) != 25 {
		t.Errorf("expected 25 rows loaded, got %d", len(root.tablePage.items))
	}

	// next page then second row
	m = send(t, m, key("l"))
	m = send(t, m, key("j"))
	root = m.(rootPage)
	if got := root.tablePage.selected(); got != root.tablePage.pageSize+1 {
		t.Errorf("expected row %d selected, got %d", root.tablePage.pageSize+1, got)
	}

	m = send(t, m, key(" "))
	root = m.(rootPage)
	if root.viewMode != detailView || root.detailPage.record == nil {
		t.Fatalf("expected detail view")
	}
	want := fmt.Sprintf("post_%d", root.tablePage.pageSize+2)
	if root.detailPage.record.values[0] != want {
		t.Errorf("expected %s in detail, got %v", want, root.detailPage.record.values)
	}
	if !strings.Contains(m.View(), want) {
		t.Errorf("detail view missing %s:\n%s", want, m.View())
	}

	m = send(t, m, key("esc"))
	m = send(t, m, key("esc"))
	if m.(rootPage).viewMode != listView {
		t.Errorf("expected to be back on the list")
	}
}

func TestFetchErrorIsShown(t *testing.T) {
	items := []store.TableStat{{Name: "broken"}}
	var m tea.Model = newRootPage(context.Background(), items, fakeFetch(0))
	m = send(t, m, key("enter"))
	if !strings.Contains(m.View(), "boom") {
		t.Errorf("expected the fetch error in the view:\n%s", m.View())
	}
}

func TestTablePageBounds(t *testing.T) {
	p := newTablePage("t", []string{"a", "b", "c"}, make([][]string, 3))
	p.resize(30, 20)
	if p.visibleCols != 1 {
		t.Errorf("expected one visible column at width 30, got %d", p.visibleCols)
	}
	p.firstCol = 10
	p.cursor = 10
	p.clamp()
	if p.firstCol != 2 || p.cursor != 2 {
		t.Errorf("expected clamped firstCol=2 cursor=2, got %d %d", p.firstCol, p.cursor)
	}
	if p.totalPages() != 1 {
		t.Errorf("expected one page, got %d", p.totalPages())
	}
}
