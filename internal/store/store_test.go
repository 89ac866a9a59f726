package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fbpages/internal/schema"
)

var kinds = []Kind{DuckDB, SQLite}

func itemsTable() schema.Table {
	return schema.Table{
		Name:       "items",
		PrimaryKey: []string{"id"},
		Columns: []schema.Column{
			{Name: "id", Type: schema.Text},
			{Name: "qty", Type: schema.BigInt},
			{Name: "day", Type: schema.Date},
			{Name: "seen", Type: schema.Timestamp},
			{Name: schema.LoadIDColumn, Type: schema.Text},
		},
	}
}

func item(id string, qty int64) schema.Row {
	return schema.Row{
		"id":   id,
		"qty":  qty,
		"day":  "2025-03-01",
		"seen": time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func openTemp(t *testing.T, kind Kind) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test."+string(kind))
	s, err := Open(t.Context(), kind, path, nil)
	if err != nil {
		t.Fatalf("Open(%s): %v", kind, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func count(t *testing.T, s *Store, table string) int64 {
	t.Helper()
	n, err := s.RowCount(t.Context(), table)
	if err != nil {
		t.Fatalf("RowCount: %v", err)
	}
	return n
}

func TestMergeIsIdempotent(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			s := openTemp(t, kind)
			tbl := itemsTable()

			rows := []schema.Row{item("a", 1), item("b", 2)}
			if _, err := s.Write(t.Context(), tbl, Merge, rows, "load-1"); err != nil {
				t.Fatalf("first write: %v", err)
			}
			rows = []schema.Row{item("a", 10), item("c", 3)}
			if _, err := s.Write(t.Context(), tbl, Merge, rows, "load-2"); err != nil {
				t.Fatalf("second write: %v", err)
			}

			if n := count(t, s, "items"); n != 3 {
				t.Fatalf("expected 3 rows after merge, got %d", n)
			}
			var qty int64
			var loadID string
			err := s.DB().QueryRowContext(t.Context(), `SELECT qty, _load_id FROM items WHERE id = 'a'`).Scan(&qty, &loadID)
			if err != nil {
				t.Fatal(err)
			}
			if qty != 10 || loadID != "load-2" {
				t.Errorf("expected merged row qty=10 load=load-2, got qty=%d load=%s", qty, loadID)
			}
		})
	}
}

func TestDuplicateKeysInBatchCollapse(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			s := openTemp(t, kind)
			rows := []schema.Row{item("a", 1), item("a", 2), {"qty": 5}, item("b", 3)}
			n, err := s.Write(t.Context(), itemsTable(), Merge, rows, "l")
			if err != nil {
				t.Fatalf("Write: %v", err)
			}
			if n != 2 {
				t.Errorf("expected 2 rows written, got %d", n)
			}
			var qty int64
			if err := s.DB().QueryRowContext(t.Context(), `SELECT qty FROM items WHERE id = 'a'`).Scan(&qty); err != nil {
				t.Fatal(err)
			}
			if qty != 2 {
				t.Errorf("expected last duplicate to win, got %d", qty)
			}
		})
	}
}

func TestReplaceAndAppend(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			s := openTemp(t, kind)
			tbl := itemsTable()
			if _, err := s.Write(t.Context(), tbl, Append, []schema.Row{item("a", 1), item("b", 2)}, "l1"); err != nil {
				t.Fatalf("append: %v", err)
			}
			if _, err := s.Write(t.Context(), tbl, Append, []schema.Row{item("c", 3)}, "l2"); err != nil {
				t.Fatalf("append: %v", err)
			}
			if n := count(t, s, "items"); n != 3 {
				t.Fatalf("expected 3 rows after appends, got %d", n)
			}
			if _, err := s.Write(t.Context(), tbl, Append, []schema.Row{item("a", 9)}, "l3"); err == nil {
				t.Errorf("expected appending an existing key to fail")
			}
			if n := count(t, s, "items"); n != 3 {
				t.Errorf("failed append must roll back, got %d rows", n)
			}

			if _, err := s.Write(t.Context(), tbl, Replace, []schema.Row{item("z", 1)}, "l4"); err != nil {
				t.Fatalf("replace: %v", err)
			}
			if n := count(t, s, "items"); n != 1 {
				t.Errorf("expected 1 row after replace, got %d", n)
			}
		})
	}
}

func TestEnsureTableAddsColumns(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			s := openTemp(t, kind)
			narrow := itemsTable()
			narrow.Columns = narrow.Columns[:2]
			if err := s.EnsureTable(t.Context(), narrow); err != nil {
				t.Fatalf("EnsureTable: %v", err)
			}
			if err := s.EnsureTable(t.Context(), itemsTable()); err != nil {
				t.Fatalf("EnsureTable (wide): %v", err)
			}
			cols, err := s.Columns(t.Context(), "items")
			if err != nil {
				t.Fatal(err)
			}
			if strings.Join(cols, ",") != "id,qty,day,seen,_load_id" {
				t.Errorf("unexpected columns %v", cols)
			}
		})
	}
}

func TestLoadsLedger(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			s := openTemp(t, kind)
			if l, err := s.LastLoad(t.Context()); err != nil || l != nil {
				t.Fatalf("expected no loads, got %v %v", l, err)
			}
			start := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
			load := Load{
				ID:          "load-1",
				Pipeline:    "facebook_pages_pipeline",
				StartedAt:   start,
				WindowSince: start.AddDate(0, 0, -30),
				WindowUntil: start,
			}
			if err := s.BeginLoad(t.Context(), load); err != nil {
				t.Fatalf("BeginLoad: %v", err)
			}
			if err := s.FinishLoad(t.Context(), "load-1", 42, nil); err != nil {
				t.Fatalf("FinishLoad: %v", err)
			}
			got, err := s.LastLoad(t.Context())
			if err != nil || got == nil {
				t.Fatalf("LastLoad: %v %v", got, err)
			}
			if got.Status != LoadCompleted || got.Rows != 42 || !got.FinishedAt.Valid {
				t.Errorf("unexpected load %+v", got)
			}
			if !got.WindowSince.Equal(load.WindowSince) {
				t.Errorf("window since %s, want %s", got.WindowSince, load.WindowSince)
			}

			load.ID, load.StartedAt = "load-2", start.Add(time.Hour)
			if err := s.BeginLoad(t.Context(), load); err != nil {
				t.Fatal(err)
			}
			if err := s.FinishLoad(t.Context(), "load-2", 0, errors.New("boom")); err != nil {
				t.Fatal(err)
			}
			got, _ = s.LastLoad(t.Context())
			if got.ID != "load-2" || got.Status != LoadFailed || got.Error != "boom" {
				t.Errorf("unexpected failed load %+v", got)
			}
		})
	}
}

func TestInspection(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			s := openTemp(t, kind)
			rows := []schema.Row{item("a", 1), {"id": "b"}}
			if _, err := s.Write(t.Context(), itemsTable(), Merge, rows, "l"); err != nil {
				t.Fatal(err)
			}

			tables, err := s.Tables(t.Context())
			if err != nil {
				t.Fatal(err)
			}
			if strings.Join(tables, ",") != "_loads,items" {
				t.Errorf("unexpected tables %v", tables)
			}
			if ok, _ := s.HasTable(t.Context(), "page"); ok {
				t.Errorf("page should not exist")
			}
			nulls, err := s.NullCount(t.Context(), "items", "qty")
			if err != nil || nulls != 1 {
				t.Errorf("expected 1 null qty, got %d (%v)", nulls, err)
			}
			cols, sample, err := s.Sample(t.Context(), "items", 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(cols) != 5 || len(sample) != 1 {
				t.Fatalf("unexpected sample shape %v %v", cols, sample)
			}
			stats, err := s.Stats(t.Context())
			if err != nil {
				t.Fatal(err)
			}
			if len(stats) != 2 || stats[1].Rows != 2 || stats[1].Columns != 5 {
				t.Errorf("unexpected stats %+v", stats)
			}
		})
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ro."+string(kind))
			s, err := Open(t.Context(), kind, path, nil)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := s.Write(t.Context(), itemsTable(), Merge, []schema.Row{item("a", 1)}, "l"); err != nil {
				t.Fatal(err)
			}
			s.Close()

			ro, err := OpenReadOnly(t.Context(), kind, path, nil)
			if err != nil {
				t.Fatalf("OpenReadOnly: %v", err)
			}
			defer ro.Close()
			if n := count(t, ro, "items"); n != 1 {
				t.Errorf("expected 1 row, got %d", n)
			}
			if _, err := ro.Write(t.Context(), itemsTable(), Merge, []schema.Row{item("b", 1)}, "l"); err == nil {
				t.Errorf("expected write to a read-only store to fail")
			}
		})
	}
}

func TestExport(t *testing.T) {
	s := openTemp(t, DuckDB)
	if _, err := s.Write(t.Context(), itemsTable(), Merge, []schema.Row{item("a", 1)}, "l"); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	for _, format := range []string{"parquet", "csv"} {
		paths, err := s.Export(t.Context(), dir, format, []string{"items"})
		if err != nil {
			t.Fatalf("Export(%s): %v", format, err)
		}
		if len(paths) != 1 {
			t.Fatalf("expected one file, got %v", paths)
		}
		if info, err := os.Stat(paths[0]); err != nil || info.Size() == 0 {
			t.Errorf("expected non-empty %s export, err=%v", format, err)
		}
	}
	if _, err := s.Export(t.Context(), dir, "xlsx", []string{"items"}); err == nil {
		t.Errorf("expected unsupported format error")
	}

	lite := openTemp(t, SQLite)
	if _, err := lite.Export(t.Context(), dir, "parquet", nil); !errors.Is(err, ErrExportUnsupported) {
		t.Errorf("expected ErrExportUnsupported, got %v", err)
	}
}

func TestParseDisposition(t *testing.T) {
	cases := map[string]Disposition{"": Merge, "merge": Merge, "REPLACE": Replace, " append ": Append}
	for in, want := range cases {
		got, err := ParseDisposition(in)
		if err != nil || got != want {
			t.Errorf("ParseDisposition(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDisposition("upsert"); err == nil {
		t.Errorf("expected error for unknown disposition")
	}
}
