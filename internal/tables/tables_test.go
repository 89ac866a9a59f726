package tables

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fbpages/internal/config"
	"fbpages/internal/schema"
	"fbpages/internal/store"
)

func testConfig(t *testing.T, kind store.Kind) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	cfg.Pipeline.Destination = string(kind)
	cfg.Pipeline.DatabasePath = filepath.Join(cfg.Dir, "fb."+string(kind))
	return cfg
}

func TestMissingDatabasePrintsHint(t *testing.T) {
	cfg := testConfig(t, store.DuckDB)
	var out bytes.Buffer
	if err := Run(t.Context(), Options{Out: &out}, config.Static(cfg), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Database not found") || !strings.Contains(out.String(), "fbpages extract") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestCountsAndSamples(t *testing.T) {
	for _, kind := range []store.Kind{store.DuckDB, store.SQLite} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := testConfig(t, kind)
			st, err := store.Open(t.Context(), kind, cfg.DatabasePath(), nil)
			if err != nil {
				t.Fatal(err)
			}
			posts := schema.PostHistory()
			if err := st.EnsureTable(t.Context(), posts); err != nil {
				t.Fatal(err)
			}
			long := strings.Repeat("coffee ", 20)
			rows := []schema.Row{
				{"id": "p_1", "message": long, "page_id": "p", schema.ExtractedAtColumn: time.Now()},
				{"id": "p_2", "message": "short", "page_id": "p", schema.ExtractedAtColumn: time.Now()},
			}
			if _, err := st.Write(t.Context(), posts, store.Merge, rows, "load-1"); err != nil {
				t.Fatal(err)
			}
			if err := st.EnsureTable(t.Context(), schema.Page()); err != nil {
				t.Fatal(err)
			}
			st.Close()

			var out bytes.Buffer
			if err := Run(t.Context(), Options{Out: &out, Samples: 1}, config.Static(cfg), nil); err != nil {
				t.Fatalf("Run: %v", err)
			}
			got := out.String()
			if !strings.Contains(got, "post_history") || !strings.Contains(got, "2 rows") {
				t.Errorf("missing post_history count:\n%s", got)
			}
			if !strings.Contains(got, "post_history (first 1 rows)") {
				t.Errorf("missing sample header:\n%s", got)
			}
			if strings.Contains(got, "page (first") {
				t.Errorf("empty tables should not be sampled:\n%s", got)
			}
			if strings.Contains(got, long) {
				t.Errorf("long values should be clipped:\n%s", got)
			}
		})
	}
}
