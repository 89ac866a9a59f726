package validate

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const rule = "============================================================"

// Print writes a human-readable report to w.
func Print(w io.Writer, r Report) {
	fmt.Fprintf(w, "🔍 Validating %s\n", r.Database)
	if len(r.Found) > 0 {
		fmt.Fprintf(w, "Found tables: %s\n", strings.Join(r.Found, ", "))
	}

	for _, t := range r.Tables {
		fmt.Fprintf(w, "\n📊 %s\n", t.Table)
		if !t.Exists {
			for _, p := range t.Problems {
				fmt.Fprintf(w, "  ❌ %s\n", p)
			}
			continue
		}
		fmt.Fprintf(w, "  ✅ exists: %d columns, %d rows\n", t.Columns, t.Rows)
		if len(t.MissingColumns) == 0 {
			fmt.Fprintln(w, "  ✅ all required columns present")
		}
		for _, p := range t.Problems {
			fmt.Fprintf(w, "  ❌ %s\n", p)
		}
		printSample(w, t)
	}

	if r.DBT != nil {
		fmt.Fprintf(w, "\n🔧 dbt project %s\n", r.DBT.Dir)
		if r.DBT.Passed() {
			fmt.Fprintln(w, "  ✅ all key dbt files found")
		} else {
			fmt.Fprintf(w, "  ❌ missing dbt files: %s\n", strings.Join(r.DBT.Missing, ", "))
		}
	}

	existing, rows := 0, int64(0)
	for _, t := range r.Tables {
		if t.Exists {
			existing++
		}
		rows += t.Rows
	}
	fmt.Fprintf(w, "\n%s\n📈 VALIDATION SUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(w, "Tables found: %d/%d\n", existing, len(r.Tables))
	fmt.Fprintf(w, "Total rows: %d\n", rows)
	fmt.Fprintf(w, "dbt compatibility: %.1f%%\n", r.Compatibility())
	if l := r.LastLoad; l != nil {
		fmt.Fprintf(w, "Last load: %s %s (started %s, %d rows)\n", l.ID, l.Status, l.StartedAt.UTC().Format(time.RFC3339), l.Rows)
	}
	if r.Passed() {
		fmt.Fprintln(w, "🎉 PASS: output is compatible with the dbt models")
		return
	}
	fmt.Fprintf(w, "❌ FAIL: %s\n", strings.Join(r.failureReasons(), "; "))
}

func printSample(w io.Writer, t TableResult) {
	if len(t.Sample) == 0 {
		return
	}
	required := map[string]bool{}
	for _, e := range Expected {
		if e.Table == t.Table {
			for _, c := range e.Columns {
				required[c] = true
			}
		}
	}
	fmt.Fprintf(w, "  📝 sample (first %d rows):\n", len(t.Sample))
	for i, row := range t.Sample {
		var parts []string
		for j, c := range t.SampleColumns {
			if required[c] && j < len(row) {
				parts = append(parts, c+"="+truncate(row[j], 40))
			}
		}
		fmt.Fprintf(w, "     row %d: %s\n", i+1, strings.Join(parts, " "))
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
