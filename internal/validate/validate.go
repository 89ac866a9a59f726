// Package validate checks a loaded database against the tables and columns
// the downstream dbt models expect.
package validate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"fbpages/internal/config"
	"fbpages/internal/schema"
	"fbpages/internal/store"
)

var ErrValidationFailed = errors.New("validation failed")

// Expectation lists the columns a table must carry.
type Expectation struct {
	Table   string
	Columns []string
}

// Expected is the set of tables and required columns the dbt project reads.
var Expected = []Expectation{
	{Table: schema.PageTable, Columns: []string{"id", "name", "category", "fan_count", schema.ExtractedAtColumn}},
	{Table: schema.PostHistoryTable, Columns: []string{"id", "message", "created_time", "page_id", schema.ExtractedAtColumn}},
	{Table: schema.DailyPageMetricsTable, Columns: []string{"page_id", "date", "page_impressions", "page_fan_adds"}},
	{Table: schema.LifetimePostMetricsTable, Columns: []string{"post_id", "date", "post_impressions", "post_clicks"}},
}

// DBTFiles are the dbt project files that must exist when a project
// directory is configured.
var DBTFiles = []string{
	"dbt_project.yml",
	"models/staging/src_facebook_pages.yml",
	"models/facebook_pages__pages_report.sql",
	"models/facebook_pages__posts_report.sql",
}

const sampleRows = 3

type TableResult struct {
	Table          string     `json:"table"`
	Exists         bool       `json:"exists"`
	Rows           int64      `json:"rows"`
	Columns        int        `json:"columns"`
	MissingColumns []string   `json:"missing_columns,omitempty"`
	Problems       []string   `json:"problems,omitempty"`
	SampleColumns  []string   `json:"-"`
	Sample         [][]string `json:"-"`
}

func (r TableResult) Passed() bool { return len(r.Problems) == 0 }

type DBTResult struct {
	Dir     string   `json:"dir"`
	Missing []string `json:"missing,omitempty"`
}

func (r DBTResult) Passed() bool { return len(r.Missing) == 0 }

type Report struct {
	Database string        `json:"database"`
	Found    []string      `json:"found"`
	Tables   []TableResult `json:"tables"`
	DBT      *DBTResult    `json:"dbt,omitempty"`
	LastLoad *store.Load   `json:"-"`
}

// Passed reports whether every table and the optional dbt check passed.
func (r Report) Passed() bool {
	for _, t := range r.Tables {
		if !t.Passed() {
			return false
		}
	}
	return r.DBT == nil || r.DBT.Passed()
}

// Compatibility scores one point per existing table and one per table with
// all required columns, as a percentage.
func (r Report) Compatibility() float64 {
	if len(r.Tables) == 0 {
		return 0
	}
	score := 0
	for _, t := range r.Tables {
		if t.Exists {
			score++
			if len(t.MissingColumns) == 0 {
				score++
			}
		}
	}
	return float64(score) * 100 / float64(2*len(r.Tables))
}

func (r Report) Failed() []string {
	var out []string
	for _, t := range r.Tables {
		if !t.Passed() {
			out = append(out, t.Table)
		}
	}
	return out
}

type Options struct {
	Out io.Writer
}

// Run validates the configured database, prints the report and returns
// ErrValidationFailed when any check fails. A missing database is reported
// as a failure of every table.
func Run(ctx context.Context, opts Options, load config.Loader, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	cfg, err := load()
	if err != nil {
		return Report{}, err
	}
	kind, err := store.ParseKind(cfg.Pipeline.Destination)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	rep := Report{Database: cfg.DatabasePath()}
	if _, err := os.Stat(rep.Database); errors.Is(err, os.ErrNotExist) {
		logger.Warn("database not found", zap.String("path", rep.Database))
		rep.Tables = failAll("database file not found")
	} else if st, err := store.OpenReadOnly(ctx, kind, rep.Database, logger); err != nil {
		logger.Warn("cannot open database", zap.String("path", rep.Database), zap.Error(err))
		rep.Tables = failAll("cannot open database: " + err.Error())
	} else {
		defer st.Close()

		if rep.Found, err = st.Tables(ctx); err != nil {
			return rep, err
		}
		if rep.Tables, err = Check(ctx, st, cfg.Validation); err != nil {
			return rep, err
		}
		if has, _ := st.HasTable(ctx, store.LoadsTable); has {
			if rep.LastLoad, err = st.LastLoad(ctx); err != nil {
				logger.Warn("failed to read load history", zap.Error(err))
			}
		}
	}

	if dir := config.ExpandPath(cfg.Validation.DBTProjectDir); dir != "" {
		d := CheckDBT(dir)
		rep.DBT = &d
	}

	Print(out, rep)
	if !rep.Passed() {
		return rep, fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(rep.failureReasons(), "; "))
	}
	return rep, nil
}

// failAll marks every expected table failed for the same reason.
func failAll(problem string) []TableResult {
	out := make([]TableResult, 0, len(Expected))
	for _, e := range Expected {
		out = append(out, TableResult{
			Table:          e.Table,
			MissingColumns: e.Columns,
			Problems:       []string{problem},
		})
	}
	return out
}

func (r Report) failureReasons() []string {
	var out []string
	if failed := r.Failed(); len(failed) > 0 {
		out = append(out, "tables failed: "+strings.Join(failed, ", "))
	}
	if r.DBT != nil && !r.DBT.Passed() {
		out = append(out, "dbt project incomplete")
	}
	return out
}

// Check runs the table checks against an open store.
func Check(ctx context.Context, st *store.Store, v config.ValidationConfig) ([]TableResult, error) {
	results := make([]TableResult, 0, len(Expected))
	for _, e := range Expected {
		r, err := checkTable(ctx, st, e, v)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func checkTable(ctx context.Context, st *store.Store, e Expectation, v config.ValidationConfig) (TableResult, error) {
	r := TableResult{Table: e.Table}
	exists, err := st.HasTable(ctx, e.Table)
	if err != nil {
		return r, err
	}
	if !exists {
		r.MissingColumns = e.Columns
		r.Problems = append(r.Problems, "table not found")
		return r, nil
	}
	r.Exists = true

	if r.Rows, err = st.RowCount(ctx, e.Table); err != nil {
		return r, err
	}
	cols, err := st.Columns(ctx, e.Table)
	if err != nil {
		return r, err
	}
	r.Columns = len(cols)
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	for _, c := range e.Columns {
		if !have[c] {
			r.MissingColumns = append(r.MissingColumns, c)
		}
	}

	minRows := v.MinRows
	if minRows <= 0 {
		minRows = 1
	}
	if r.Rows < minRows {
		r.Problems = append(r.Problems, fmt.Sprintf("table has %d rows (minimum %d)", r.Rows, minRows))
	}
	if len(r.MissingColumns) > 0 {
		r.Problems = append(r.Problems, "missing required columns: "+strings.Join(r.MissingColumns, ", "))
	}

	maxNull := v.MaxNullRate
	if maxNull <= 0 || maxNull > 1 {
		maxNull = 1
	}
	if r.Rows > 0 {
		for _, c := range e.Columns {
			if !have[c] {
				continue
			}
			nulls, err := st.NullCount(ctx, e.Table, c)
			if err != nil {
				return r, err
			}
			rate := float64(nulls) / float64(r.Rows)
			switch {
			case rate >= 1 && maxNull >= 1:
				r.Problems = append(r.Problems, fmt.Sprintf("required column %s is entirely null", c))
			case rate >= maxNull:
				r.Problems = append(r.Problems, fmt.Sprintf("required column %s null rate %.1f%% (limit %.1f%%)", c, rate*100, maxNull*100))
			}
		}

		if r.SampleColumns, r.Sample, err = st.Sample(ctx, e.Table, sampleRows); err != nil {
			return r, err
		}
	}
	return r, nil
}

// CheckDBT reports which key dbt project files are missing under dir.
func CheckDBT(dir string) DBTResult {
	r := DBTResult{Dir: dir}
	for _, f := range DBTFiles {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f))); err != nil {
			r.Missing = append(r.Missing, f)
		}
	}
	return r
}
