// Package pipeline runs one extract-and-load pass: it pulls the selected
// Facebook Page resources from the Graph API and writes them to the
// configured database.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fbpages/internal/config"
	"fbpages/internal/graph"
	"fbpages/internal/metrics"
	"fbpages/internal/schema"
	"fbpages/internal/source"
	"fbpages/internal/store"
)

// Options allow overriding config values from CLI flags.
type Options struct {
	// Tables restricts the run to these tables; empty means pipeline.tables.
	Tables []string
	Out    io.Writer
	Now    func() time.Time

	HTTPClient *http.Client
}

type TableResult struct {
	Table       string
	Disposition store.Disposition
	Rows        int
}

// Summary describes a finished run.
type Summary struct {
	LoadID   string
	Since    time.Time
	Until    time.Time
	Database string
	Tables   []TableResult
	Rows     int
}

type plan struct {
	table       string
	disposition store.Disposition
}

// Run executes a single extraction run. Credentials are checked before any
// HTTP client exists, so a misconfigured run never reaches the network.
func Run(ctx context.Context, opts Options, load config.Loader, logger *zap.Logger) (Summary, error) {
	var sum Summary
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	cfg, err := load()
	if err != nil {
		return sum, err
	}
	if err := cfg.CheckCredentials(); err != nil {
		return sum, err
	}
	plans, err := planTables(&cfg, opts.Tables)
	if err != nil {
		return sum, err
	}
	since, until, err := cfg.Window(now())
	if err != nil {
		return sum, err
	}
	kind, err := store.ParseKind(cfg.Pipeline.Destination)
	if err != nil {
		return sum, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	sum.LoadID = uuid.NewString()
	sum.Since, sum.Until = since, until
	sum.Database = cfg.DatabasePath()
	logger = logger.With(zap.String("pipeline", cfg.Pipeline.Name), zap.String("load_id", sum.LoadID))

	collector := metrics.NewCollector(cfg.Pipeline.Name)
	client := graph.New(graph.Options{
		BaseURL:     cfg.API.BaseURL,
		Version:     cfg.API.Version,
		AccessToken: cfg.Facebook.AccessToken,
		Timeout:     time.Duration(cfg.API.TimeoutSec) * time.Second,
		MaxAttempts: cfg.API.MaxAttempts,
		Backoff:     time.Duration(cfg.API.BackoffMillis) * time.Millisecond,
		HTTPClient:  opts.HTTPClient,
		Logger:      logger,
		OnResponse:  collector.ObserveRequest,
	})
	src := source.New(client, source.Options{
		PageID:        cfg.Facebook.PageID,
		Window:        source.Window{Since: since, Until: until},
		PageSize:      cfg.API.PageSize,
		MaxWindowDays: cfg.API.MaxWindowDays,
		Now:           now,
		Logger:        logger,
	})

	st, err := store.Open(ctx, kind, sum.Database, logger)
	if err != nil {
		return sum, err
	}
	defer st.Close()

	logger.Info("starting load",
		zap.String("since", since.Format(config.DateLayout)),
		zap.String("until", until.Format(config.DateLayout)),
		zap.String("database", sum.Database),
	)
	if err := st.BeginLoad(ctx, store.Load{
		ID:          sum.LoadID,
		Pipeline:    cfg.Pipeline.Name,
		StartedAt:   now(),
		WindowSince: since,
		WindowUntil: until,
	}); err != nil {
		return sum, err
	}

	runErr := loadTables(ctx, src, st, plans, sum.LoadID, collector, logger, &sum)

	// record the outcome even when ctx was cancelled mid-run
	finishCtx := context.WithoutCancel(ctx)
	if err := st.FinishLoad(finishCtx, sum.LoadID, int64(sum.Rows), runErr); err != nil {
		logger.Error("failed to record load outcome", zap.Error(err))
	}
	collector.Finish(runErr)
	if path := config.ExpandPath(cfg.Pipeline.MetricsTextfile); path != "" {
		if err := collector.WriteTextfile(path); err != nil {
			logger.Warn("failed to write metrics textfile", zap.Error(err))
		}
	}
	if runErr != nil {
		logger.Error("load failed", zap.Error(runErr))
		return sum, runErr
	}

	if dir := config.ExpandPath(cfg.Pipeline.SchemaExportDir); dir != "" {
		if err := exportSchema(dir, cfg.Pipeline.Name, plans); err != nil {
			logger.Warn("failed to export schema", zap.Error(err))
		}
	}
	logger.Info("load completed", zap.Int("rows", sum.Rows))
	printSummary(out, cfg.Pipeline.Name, kind, sum)
	return sum, nil
}

func loadTables(ctx context.Context, src *source.Source, st *store.Store, plans []plan, loadID string, collector *metrics.Collector, logger *zap.Logger, sum *Summary) error {
	for _, p := range plans {
		res, ok := src.Resource(p.table)
		if !ok {
			return fmt.Errorf("no resource for table %s", p.table)
		}
		start := time.Now()
		rows, err := res.Extract(ctx)
		if err != nil {
			return fmt.Errorf("extract %s: %w", p.table, err)
		}
		n, err := st.Write(ctx, res.Table, p.disposition, rows, loadID)
		if err != nil {
			return fmt.Errorf("load %s: %w", p.table, err)
		}
		collector.AddRows(p.table, n)
		sum.Tables = append(sum.Tables, TableResult{Table: p.table, Disposition: p.disposition, Rows: n})
		sum.Rows += n
		logger.Info("loaded table",
			zap.String("table", p.table),
			zap.String("disposition", string(p.disposition)),
			zap.Int("rows", n),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return nil
}

// planTables resolves the selected tables into load order with their
// write dispositions.
func planTables(cfg *config.AppConfig, override []string) ([]plan, error) {
	selected := override
	if len(selected) == 0 {
		selected = cfg.Pipeline.Tables
	}
	want := map[string]bool{}
	for _, name := range selected {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := schema.ByName(name); !ok {
			return nil, fmt.Errorf("%w: unknown table %q (valid: %s)", config.ErrInvalidConfig, name, strings.Join(schema.Names(), ", "))
		}
		want[name] = true
	}

	var plans []plan
	for _, name := range schema.Names() {
		if len(want) > 0 && !want[name] {
			continue
		}
		d, err := store.ParseDisposition(cfg.WriteDisposition(name))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		plans = append(plans, plan{table: name, disposition: d})
	}
	return plans, nil
}

func exportSchema(dir, name string, plans []plan) error {
	tables := make([]schema.Table, 0, len(plans))
	dispositions := make(map[string]string, len(plans))
	for _, p := range plans {
		t, _ := schema.ByName(p.table)
		tables = append(tables, t)
		dispositions[p.table] = string(p.disposition)
	}
	_, err := schema.ExportYAML(dir, name, tables, dispositions)
	return err
}

func printSummary(w io.Writer, name string, kind store.Kind, sum Summary) {
	fmt.Fprintf(w, "Pipeline %s completed (load %s)\n", name, sum.LoadID)
	fmt.Fprintf(w, "Window: %s -> %s\n", sum.Since.Format(config.DateLayout), sum.Until.Format(config.DateLayout))
	fmt.Fprintf(w, "Destination: %s %s\n", kind, sum.Database)
	for _, t := range sum.Tables {
		fmt.Fprintf(w, "  %-30s %6d rows (%s)\n", t.Table, t.Rows, t.Disposition)
	}
	fmt.Fprintf(w, "Total: %d rows\n", sum.Rows)
}

// IsConfigError reports whether err stems from configuration rather than the
// API or the database.
func IsConfigError(err error) bool {
	return errors.Is(err, config.ErrMissingCredentials) || errors.Is(err, config.ErrInvalidConfig)
}
