package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"go.uber.org/zap"

	"fbpages/internal/config"
	"fbpages/internal/schema"
	"fbpages/internal/store"
)

type ExportOptions struct {
	Format string // parquet or csv
	Dir    string
	// Tables limits the export; empty means every loaded pipeline table.
	Tables []string
	Out    io.Writer
}

// Export copies the loaded tables out of the DuckDB database into files.
func Export(ctx context.Context, opts ExportOptions, load config.Loader, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	kind, err := store.ParseKind(cfg.Pipeline.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		return nil, fmt.Errorf("database %s not found, run extract first: %w", cfg.DatabasePath(), err)
	}
	st, err := store.OpenReadOnly(ctx, kind, cfg.DatabasePath(), logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	existing, err := st.Tables(ctx)
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, name := range schema.Names() {
		if len(opts.Tables) > 0 && !slices.Contains(opts.Tables, name) {
			continue
		}
		if slices.Contains(existing, name) {
			tables = append(tables, name)
		}
	}
	for _, name := range opts.Tables {
		if !slices.Contains(tables, name) {
			return nil, fmt.Errorf("%w: table %q is not loaded", config.ErrInvalidConfig, name)
		}
	}

	dir := opts.Dir
	if dir == "" {
		dir = "export"
	}
	paths, err := st.Export(ctx, config.ExpandPath(dir), opts.Format, tables)
	if err != nil {
		return paths, err
	}
	for _, p := range paths {
		fmt.Fprintf(out, "wrote %s\n", p)
	}
	return paths, nil
}
