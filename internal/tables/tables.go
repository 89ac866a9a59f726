package tables

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"fbpages/internal/config"
	"fbpages/internal/store"
)

const (
	defaultSamples = 3
	maxCellWidth   = 60
)

type Options struct {
	Out io.Writer
	// Samples is the number of rows printed per table; negative disables samples.
	Samples int
}

// Run prints the row count of every table in the configured database and a
// few sample rows of each.
func Run(ctx context.Context, opts Options, load config.Loader, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	samples := opts.Samples
	if samples == 0 {
		samples = defaultSamples
	}

	cfg, err := load()
	if err != nil {
		return err
	}
	kind, err := store.ParseKind(cfg.Pipeline.Destination)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	dbPath := cfg.DatabasePath()
	if !fileExists(dbPath) {
		fmt.Fprintf(out, "Database not found at %s\n", dbPath)
		fmt.Fprintln(out, "Hint: run 'fbpages extract' to create and populate it, or set pipeline.database_path in config.toml.")
		return nil
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
	if len(stats) == 0 {
		fmt.Fprintf(out, "Database %s has no tables yet.\n", dbPath)
		fmt.Fprintln(out, "Hint: run 'fbpages extract' once to create them.")
		return nil
	}

	fmt.Fprintf(out, "Tables in %s:\n", dbPath)
	for _, s := range stats {
		fmt.Fprintf(out, "  %-30s %8d rows  %3d columns\n", s.Name, s.Rows, s.Columns)
	}
	if samples < 0 {
		return nil
	}

	for _, s := range stats {
		if s.Rows == 0 {
			continue
		}
		cols, rows, err := st.Sample(ctx, s.Name, samples)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s (first %d rows)\n", s.Name, len(rows))
		for i, r := range rows {
			fmt.Fprintf(out, "  row %d\n", i+1)
			for j, c := range cols {
				fmt.Fprintf(out, "    %s: %s\n", c, clip(r[j]))
			}
		}
		fmt.Fprintln(out, strings.Repeat("-", 80))
	}
	return nil
}

func clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > maxCellWidth {
		return string(r[:maxCellWidth]) + "..."
	}
	return s
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
