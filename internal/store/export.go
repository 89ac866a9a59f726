package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Export copies each named table into dir as a parquet or csv file and
// returns the written paths.
func (s *Store) Export(ctx context.Context, dir, format string, tables []string) ([]string, error) {
	if s.kind != DuckDB {
		return nil, ErrExportUnsupported
	}
	var opts, ext string
	switch strings.ToLower(format) {
	case "parquet", "":
		opts, ext = "FORMAT PARQUET", ".parquet"
	case "csv":
		opts, ext = "FORMAT CSV, HEADER", ".csv"
	default:
		return nil, fmt.Errorf("unsupported export format %q (want parquet or csv)", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var paths []string
	for _, t := range tables {
		path := filepath.Join(dir, t+ext)
		stmt := fmt.Sprintf("COPY %s TO %s (%s)", quoteIdent(t), quoteLiteral(path), opts)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return paths, fmt.Errorf("failed to export %s: %w", t, err)
		}
		s.logger.Info("exported table", zap.String("table", t), zap.String("file", path))
		paths = append(paths, path)
	}
	return paths, nil
}
