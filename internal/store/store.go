// Package store persists table rows into an embedded database file. DuckDB
// is the default destination; SQLite is supported for environments where
// the DuckDB driver's cgo build is not available.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"fbpages/internal/schema"
)

type Kind string

const (
	DuckDB Kind = "duckdb"
	SQLite Kind = "sqlite"
)

// ParseKind maps a configured destination name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case DuckDB, "":
		return DuckDB, nil
	case SQLite:
		return SQLite, nil
	}
	return "", fmt.Errorf("unknown destination %q", s)
}

// Disposition controls how a batch of rows is written to an existing table.
type Disposition string

const (
	Merge   Disposition = "merge"
	Replace Disposition = "replace"
	Append  Disposition = "append"
)

func ParseDisposition(s string) (Disposition, error) {
	switch d := Disposition(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return Merge, nil
	case Merge, Replace, Append:
		return d, nil
	}
	return "", fmt.Errorf("unknown write disposition %q", s)
}

var ErrExportUnsupported = errors.New("export is only supported for duckdb destinations")

// Store wraps a single-connection handle to the output database.
type Store struct {
	db     *sql.DB
	kind   Kind
	path   string
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and ensures the
// loads ledger exists.
func Open(ctx context.Context, kind Kind, path string, logger *zap.Logger) (*Store, error) {
	s, err := open(ctx, kind, path, false, logger)
	if err != nil {
		return nil, err
	}
	if err := s.initLedger(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens an existing database without write access.
func OpenReadOnly(ctx context.Context, kind Kind, path string, logger *zap.Logger) (*Store, error) {
	return open(ctx, kind, path, true, logger)
}

func open(ctx context.Context, kind Kind, path string, readOnly bool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var driver, dsn string
	switch kind {
	case DuckDB:
		driver, dsn = "duckdb", path
		if readOnly {
			dsn += "?access_mode=read_only"
		}
	case SQLite:
		driver = "sqlite"
		if readOnly {
			dsn = fmt.Sprintf("file:%s?mode=ro", path)
		} else {
			dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
		}
	default:
		return nil, fmt.Errorf("unknown destination %q", kind)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database %s: %w", kind, path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s database %s: %w", kind, path, err)
	}
	return &Store{
		db:     db,
		kind:   kind,
		path:   path,
		logger: logger.With(zap.String("destination", string(kind)), zap.String("path", path)),
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for ad-hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// columnType maps a schema column type onto the destination's SQL type.
func (s *Store) columnType(ct schema.ColumnType) string {
	if s.kind == SQLite {
		switch ct {
		case schema.BigInt, schema.Bool:
			return "INTEGER"
		case schema.Double:
			return "REAL"
		case schema.Timestamp:
			return "TIMESTAMP"
		default:
			return "TEXT"
		}
	}
	switch ct {
	case schema.BigInt:
		return "BIGINT"
	case schema.Double:
		return "DOUBLE"
	case schema.Bool:
		return "BOOLEAN"
	case schema.Timestamp:
		return "TIMESTAMP"
	case schema.Date:
		return "DATE"
	default:
		return "VARCHAR"
	}
}

// bind adapts a coerced value to what the driver accepts for the column.
func (s *Store) bind(ct schema.ColumnType, v any) any {
	if v == nil {
		return nil
	}
	if s.kind == DuckDB && ct == schema.Date {
		if d, ok := v.(string); ok {
			if t, err := time.ParseInLocation(time.DateOnly, d, time.UTC); err == nil {
				return t
			}
			return nil
		}
	}
	return v
}
