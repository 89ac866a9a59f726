package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tables lists the user tables in the database, sorted by name.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	q := `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name`
	if s.kind == SQLite {
		q = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}
	return queryStrings(ctx, s.db, q)
}

// HasTable reports whether name exists.
func (s *Store) HasTable(ctx context.Context, name string) (bool, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t == name {
			return true, nil
		}
	}
	return false, nil
}

// Columns returns the column names of table in ordinal order.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	return s.columns(ctx, s.db, table)
}

func (s *Store) columns(ctx context.Context, q execQuerier, table string) ([]string, error) {
	query := `SELECT column_name FROM information_schema.columns WHERE table_schema = 'main' AND table_name = ? ORDER BY ordinal_position`
	if s.kind == SQLite {
		query = `SELECT name FROM pragma_table_info(?) ORDER BY cid`
	}
	cols, err := queryStrings(ctx, q, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	return cols, nil
}

func queryStrings(ctx context.Context, q execQuerier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) RowCount(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return n, nil
}

// NullCount returns how many rows of table have a null column.
func (s *Store) NullCount(ctx context.Context, table, column string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", quoteIdent(table), quoteIdent(column))
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count nulls of %s.%s: %w", table, column, err)
	}
	return n, nil
}

// Sample returns up to limit rows of table, with values rendered as text.
func (s *Store) Sample(ctx context.Context, table string, limit int) ([]string, [][]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), limit))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sample %s: %w", table, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		rec := make([]string, len(cols))
		for i, v := range vals {
			rec[i] = FormatValue(v)
		}
		out = append(out, rec)
	}
	return cols, out, rows.Err()
}

// TableStat summarizes one table.
type TableStat struct {
	Name    string `json:"name"`
	Rows    int64  `json:"rows"`
	Columns int    `json:"columns"`
}

// Stats returns row and column counts for every table.
func (s *Store) Stats(ctx context.Context) ([]TableStat, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TableStat, 0, len(tables))
	for _, t := range tables {
		n, err := s.RowCount(ctx, t)
		if err != nil {
			return nil, err
		}
		cols, err := s.Columns(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, TableStat{Name: t, Rows: n, Columns: len(cols)})
	}
	return out, nil
}

// FormatValue renders a scanned database value for console output.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case sql.NullString:
		if !x.Valid {
			return "NULL"
		}
		return x.String
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
