package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fbpages/internal/schema"
)

// EnsureTable creates t if it does not exist and adds any columns the
// existing table lacks.
func (s *Store) EnsureTable(ctx context.Context, t schema.Table) error {
	return s.ensureTable(ctx, s.db, t)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) createTableSQL(t schema.Table, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(quoteIdent(t.Name))
	b.WriteString(" (\n")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "    %s %s", quoteIdent(c.Name), s.columnType(c.Type))
		if t.IsKey(c.Name) {
			b.WriteString(" NOT NULL")
		}
	}
	if len(t.PrimaryKey) > 0 {
		keys := make([]string, len(t.PrimaryKey))
		for i, k := range t.PrimaryKey {
			keys[i] = quoteIdent(k)
		}
		fmt.Fprintf(&b, ",\n    PRIMARY KEY (%s)", strings.Join(keys, ", "))
	}
	b.WriteString("\n)")
	return b.String()
}

func (s *Store) ensureTable(ctx context.Context, q execQuerier, t schema.Table) error {
	if _, err := q.ExecContext(ctx, s.createTableSQL(t, true)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.Name, err)
	}
	existing, err := s.columns(ctx, q, t.Name)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}
	for _, c := range t.Columns {
		if have[c.Name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(t.Name), quoteIdent(c.Name), s.columnType(c.Type))
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", t.Name, c.Name, err)
		}
		s.logger.Info("added column", zap.String("table", t.Name), zap.String("column", c.Name))
	}
	return nil
}

// Write stores rows into t according to disposition and returns the number
// of rows written. Rows sharing a primary key collapse to the last one, and
// rows with a null key are skipped. Every written row is stamped with
// loadID. The write runs in a single transaction.
func (s *Store) Write(ctx context.Context, t schema.Table, d Disposition, rows []schema.Row, loadID string) (int, error) {
	batch := s.dedupe(t, rows)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	switch d {
	case Replace:
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(t.Name)); err != nil {
			return 0, fmt.Errorf("failed to drop table %s: %w", t.Name, err)
		}
		if _, err := tx.ExecContext(ctx, s.createTableSQL(t, false)); err != nil {
			return 0, fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	case Merge, Append:
		if err := s.ensureTable(ctx, tx, t); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unknown write disposition %q", d)
	}

	stmt, err := tx.PrepareContext(ctx, s.insertSQL(t, d))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert into %s: %w", t.Name, err)
	}
	defer stmt.Close()

	loadIdx := -1
	for i, c := range t.Columns {
		if c.Name == schema.LoadIDColumn {
			loadIdx = i
		}
	}
	for _, r := range batch {
		vals := t.Normalize(r)
		if loadIdx >= 0 {
			vals[loadIdx] = loadID
		}
		for i, c := range t.Columns {
			vals[i] = s.bind(c.Type, vals[i])
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return 0, fmt.Errorf("failed to write %s row %s: %w", t.Name, t.Key(r), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", t.Name, err)
	}
	s.logger.Debug("wrote table",
		zap.String("table", t.Name),
		zap.String("disposition", string(d)),
		zap.Int("rows", len(batch)),
	)
	return len(batch), nil
}

func (s *Store) dedupe(t schema.Table, rows []schema.Row) []schema.Row {
	if len(t.PrimaryKey) == 0 {
		return rows
	}
	out := make([]schema.Row, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, r := range rows {
		if !hasKey(t, r) {
			s.logger.Warn("skipping row without primary key", zap.String("table", t.Name))
			continue
		}
		k := t.Key(r)
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

func hasKey(t schema.Table, r schema.Row) bool {
	for _, k := range t.PrimaryKey {
		c, _ := t.Column(k)
		if schema.Coerce(c.Type, r[k]) == nil {
			return false
		}
	}
	return true
}

func (s *Store) insertSQL(t schema.Table, d Disposition) string {
	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(t.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
	if d != Merge || len(t.PrimaryKey) == 0 {
		return q
	}

	keys := make([]string, len(t.PrimaryKey))
	for i, k := range t.PrimaryKey {
		keys[i] = quoteIdent(k)
	}
	var sets []string
	for _, c := range t.Columns {
		if t.IsKey(c.Name) {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdent(c.Name), quoteIdent(c.Name)))
	}
	if len(sets) == 0 {
		return q + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(keys, ", "))
	}
	return q + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
}
