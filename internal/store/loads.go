package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fbpages/internal/schema"
)

// LoadsTable records one row per pipeline run.
const LoadsTable = "_loads"

const (
	LoadRunning   = "running"
	LoadCompleted = "completed"
	LoadFailed    = "failed"
)

type Load struct {
	ID          string
	Pipeline    string
	Status      string
	StartedAt   time.Time
	FinishedAt  sql.NullTime
	WindowSince time.Time
	WindowUntil time.Time
	Rows        int64
	Error       string
}

func (s *Store) initLedger(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    load_id %[2]s PRIMARY KEY,
    pipeline_name %[2]s NOT NULL,
    status %[2]s NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    window_since TIMESTAMP,
    window_until TIMESTAMP,
    row_count BIGINT DEFAULT 0,
    error_message %[2]s
)`, quoteIdent(LoadsTable), s.columnType(schema.Text))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create %s: %w", LoadsTable, err)
	}
	return nil
}

// BeginLoad records l as running.
func (s *Store) BeginLoad(ctx context.Context, l Load) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+quoteIdent(LoadsTable)+` (load_id, pipeline_name, status, started_at, window_since, window_until, row_count)
VALUES (?, ?, ?, ?, ?, ?, 0)`,
		l.ID, l.Pipeline, LoadRunning, l.StartedAt.UTC(), l.WindowSince.UTC(), l.WindowUntil.UTC())
	if err != nil {
		return fmt.Errorf("failed to record load %s: %w", l.ID, err)
	}
	return nil
}

// FinishLoad marks the load completed, or failed when runErr is non-nil.
func (s *Store) FinishLoad(ctx context.Context, id string, rows int64, runErr error) error {
	status, msg := LoadCompleted, sql.NullString{}
	if runErr != nil {
		status = LoadFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE `+quoteIdent(LoadsTable)+` SET status = ?, finished_at = ?, row_count = ?, error_message = ? WHERE load_id = ?`,
		status, time.Now().UTC(), rows, msg, id)
	if err != nil {
		return fmt.Errorf("failed to finish load %s: %w", id, err)
	}
	return nil
}

// LastLoad returns the most recently started load, or nil if none exist.
func (s *Store) LastLoad(ctx context.Context) (*Load, error) {
	row := s.db.QueryRowContext(ctx, `SELECT load_id, pipeline_name, status, started_at, finished_at, window_since, window_until, row_count, error_message
FROM `+quoteIdent(LoadsTable)+` ORDER BY started_at DESC LIMIT 1`)
	var (
		l     Load
		since sql.NullTime
		until sql.NullTime
		count sql.NullInt64
		msg   sql.NullString
	)
	if err := row.Scan(&l.ID, &l.Pipeline, &l.Status, &l.StartedAt, &l.FinishedAt, &since, &until, &count, &msg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read last load: %w", err)
	}
	l.WindowSince, l.WindowUntil = since.Time, until.Time
	l.Rows, l.Error = count.Int64, msg.String
	return &l, nil
}
