package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// =============================================================================
// SWEEP RUNS
// =============================================================================

// SweepRun tracks one weekend sweep over all employees.
type SweepRun struct {
	ID          string     `json:"id"`
	Year        int        `json:"year"`
	Month       int        `json:"month"`
	Status      string     `json:"status"` // running, completed, failed
	Employees   int        `json:"employees"`
	Marked      int        `json:"marked"`
	Failed      int        `json:"failed"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

const (
	SweepRunning   = "running"
	SweepCompleted = "completed"
	SweepFailed    = "failed"
)

// SaveSweepRun inserts or updates a sweep run by ID.
func (s *Store) SaveSweepRun(ctx context.Context, r SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sweep_runs (id, year, month, status, employees, marked, failed,
			error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			employees = excluded.employees,
			marked = excluded.marked,
			failed = excluded.failed,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	var startedAt, completedAt *string
	if r.StartedAt != nil {
		s := formatTime(*r.StartedAt)
		startedAt = &s
	}
	if r.CompletedAt != nil {
		s := formatTime(*r.CompletedAt)
		completedAt = &s
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Year, r.Month, r.Status, r.Employees, r.Marked, r.Failed,
		nullString(r.Error), startedAt, completedAt, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save sweep run: %w", err)
	}
	return nil
}

// ListSweepRuns returns sweep runs, newest first, optionally filtered by status.
func (s *Store) ListSweepRuns(ctx context.Context, status string) ([]SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, year, month, status, employees, marked, failed,
			error, started_at, completed_at, created_at
		FROM sweep_runs
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep runs: %w", err)
	}
	defer rows.Close()

	var runs []SweepRun
	for rows.Next() {
		var r SweepRun
		var errText, startedAt, completedAt sql.NullString
		var createdAt string
		if err := rows.Scan(
			&r.ID, &r.Year, &r.Month, &r.Status, &r.Employees, &r.Marked, &r.Failed,
			&errText, &startedAt, &completedAt, &createdAt,
		); err != nil {
			return nil, err
		}

		r.Error = errText.String
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if startedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, startedAt.String)
			r.StartedAt = &t
		}
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// IsSweepComplete checks if a sweep for the month has already completed.
func (s *Store) IsSweepComplete(ctx context.Context, year int, month time.Month) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sweep_runs
		WHERE year = ? AND month = ? AND status = ?
	`, year, int(month), SweepCompleted).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
