package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// SUMMARY STORE (attendance.SummaryStore interface)
// =============================================================================

// HasSummary reports whether any day status exists for the employee.
func (s *Store) HasSummary(ctx context.Context, employeeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasSummary(ctx, s.db, employeeID)
}

// Day returns the status of one day.
func (s *Store) Day(ctx context.Context, employeeID string, day calendar.Date) (attendance.DayStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadDay(ctx, s.db, employeeID, day)
}

// Days returns all statuses with dates in r.
func (s *Store) Days(ctx context.Context, employeeID string, r calendar.Range) (map[calendar.Date]attendance.DayStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadDays(ctx, s.db, employeeID, r)
}

// PutDays upserts every status.
func (s *Store) PutDays(ctx context.Context, employeeID string, days map[calendar.Date]attendance.DayStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putDays(ctx, s.db, employeeID, days)
}

// InsertDaysIfAbsent writes statuses only for days without one.
func (s *Store) InsertDaysIfAbsent(ctx context.Context, employeeID string, days map[calendar.Date]attendance.DayStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertDaysIfAbsent(ctx, s.db, employeeID, days)
}

func hasSummary(ctx context.Context, q querier, employeeID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM day_statuses WHERE employee_id = ?", employeeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count day statuses: %w", err)
	}
	return count > 0, nil
}

func loadDay(ctx context.Context, q querier, employeeID string, day calendar.Date) (attendance.DayStatus, bool, error) {
	var status string
	var ref sql.NullString
	err := q.QueryRowContext(ctx,
		"SELECT status, leave_reference_id FROM day_statuses WHERE employee_id = ? AND date = ?",
		employeeID, day.String(),
	).Scan(&status, &ref)
	if err == sql.ErrNoRows {
		return attendance.DayStatus{}, false, nil
	}
	if err != nil {
		return attendance.DayStatus{}, false, fmt.Errorf("failed to load day status: %w", err)
	}
	return attendance.DayStatus{Status: attendance.Status(status), LeaveReferenceID: ref.String}, true, nil
}

func loadDays(ctx context.Context, q querier, employeeID string, r calendar.Range) (map[calendar.Date]attendance.DayStatus, error) {
	out := make(map[calendar.Date]attendance.DayStatus)
	if r.IsEmpty() {
		return out, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT date, status, leave_reference_id FROM day_statuses
		WHERE employee_id = ? AND date >= ? AND date <= ?
	`, employeeID, r.Start.String(), r.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query day statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date, status string
		var ref sql.NullString
		if err := rows.Scan(&date, &status, &ref); err != nil {
			return nil, err
		}
		d, err := calendar.Parse(date)
		if err != nil {
			return nil, fmt.Errorf("day status %s/%s: %w", employeeID, date, err)
		}
		out[d] = attendance.DayStatus{Status: attendance.Status(status), LeaveReferenceID: ref.String}
	}
	return out, rows.Err()
}

func putDays(ctx context.Context, q querier, employeeID string, days map[calendar.Date]attendance.DayStatus) error {
	query := `
		INSERT INTO day_statuses (employee_id, date, status, leave_reference_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO UPDATE SET
			status = excluded.status,
			leave_reference_id = excluded.leave_reference_id,
			updated_at = excluded.updated_at
	`
	ts := now()
	for d, st := range days {
		if _, err := q.ExecContext(ctx, query,
			employeeID, d.String(), string(st.Status), nullString(st.LeaveReferenceID), ts,
		); err != nil {
			return fmt.Errorf("failed to write day status %s: %w", d, err)
		}
	}
	return nil
}

func insertDaysIfAbsent(ctx context.Context, q querier, employeeID string, days map[calendar.Date]attendance.DayStatus) (int, error) {
	query := `
		INSERT INTO day_statuses (employee_id, date, status, leave_reference_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO NOTHING
	`
	ts := now()
	inserted := 0
	for d, st := range days {
		res, err := q.ExecContext(ctx, query,
			employeeID, d.String(), string(st.Status), nullString(st.LeaveReferenceID), ts,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert day status %s: %w", d, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += int(n)
	}
	return inserted, nil
}
