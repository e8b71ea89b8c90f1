package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// LEDGER STORE (attendance.LedgerStore interface)
// =============================================================================

// Entry returns the ledger entry of a day, or nil.
func (s *Store) Entry(ctx context.Context, employeeID string, day calendar.Date) (*attendance.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadEntry(ctx, s.db, employeeID, day)
}

// EntriesInRange returns the entries with dates in r, ordered by date.
func (s *Store) EntriesInRange(ctx context.Context, employeeID string, r calendar.Range) ([]attendance.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadEntries(ctx, s.db, employeeID, r)
}

// HasEntries reports whether the employee has ever checked in.
func (s *Store) HasEntries(ctx context.Context, employeeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasEntries(ctx, s.db, employeeID)
}

// AppendEvent adds an event to the day's entry.
func (s *Store) AppendEvent(ctx context.Context, employeeID string, day calendar.Date, ev attendance.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEvent(ctx, s.db, employeeID, day, ev)
}

func loadEntry(ctx context.Context, q querier, employeeID string, day calendar.Date) (*attendance.LedgerEntry, error) {
	entries, err := queryEntries(ctx, q, `
		SELECT e.id, e.date, ev.kind, ev.at, ev.evidence_url
		FROM ledger_entries e
		LEFT JOIN ledger_events ev ON ev.entry_id = e.id
		WHERE e.employee_id = ? AND e.date = ?
		ORDER BY ev.seq
	`, employeeID, employeeID, day.String())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func loadEntries(ctx context.Context, q querier, employeeID string, r calendar.Range) ([]attendance.LedgerEntry, error) {
	if r.IsEmpty() {
		return nil, nil
	}
	return queryEntries(ctx, q, `
		SELECT e.id, e.date, ev.kind, ev.at, ev.evidence_url
		FROM ledger_entries e
		LEFT JOIN ledger_events ev ON ev.entry_id = e.id
		WHERE e.employee_id = ? AND e.date >= ? AND e.date <= ?
		ORDER BY e.date, ev.seq
	`, employeeID, employeeID, r.Start.String(), r.End.String())
}

// queryEntries groups joined event rows into entries. The employee ID is
// passed separately because it is not selected.
func queryEntries(ctx context.Context, q querier, query, employeeID string, args ...any) ([]attendance.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []attendance.LedgerEntry
	for rows.Next() {
		var (
			id, date          string
			kind, at, evidence sql.NullString
		)
		if err := rows.Scan(&id, &date, &kind, &at, &evidence); err != nil {
			return nil, err
		}

		if len(entries) == 0 || entries[len(entries)-1].ID != id {
			d, err := calendar.Parse(date)
			if err != nil {
				return nil, fmt.Errorf("ledger entry %s: %w", id, err)
			}
			entries = append(entries, attendance.LedgerEntry{ID: id, EmployeeID: employeeID, Date: d})
		}
		if !kind.Valid {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, at.String)
		if err != nil {
			return nil, fmt.Errorf("ledger entry %s: bad timestamp: %w", id, err)
		}
		last := &entries[len(entries)-1]
		last.Events = append(last.Events, attendance.Event{
			Kind:        attendance.EventKind(kind.String),
			At:          ts,
			EvidenceURL: evidence.String,
		})
	}
	return entries, rows.Err()
}

func hasEntries(ctx context.Context, q querier, employeeID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE employee_id = ?", employeeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count > 0, nil
}

func appendEvent(ctx context.Context, q querier, employeeID string, day calendar.Date, ev attendance.Event) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, employee_id, date, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO NOTHING
	`, uuid.NewString(), employeeID, day.String(), now())
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	var entryID string
	var seq int
	err = q.QueryRowContext(ctx, `
		SELECT e.id, COALESCE(MAX(ev.seq), 0) + 1
		FROM ledger_entries e
		LEFT JOIN ledger_events ev ON ev.entry_id = e.id
		WHERE e.employee_id = ? AND e.date = ?
		GROUP BY e.id
	`, employeeID, day.String()).Scan(&entryID, &seq)
	if err != nil {
		return fmt.Errorf("failed to load ledger entry: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO ledger_events (entry_id, seq, kind, at, evidence_url)
		VALUES (?, ?, ?, ?, ?)
	`, entryID, seq, string(ev.Kind), formatTime(ev.At), nullString(ev.EvidenceURL))
	if err != nil {
		return fmt.Errorf("failed to append ledger event: %w", err)
	}
	return nil
}
