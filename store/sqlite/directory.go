package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// EMPLOYEE STORE (attendance.EmployeeDirectory interface)
// =============================================================================

// Register inserts a new employee. A duplicate ID is a ConflictError.
func (s *Store) Register(ctx context.Context, p attendance.EmployeeProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, photo_url, joining_date, weekly_offs, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, nullString(p.PhotoURL), p.JoiningDate.String(),
		strings.Join(p.WeeklyOffs.Names(), ","), now())
	if err != nil {
		if isUniqueConstraintError(err) {
			return &attendance.ConflictError{EmployeeID: p.ID, Reason: "employee already registered"}
		}
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

const employeeColumns = "id, name, photo_url, joining_date, weekly_offs"

// Get returns a registered employee or a NotFoundError.
func (s *Store) Get(ctx context.Context, employeeID string) (attendance.EmployeeProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE id = ?", employeeID)
	p, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return attendance.EmployeeProfile{}, &attendance.NotFoundError{What: "employee", ID: employeeID}
	}
	return p, err
}

// Exists reports whether the employee is registered.
func (s *Store) Exists(ctx context.Context, employeeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM employees WHERE id = ?", employeeID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetMany returns the registered employees among ids. Unknown IDs are skipped.
func (s *Store) GetMany(ctx context.Context, employeeIDs []string) ([]attendance.EmployeeProfile, error) {
	if len(employeeIDs) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(employeeIDs)), ",")
	args := make([]any, len(employeeIDs))
	for i, id := range employeeIDs {
		args[i] = id
	}
	return queryEmployees(ctx, s.db,
		"SELECT "+employeeColumns+" FROM employees WHERE id IN ("+placeholders+") ORDER BY id", args...)
}

// List returns all employees.
func (s *Store) List(ctx context.Context) ([]attendance.EmployeeProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEmployees(ctx, s.db, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
}

func queryEmployees(ctx context.Context, q querier, query string, args ...any) ([]attendance.EmployeeProfile, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []attendance.EmployeeProfile
	for rows.Next() {
		p, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (attendance.EmployeeProfile, error) {
	var (
		p                 attendance.EmployeeProfile
		photo             sql.NullString
		joining, offsList string
	)
	if err := row.Scan(&p.ID, &p.Name, &photo, &joining, &offsList); err != nil {
		return p, err
	}
	p.PhotoURL = photo.String

	d, err := calendar.Parse(joining)
	if err != nil {
		return p, fmt.Errorf("employee %s: %w", p.ID, err)
	}
	p.JoiningDate = d

	var names []string
	if offsList != "" {
		names = strings.Split(offsList, ",")
	}
	p.WeeklyOffs, err = calendar.ParseWeekdays(names)
	if err != nil {
		return p, fmt.Errorf("employee %s: %w", p.ID, err)
	}
	return p, nil
}

// =============================================================================
// LEAVE STORE (attendance.LeaveDirectory interface)
// =============================================================================

// SaveLeave records a leave application and returns it with its ID set.
func (s *Store) SaveLeave(ctx context.Context, l attendance.LeaveRecord) (attendance.LeaveRecord, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return l, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO leave_records (id, employee_id, status, kind, shift, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.ID, l.EmployeeID, l.Status, string(l.Kind), string(l.Shift), now()); err != nil {
		if isUniqueConstraintError(err) {
			return l, &attendance.ConflictError{EmployeeID: l.EmployeeID, Reason: "leave " + l.ID + " already exists"}
		}
		return l, fmt.Errorf("failed to save leave: %w", err)
	}
	for _, d := range l.Dates {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO leave_dates (leave_id, date) VALUES (?, ?)", l.ID, d.String(),
		); err != nil {
			return l, fmt.Errorf("failed to save leave date: %w", err)
		}
	}
	return l, tx.Commit()
}

// FindApproved returns approved leave records with at least one date in r.
// Each record carries all of its dates.
func (s *Store) FindApproved(ctx context.Context, employeeID string, r calendar.Range) ([]attendance.LeaveRecord, error) {
	if r.IsEmpty() {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.status, l.kind, l.shift, d.date
		FROM leave_records l
		JOIN leave_dates d ON d.leave_id = l.id
		WHERE l.employee_id = ? AND l.status = ? COLLATE NOCASE
		  AND l.id IN (
			SELECT leave_id FROM leave_dates WHERE date >= ? AND date <= ?
		  )
		ORDER BY l.created_at, l.id, d.date
	`, employeeID, attendance.LeaveApproved, r.Start.String(), r.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}
	defer rows.Close()

	var out []attendance.LeaveRecord
	for rows.Next() {
		var id, status, kind, shift, date string
		if err := rows.Scan(&id, &status, &kind, &shift, &date); err != nil {
			return nil, err
		}
		d, err := calendar.Parse(date)
		if err != nil {
			return nil, fmt.Errorf("leave %s: %w", id, err)
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, attendance.LeaveRecord{
				ID:         id,
				EmployeeID: employeeID,
				Status:     status,
				Kind:       attendance.LeaveKind(kind),
				Shift:      attendance.ShiftType(shift),
			})
		}
		last := &out[len(out)-1]
		last.Dates = append(last.Dates, d)
	}
	return out, rows.Err()
}
