/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements attendance.Store (ledger + day statuses), the local
  EmployeeDirectory and LeaveDirectory, and the sweep run history used by the
  weekend scheduler.

INTERFACES IMPLEMENTED:
  attendance.Store:             Ledger entries, events, day statuses
  attendance.EmployeeDirectory: Registered employees
  attendance.LeaveDirectory:    Approved leave lookup

APPEND-ONLY ENFORCEMENT:
  Ledger events are never updated or deleted. Each event gets the next
  sequence number of its entry; (entry_id, seq) is the primary key.

KEY TABLES:
  ledger_entries: One row per (employee, date)
  ledger_events:  Ordered checkin/checkout events of an entry
  day_statuses:   One classification per (employee, date)
  employees:      Registered profiles
  leave_records:  Leave applications, with their dates in leave_dates
  sweep_runs:     Weekend sweep history

DATES:
  Calendar days are stored as YYYY-MM-DD text so range queries compare
  lexically. Instants are RFC3339Nano in UTC.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction; the view it hands out runs every query on the sql.Tx
  and never touches the mutex.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := attendance.NewService(store, attendance.Dependencies{Directory: store, ...})

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - attendance/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ attendance.Store             = (*Store)(nil)
	_ attendance.EmployeeDirectory = (*Store)(nil)
	_ attendance.LeaveDirectory    = (*Store)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(employee_id, date)
	);

	CREATE TABLE IF NOT EXISTS ledger_events (
		entry_id TEXT NOT NULL REFERENCES ledger_entries(id),
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		at TEXT NOT NULL,
		evidence_url TEXT,
		PRIMARY KEY (entry_id, seq)
	);

	-- Classification per employee-day
	CREATE TABLE IF NOT EXISTS day_statuses (
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		leave_reference_id TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, date)
	);

	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		photo_url TEXT,
		joining_date TEXT NOT NULL,
		weekly_offs TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Leave records
	CREATE TABLE IF NOT EXISTS leave_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		status TEXT NOT NULL,
		kind TEXT NOT NULL,
		shift TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_dates (
		leave_id TEXT NOT NULL REFERENCES leave_records(id),
		date TEXT NOT NULL,
		PRIMARY KEY (leave_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_leave_records_employee
		ON leave_records(employee_id, status);
	CREATE INDEX IF NOT EXISTS idx_leave_dates_date
		ON leave_dates(date);

	-- Weekend sweep history
	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		status TEXT NOT NULL,
		employees INTEGER NOT NULL DEFAULT 0,
		marked INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_period
		ON sweep_runs(year, month, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (attendance.Store interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store attendance.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore runs every operation on the open transaction.
type txStore struct {
	q querier
}

func (ts *txStore) Entry(ctx context.Context, employeeID string, day calendar.Date) (*attendance.LedgerEntry, error) {
	return loadEntry(ctx, ts.q, employeeID, day)
}

func (ts *txStore) EntriesInRange(ctx context.Context, employeeID string, r calendar.Range) ([]attendance.LedgerEntry, error) {
	return loadEntries(ctx, ts.q, employeeID, r)
}

func (ts *txStore) HasEntries(ctx context.Context, employeeID string) (bool, error) {
	return hasEntries(ctx, ts.q, employeeID)
}

func (ts *txStore) AppendEvent(ctx context.Context, employeeID string, day calendar.Date, ev attendance.Event) error {
	return appendEvent(ctx, ts.q, employeeID, day, ev)
}

func (ts *txStore) HasSummary(ctx context.Context, employeeID string) (bool, error) {
	return hasSummary(ctx, ts.q, employeeID)
}

func (ts *txStore) Day(ctx context.Context, employeeID string, day calendar.Date) (attendance.DayStatus, bool, error) {
	return loadDay(ctx, ts.q, employeeID, day)
}

func (ts *txStore) Days(ctx context.Context, employeeID string, r calendar.Range) (map[calendar.Date]attendance.DayStatus, error) {
	return loadDays(ctx, ts.q, employeeID, r)
}

func (ts *txStore) PutDays(ctx context.Context, employeeID string, days map[calendar.Date]attendance.DayStatus) error {
	return putDays(ctx, ts.q, employeeID, days)
}

func (ts *txStore) InsertDaysIfAbsent(ctx context.Context, employeeID string, days map[calendar.Date]attendance.DayStatus) (int, error) {
	return insertDaysIfAbsent(ctx, ts.q, employeeID, days)
}

// WithTx on a view joins the open transaction.
func (ts *txStore) WithTx(ctx context.Context, fn func(store attendance.Store) error) error {
	return fn(ts)
}

// Reset clears all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"ledger_events", "ledger_entries", "day_statuses", "leave_dates", "leave_records", "employees", "sweep_runs"}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func now() string {
	return formatTime(time.Now())
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
