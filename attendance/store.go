/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines what the engine needs from storage and from the services around
  it. The engine never talks to a database or network directly.

STORAGE LAYOUT:
  Day statuses are stored flat, keyed by (employeeID, date). Year and month
  groupings are derived at read time, so there is no "missing month" or
  "missing year" state to initialize.

  An employee "has a summary" once any day status was written for them.

TRANSACTIONS:
  WithTx runs fn against a transactional view. A check-in appends the
  ledger event and upserts the Present status inside one WithTx, so no
  reader sees one without the other.

IMPLEMENTATIONS:
  - store/sqlite: SQLite (production)
  - store/memory: In-memory (tests)
*/
package attendance

import (
	"context"

	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// STORE - Ledger + day statuses
// =============================================================================

// LedgerStore persists check-in/checkout events. Append-only.
type LedgerStore interface {
	// Entry returns the entry for a day, or nil if none exists.
	Entry(ctx context.Context, employeeID string, day calendar.Date) (*LedgerEntry, error)

	// EntriesInRange returns entries with Date in r, ordered by date.
	EntriesInRange(ctx context.Context, employeeID string, r calendar.Range) ([]LedgerEntry, error)

	// HasEntries reports whether the employee has ever checked in.
	HasEntries(ctx context.Context, employeeID string) (bool, error)

	// AppendEvent adds ev to the day's entry, creating the entry if needed.
	AppendEvent(ctx context.Context, employeeID string, day calendar.Date, ev Event) error
}

// SummaryStore persists one DayStatus per employee-day.
type SummaryStore interface {
	// HasSummary reports whether any day status exists for the employee.
	HasSummary(ctx context.Context, employeeID string) (bool, error)

	// Day returns the status of one day and whether it exists.
	Day(ctx context.Context, employeeID string, day calendar.Date) (DayStatus, bool, error)

	// Days returns all statuses with dates in r.
	Days(ctx context.Context, employeeID string, r calendar.Range) (map[calendar.Date]DayStatus, error)

	// PutDays writes every status, overwriting existing ones.
	PutDays(ctx context.Context, employeeID string, days map[calendar.Date]DayStatus) error

	// InsertDaysIfAbsent writes only statuses for days that have none yet,
	// returning how many were inserted.
	InsertDaysIfAbsent(ctx context.Context, employeeID string, days map[calendar.Date]DayStatus) (int, error)
}

// Store combines both with transaction support.
type Store interface {
	LedgerStore
	SummaryStore

	// WithTx executes fn within a transaction.
	// If fn returns error, all writes made through the view are rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// EmployeeDirectory resolves employee profiles.
// Get returns an error matching ErrNotFound for unknown IDs.
type EmployeeDirectory interface {
	Get(ctx context.Context, employeeID string) (EmployeeProfile, error)
	Exists(ctx context.Context, employeeID string) (bool, error)
	GetMany(ctx context.Context, employeeIDs []string) ([]EmployeeProfile, error)
	List(ctx context.Context) ([]EmployeeProfile, error)
}

// LeaveDirectory returns approved leave records overlapping r.
type LeaveDirectory interface {
	FindApproved(ctx context.Context, employeeID string, r calendar.Range) ([]LeaveRecord, error)
}

// FaceVerifier is the external face-verification oracle.
type FaceVerifier interface {
	// Verify compares image against the reference photo at referenceURL.
	Verify(ctx context.Context, employeeID string, image []byte, referenceURL string) (Verdict, error)

	// Recognize returns the matching employee ID; ok is false for no match.
	Recognize(ctx context.Context, image []byte) (employeeID string, ok bool, err error)
}

// ImageKind separates registration photos from check-in evidence.
type ImageKind string

const (
	ImageProfile ImageKind = "profile"
	ImageCheckIn ImageKind = "checkin"
)

// ImageStore persists an image and returns a URL for it.
type ImageStore interface {
	Store(ctx context.Context, employeeID string, kind ImageKind, image []byte) (string, error)
}
