// Package memory provides an in-memory attendance.Store (tests and dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu      sync.RWMutex
	entries map[key]*attendance.LedgerEntry
	days    map[key]attendance.DayStatus
	ledgers map[string]int // employee -> entry count
	summary map[string]bool
}

type key struct {
	EmployeeID string
	Date       calendar.Date
}

var _ attendance.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		entries: make(map[key]*attendance.LedgerEntry),
		days:    make(map[key]attendance.DayStatus),
		ledgers: make(map[string]int),
		summary: make(map[string]bool),
	}
}

func (m *Store) Entry(_ context.Context, employeeID string, day calendar.Date) (*attendance.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entryLocked(employeeID, day), nil
}

func (m *Store) entryLocked(employeeID string, day calendar.Date) *attendance.LedgerEntry {
	e, ok := m.entries[key{employeeID, day}]
	if !ok {
		return nil
	}
	cp := *e
	cp.Events = append([]attendance.Event(nil), e.Events...)
	return &cp
}

func (m *Store) EntriesInRange(_ context.Context, employeeID string, r calendar.Range) ([]attendance.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesInRangeLocked(employeeID, r), nil
}

func (m *Store) entriesInRangeLocked(employeeID string, r calendar.Range) []attendance.LedgerEntry {
	var out []attendance.LedgerEntry
	for _, d := range r.Days() {
		if e := m.entryLocked(employeeID, d); e != nil {
			out = append(out, *e)
		}
	}
	return out
}

func (m *Store) HasEntries(_ context.Context, employeeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledgers[employeeID] > 0, nil
}

func (m *Store) AppendEvent(_ context.Context, employeeID string, day calendar.Date, ev attendance.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(employeeID, day, ev)
	return nil
}

func (m *Store) appendLocked(employeeID string, day calendar.Date, ev attendance.Event) {
	k := key{employeeID, day}
	e, ok := m.entries[k]
	if !ok {
		e = &attendance.LedgerEntry{ID: uuid.NewString(), EmployeeID: employeeID, Date: day}
		m.entries[k] = e
		m.ledgers[employeeID]++
	}
	e.Events = append(e.Events, ev)
}

func (m *Store) HasSummary(_ context.Context, employeeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary[employeeID], nil
}

func (m *Store) Day(_ context.Context, employeeID string, day calendar.Date) (attendance.DayStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.days[key{employeeID, day}]
	return st, ok, nil
}

func (m *Store) Days(_ context.Context, employeeID string, r calendar.Range) (map[calendar.Date]attendance.DayStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.daysLocked(employeeID, r), nil
}

func (m *Store) daysLocked(employeeID string, r calendar.Range) map[calendar.Date]attendance.DayStatus {
	out := make(map[calendar.Date]attendance.DayStatus)
	for _, d := range r.Days() {
		if st, ok := m.days[key{employeeID, d}]; ok {
			out[d] = st
		}
	}
	return out
}

func (m *Store) PutDays(_ context.Context, employeeID string, days map[calendar.Date]attendance.DayStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(employeeID, days)
	return nil
}

func (m *Store) putLocked(employeeID string, days map[calendar.Date]attendance.DayStatus) {
	for d, st := range days {
		m.days[key{employeeID, d}] = st
	}
	m.summary[employeeID] = true
}

func (m *Store) InsertDaysIfAbsent(_ context.Context, employeeID string, days map[calendar.Date]attendance.DayStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(employeeID, days), nil
}

func (m *Store) insertLocked(employeeID string, days map[calendar.Date]attendance.DayStatus) int {
	n := 0
	for d, st := range days {
		k := key{employeeID, d}
		if _, ok := m.days[k]; ok {
			continue
		}
		m.days[k] = st
		n++
	}
	m.summary[employeeID] = true
	return n
}

// AllDays returns every stored status of an employee, sorted by date.
func (m *Store) AllDays(employeeID string) []calendar.Date {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []calendar.Date
	for k := range m.days {
		if k.EmployeeID == employeeID {
			out = append(out, k.Date)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// Simulated with a snapshot + rollback on error.
func (m *Store) WithTx(ctx context.Context, fn func(attendance.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	entries map[key]*attendance.LedgerEntry
	days    map[key]attendance.DayStatus
	ledgers map[string]int
	summary map[string]bool
}

func (m *Store) snapshot() snapshot {
	s := snapshot{
		entries: make(map[key]*attendance.LedgerEntry, len(m.entries)),
		days:    make(map[key]attendance.DayStatus, len(m.days)),
		ledgers: make(map[string]int, len(m.ledgers)),
		summary: make(map[string]bool, len(m.summary)),
	}
	for k, e := range m.entries {
		cp := *e
		cp.Events = append([]attendance.Event(nil), e.Events...)
		s.entries[k] = &cp
	}
	for k, v := range m.days {
		s.days[k] = v
	}
	for k, v := range m.ledgers {
		s.ledgers[k] = v
	}
	for k, v := range m.summary {
		s.summary[k] = v
	}
	return s
}

func (m *Store) restore(s snapshot) {
	m.entries = s.entries
	m.days = s.days
	m.ledgers = s.ledgers
	m.summary = s.summary
}

// txView operates on the parent while WithTx holds its lock.
type txView struct {
	parent *Store
}

func (tv *txView) Entry(_ context.Context, employeeID string, day calendar.Date) (*attendance.LedgerEntry, error) {
	return tv.parent.entryLocked(employeeID, day), nil
}

func (tv *txView) EntriesInRange(_ context.Context, employeeID string, r calendar.Range) ([]attendance.LedgerEntry, error) {
	return tv.parent.entriesInRangeLocked(employeeID, r), nil
}

func (tv *txView) HasEntries(_ context.Context, employeeID string) (bool, error) {
	return tv.parent.ledgers[employeeID] > 0, nil
}

func (tv *txView) AppendEvent(_ context.Context, employeeID string, day calendar.Date, ev attendance.Event) error {
	tv.parent.appendLocked(employeeID, day, ev)
	return nil
}

func (tv *txView) HasSummary(_ context.Context, employeeID string) (bool, error) {
	return tv.parent.summary[employeeID], nil
}

func (tv *txView) Day(_ context.Context, employeeID string, day calendar.Date) (attendance.DayStatus, bool, error) {
	st, ok := tv.parent.days[key{employeeID, day}]
	return st, ok, nil
}

func (tv *txView) Days(_ context.Context, employeeID string, r calendar.Range) (map[calendar.Date]attendance.DayStatus, error) {
	return tv.parent.daysLocked(employeeID, r), nil
}

func (tv *txView) PutDays(_ context.Context, employeeID string, days map[calendar.Date]attendance.DayStatus) error {
	tv.parent.putLocked(employeeID, days)
	return nil
}

func (tv *txView) InsertDaysIfAbsent(_ context.Context, employeeID string, days map[calendar.Date]attendance.DayStatus) (int, error) {
	return tv.parent.insertLocked(employeeID, days), nil
}

func (tv *txView) WithTx(ctx context.Context, fn func(attendance.Store) error) error {
	return fn(tv)
}
