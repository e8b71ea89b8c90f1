/*
ledger.go - Daily check-in/checkout ledger and its state machine

STATE MACHINE (per employee-day):

  NoRecord --checkin--> CheckedIn --checkout--> CheckedOut --checkin--> CheckedIn ...

  - checkin  is rejected while CheckedIn        (Conflict)
  - checkout is rejected with no entry today    (NotFound)
  - checkout is rejected unless CheckedIn       (Conflict)
  - an event earlier than the last one          (Validation)

INVARIANT:
  Events of an entry alternate starting with checkin and never go back in
  time. An entry that breaks alternation was not written by this engine;
  Validate reports it as ErrCorruptLedger and callers refuse to build on it.

APPEND-ONLY:
  Entries are created by the first checkin of a day and only ever grow.
  Nothing deletes or rewrites events.
*/
package attendance

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-engine/calendar"
)

// DayState is the position of an employee-day in the state machine.
type DayState int

const (
	StateNoRecord DayState = iota
	StateCheckedIn
	StateCheckedOut
)

func (s DayState) String() string {
	switch s {
	case StateCheckedIn:
		return "checked_in"
	case StateCheckedOut:
		return "checked_out"
	default:
		return "no_record"
	}
}

// LedgerEntry is the ordered event log of one employee-day.
type LedgerEntry struct {
	ID         string
	EmployeeID string
	Date       calendar.Date
	Events     []Event
}

// State returns the current state derived from the last event.
func (e *LedgerEntry) State() DayState {
	if e == nil || len(e.Events) == 0 {
		return StateNoRecord
	}
	if e.Events[len(e.Events)-1].Kind == EventCheckIn {
		return StateCheckedIn
	}
	return StateCheckedOut
}

// HasPresence reports whether any event was recorded.
func (e *LedgerEntry) HasPresence() bool {
	return e != nil && len(e.Events) > 0
}

// Validate checks the alternation invariant.
func (e *LedgerEntry) Validate() error {
	if e == nil {
		return nil
	}
	for i, ev := range e.Events {
		want := EventCheckIn
		if i%2 == 1 {
			want = EventCheckOut
		}
		if ev.Kind != want {
			return &CorruptLedgerError{EmployeeID: e.EmployeeID, Date: e.Date.String(), Index: i}
		}
	}
	return nil
}

// CanCheckIn returns a ConflictError if a checkin is not allowed now.
func (e *LedgerEntry) CanCheckIn() error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.State() == StateCheckedIn {
		return &ConflictError{EmployeeID: e.EmployeeID, Date: e.Date.String(), Reason: "already checked in, check out first"}
	}
	return nil
}

// NotBefore returns a ValidationError when at precedes the last event of
// the entry, so events stay in time order.
func (e *LedgerEntry) NotBefore(at time.Time, field string) error {
	if e == nil || len(e.Events) == 0 {
		return nil
	}
	last := e.Events[len(e.Events)-1]
	if at.Before(last.At) {
		return &ValidationError{
			Field:  field,
			Value:  at.Format(time.RFC3339),
			Reason: "before last " + string(last.Kind) + " at " + last.At.Format(time.RFC3339),
		}
	}
	return nil
}

// CanCheckOut returns NotFound for a missing entry and Conflict when the
// employee is not checked in.
func (e *LedgerEntry) CanCheckOut(employeeID string, day calendar.Date) error {
	if e == nil {
		return &NotFoundError{What: "check-in for " + day.String(), ID: employeeID}
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if e.State() != StateCheckedIn {
		return &ConflictError{EmployeeID: employeeID, Date: day.String(), Reason: "no open check-in"}
	}
	return nil
}

// WorkedHours sums closed checkin→checkout pairs, rounded to two places.
// An open trailing checkin contributes nothing.
func (e *LedgerEntry) WorkedHours() decimal.Decimal {
	total := time.Duration(0)
	if e == nil {
		return decimal.Zero
	}
	for i := 0; i+1 < len(e.Events); i += 2 {
		in, out := e.Events[i], e.Events[i+1]
		if in.Kind != EventCheckIn || out.Kind != EventCheckOut {
			break
		}
		if out.At.After(in.At) {
			total += out.At.Sub(in.At)
		}
	}
	return decimal.NewFromFloat(total.Hours()).Round(2)
}
