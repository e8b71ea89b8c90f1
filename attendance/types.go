/*
Package attendance implements the attendance reconciliation engine.

PURPOSE:
  Records check-in/checkout events per employee per day and maintains a
  day-by-day status calendar (Present, Absent, Leave, LOP, Weekly Off)
  derived from those events, leave records and weekly-off schedules.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status: The single classification of one employee-day
  - DayStatus: Status plus an optional leave reference
  - Event / LedgerEntry: Raw presence events for one employee-day
  - EmployeeProfile: Joining date and weekly-off schedule
  - LeaveRecord: Approved leave or comp-off days from the leave system

TWO READ PATHS:
  1. Summary read (summary.go): loads persisted day statuses and counts
     them. Reflects overrides and backfill.
  2. Breakdown (aggregate.go): recomputes the month from the ledger, leave
     records and schedule by set subtraction. Writes nothing.

SEE ALSO:
  - service.go: The operations (CheckIn, CheckOut, BulkOverride, ...)
  - store.go: Persistence interfaces
  - errors.go: Error kinds
*/
package attendance

import (
	"strings"
	"time"

	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// DAY STATUS
// =============================================================================

// Status is the classification label of one employee-day.
// Stored as its label, so values read back from storage may be labels this
// build does not know; those are ignored when counting.
type Status string

const (
	StatusPresent   Status = "Present"
	StatusAbsent    Status = "Absent"
	StatusLeave     Status = "Leave"
	StatusLOP       Status = "LOP"
	StatusWeeklyOff Status = "Weekly Off"
)

var knownStatuses = []Status{StatusPresent, StatusAbsent, StatusLeave, StatusLOP, StatusWeeklyOff}

// ParseStatus accepts a label case-insensitively. "WeeklyOff" and
// "weekly_off" are accepted for Weekly Off.
func ParseStatus(label string) (Status, bool) {
	norm := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(label)))
	for _, s := range knownStatuses {
		if strings.ToLower(strings.ReplaceAll(string(s), " ", "")) == norm {
			return s, true
		}
	}
	return "", false
}

// Known reports whether s is one of the five classification labels.
func (s Status) Known() bool {
	for _, k := range knownStatuses {
		if s == k {
			return true
		}
	}
	return false
}

// DayStatus is the persisted classification of one employee-day.
type DayStatus struct {
	Status           Status `json:"status"`
	LeaveReferenceID string `json:"leaveReferenceId,omitempty"`
}

// =============================================================================
// LEDGER
// =============================================================================

type EventKind string

const (
	EventCheckIn  EventKind = "checkin"
	EventCheckOut EventKind = "checkout"
)

// Event is a single check-in or checkout.
type Event struct {
	Kind        EventKind `json:"type"`
	At          time.Time `json:"timestamp"`
	EvidenceURL string    `json:"checkinImgUrl,omitempty"` // checkin only
}

// Verdict is the outcome of a face-verified check-in attempt.
type Verdict string

const (
	VerdictPresent Verdict = "Present"
	VerdictAbsent  Verdict = "Absent"
)

// =============================================================================
// COLLABORATOR DATA
// =============================================================================

// EmployeeProfile is what the engine needs to know about an employee.
type EmployeeProfile struct {
	ID          string
	Name        string
	JoiningDate calendar.Date
	WeeklyOffs  calendar.WeekdaySet
	PhotoURL    string
}

type LeaveKind string

const (
	LeaveKindLeave   LeaveKind = "Leave"
	LeaveKindCompOff LeaveKind = "Comp-Off"
)

// ParseLeaveKind accepts "Leave", "Comp-Off" and "Comp Off" in any case.
func ParseLeaveKind(s string) (LeaveKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "leave":
		return LeaveKindLeave, true
	case "comp-off", "comp off", "compoff":
		return LeaveKindCompOff, true
	}
	return "", false
}

type ShiftType string

const (
	ShiftFullDay ShiftType = "FULL_DAY"
	ShiftHalfDay ShiftType = "HALF_DAY"
)

// LeaveApproved is the only leave status the engine considers.
const LeaveApproved = "Approved"

// LeaveRecord is one leave application from the leave system.
type LeaveRecord struct {
	ID         string
	EmployeeID string
	Status     string
	Kind       LeaveKind
	Shift      ShiftType
	Dates      []calendar.Date
}

// IsApproved compares the status case-insensitively.
func (l LeaveRecord) IsApproved() bool {
	return strings.EqualFold(l.Status, LeaveApproved)
}

// IsFullDay treats anything other than FULL_DAY as a half day.
func (l LeaveRecord) IsFullDay() bool {
	return strings.EqualFold(string(l.Shift), string(ShiftFullDay))
}
