/*
aggregate.go - On-demand monthly breakdown by set subtraction

RANGE:
  [first of month, min(today, last of month)], both inclusive. A month that
  starts after today has an empty range and every set is empty.

SETS:
  present      days with at least one ledger event
  fullLeave    approved Leave, FULL_DAY
  halfLeave    approved Leave, any other shift
  fullCompOff  approved Comp-Off, FULL_DAY
  halfCompOff  approved Comp-Off, any other shift
  weeklyOff    days whose weekday is a weekly off
  absent       every remaining day of the range

PARTITION:
  Every day of the range lands in exactly one set. When inputs overlap
  (presence on a weekly off, leave on a weekend), the earlier set in the
  list above wins.

  Half-day leave and comp-off remove the day from absence entirely, like
  full days.

SIDE EFFECTS:
  None. The persisted statuses are neither read nor written.
*/
package attendance

import (
	"context"
	"time"

	"github.com/warp/attendance-engine/calendar"
)

// Breakdown is the on-demand classification of one month.
type Breakdown struct {
	EmployeeID  string          `json:"employeeId"`
	Year        int             `json:"year"`
	Month       time.Month      `json:"month"`
	Range       calendar.Range  `json:"-"`
	Present     []calendar.Date `json:"presentDates"`
	FullLeave   []calendar.Date `json:"fullLeaveDates"`
	HalfLeave   []calendar.Date `json:"halfDayLeaveDates"`
	FullCompOff []calendar.Date `json:"fullCompoffDates"`
	HalfCompOff []calendar.Date `json:"halfCompoffDates"`
	WeeklyOff   []calendar.Date `json:"weeklyOffDates"`
	Absent      []calendar.Date `json:"absentDates"`
}

// Sets returns the seven sets in precedence order.
func (b Breakdown) Sets() [][]calendar.Date {
	return [][]calendar.Date{b.Present, b.FullLeave, b.HalfLeave, b.FullCompOff, b.HalfCompOff, b.WeeklyOff, b.Absent}
}

type dayClass int

const (
	classPresent dayClass = iota
	classFullLeave
	classHalfLeave
	classFullCompOff
	classHalfCompOff
	classWeeklyOff
	classAbsent
)

// Breakdown recomputes the month from the ledger, approved leave and the
// weekly-off schedule.
func (s *Service) Breakdown(ctx context.Context, employeeID string, year int, month time.Month) (Breakdown, error) {
	b := Breakdown{EmployeeID: employeeID, Year: year, Month: month}
	if err := validateMonth(year, month); err != nil {
		return b, err
	}

	profile, err := s.profile(ctx, employeeID)
	if err != nil {
		return b, err
	}

	b.Range = calendar.MonthUpTo(year, month, s.Today())
	if b.Range.IsEmpty() {
		return b, nil
	}

	entries, err := s.store.EntriesInRange(ctx, employeeID, b.Range)
	if err != nil {
		return b, err
	}

	cctx, cancel := s.withTimeout(ctx)
	leaves, err := s.leaves.FindApproved(cctx, employeeID, b.Range)
	cancel()
	if err != nil {
		return b, upstream("leave-directory", "find-approved", err)
	}

	classify(&b, entries, leaves, profile.WeeklyOffs)
	return b, nil
}

// classify fills the sets of b over b.Range.
func classify(b *Breakdown, entries []LedgerEntry, leaves []LeaveRecord, weeklyOffs calendar.WeekdaySet) {
	classes := make(map[calendar.Date]dayClass)
	claim := func(d calendar.Date, c dayClass) {
		if !b.Range.Contains(d) {
			return
		}
		if cur, ok := classes[d]; !ok || c < cur {
			classes[d] = c
		}
	}

	for i := range entries {
		if entries[i].HasPresence() {
			claim(entries[i].Date, classPresent)
		}
	}

	for _, l := range leaves {
		if !l.IsApproved() {
			continue
		}
		var c dayClass
		switch l.Kind {
		case LeaveKindLeave:
			c = classHalfLeave
			if l.IsFullDay() {
				c = classFullLeave
			}
		case LeaveKindCompOff:
			c = classHalfCompOff
			if l.IsFullDay() {
				c = classFullCompOff
			}
		default:
			continue
		}
		for _, d := range l.Dates {
			if d.In(b.Year, b.Month) {
				claim(d, c)
			}
		}
	}

	for _, d := range weeklyOffs.Matching(b.Range) {
		claim(d, classWeeklyOff)
	}

	for _, d := range b.Range.Days() {
		c, ok := classes[d]
		if !ok {
			c = classAbsent
		}
		switch c {
		case classPresent:
			b.Present = append(b.Present, d)
		case classFullLeave:
			b.FullLeave = append(b.FullLeave, d)
		case classHalfLeave:
			b.HalfLeave = append(b.HalfLeave, d)
		case classFullCompOff:
			b.FullCompOff = append(b.FullCompOff, d)
		case classHalfCompOff:
			b.HalfCompOff = append(b.HalfCompOff, d)
		case classWeeklyOff:
			b.WeeklyOff = append(b.WeeklyOff, d)
		default:
			b.Absent = append(b.Absent, d)
		}
	}
}
