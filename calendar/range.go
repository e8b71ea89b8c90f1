package calendar

import "time"

// Range is a span of days. Both Start and End are inclusive.
//
// A range whose End is before its Start is empty; Days returns nil and
// Contains is always false. Month ranges clipped to "today" use this to
// represent a month that has not started yet.
type Range struct {
	Start Date
	End   Date
}

// Contains returns true if d is within [Start, End].
func (r Range) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// IsEmpty reports whether the range holds no days.
func (r Range) IsEmpty() bool {
	return r.End.Before(r.Start)
}

// Days returns every day in the range in order.
func (r Range) Days() []Date {
	if r.IsEmpty() {
		return nil
	}
	days := make([]Date, 0, r.Len())
	for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Len returns the number of days in the range.
func (r Range) Len() int {
	if r.IsEmpty() {
		return 0
	}
	return int(r.End.t.Sub(r.Start.t).Hours()/24) + 1
}

// Clip returns the intersection of r and other.
func (r Range) Clip(other Range) Range {
	return Range{Start: Max(r.Start, other.Start), End: Min(r.End, other.End)}
}

func (r Range) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// HalfOpen returns [from, until) as an inclusive Range.
func HalfOpen(from, until Date) Range {
	return Range{Start: from, End: until.AddDays(-1)}
}

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) Date {
	return NewDate(year, month+1, 1).AddDays(-1)
}

// Month returns the full calendar month as a range.
func Month(year int, month time.Month) Range {
	return Range{Start: StartOfMonth(year, month), End: EndOfMonth(year, month)}
}

// MonthUpTo returns the month clipped so it does not extend past today.
// The result is empty when the month starts after today.
func MonthUpTo(year int, month time.Month, today Date) Range {
	m := Month(year, month)
	m.End = Min(m.End, today)
	return m
}
