/*
Package calendar provides day-granularity dates and inclusive date ranges.

PURPOSE:
  Attendance is classified per calendar day, never per instant. Date strips
  the clock and the zone from a timestamp so two check-ins on the same local
  day always land on the same key.

ZONES:
  A Date carries no zone. DateOf converts an instant into the local day of a
  given location (the service runs in one configured timezone). Internally
  the value is kept at UTC midnight so arithmetic never crosses DST edges.

FORMAT:
  ISO "2006-01-02" everywhere: storage keys, JSON, URL parameters.

SEE ALSO:
  - range.go: Range and month helpers
  - weekday.go: WeekdaySet for weekly-off schedules
*/
package calendar

import (
	"encoding/json"
	"fmt"
	"time"
)

// Layout is the ISO date layout used for parsing and formatting.
const Layout = "2006-01-02"

// Date is a calendar day with no time or zone component.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the local calendar day of t in loc. A nil loc means UTC.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current day in loc.
func Today(loc *time.Location) Date {
	return DateOf(time.Now(), loc)
}

// Parse parses an ISO date. The error wraps the time parse error.
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int                { return d.t.Year() }
func (d Date) Month() time.Month        { return d.t.Month() }
func (d Date) Day() int                 { return d.t.Day() }
func (d Date) Weekday() time.Weekday    { return d.t.Weekday() }
func (d Date) IsZero() bool             { return d.t.IsZero() }
func (d Date) String() string           { return d.t.Format(Layout) }
func (d Date) Time() time.Time          { return d.t }
func (d Date) In(year int, month time.Month) bool { return d.Year() == year && d.Month() == month }

// StartIn returns the first instant of the day in loc.
func (d Date) StartIn(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// Min returns the earlier of two dates.
func Min(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// Max returns the later of two dates.
func Max(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
