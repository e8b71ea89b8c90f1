package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// WeekdaySet is a set of weekdays, used for weekly-off schedules.
type WeekdaySet map[time.Weekday]struct{}

// ParseWeekdays parses day names such as "SUNDAY" or "saturday".
// Three-letter abbreviations are accepted too.
func ParseWeekdays(names []string) (WeekdaySet, error) {
	set := make(WeekdaySet, len(names))
	for _, name := range names {
		wd, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		set[wd] = struct{}{}
	}
	return set, nil
}

func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToUpper(wd.String())
		if n == full || n == full[:3] {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	set := make(WeekdaySet, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	return set
}

func (s WeekdaySet) Contains(wd time.Weekday) bool {
	_, ok := s[wd]
	return ok
}

// Names returns upper-case day names in week order, e.g. ["SUNDAY", "SATURDAY"].
func (s WeekdaySet) Names() []string {
	days := make([]int, 0, len(s))
	for wd := range s {
		days = append(days, int(wd))
	}
	sort.Ints(days)
	names := make([]string, len(days))
	for i, wd := range days {
		names[i] = strings.ToUpper(time.Weekday(wd).String())
	}
	return names
}

// Matching returns the days of r whose weekday is in the set.
func (s WeekdaySet) Matching(r Range) []Date {
	var out []Date
	for _, d := range r.Days() {
		if s.Contains(d.Weekday()) {
			out = append(out, d)
		}
	}
	return out
}
