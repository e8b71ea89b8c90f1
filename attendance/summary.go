/*
summary.go - Monthly summary read over persisted day statuses

COUNTS:
  Always derived by scanning the month's day statuses. No counter is stored,
  so bulk overrides and backfill can never make counts drift from days.

  Labels this build does not recognize are skipped, not errors.
*/
package attendance

import (
	"time"
)

// Counts tallies a month's day statuses by label.
type Counts struct {
	TotalDays             int `json:"totalDays"`
	PresentDays           int `json:"presentDays"`
	ApprovedLeaveDays     int `json:"approvedLeaveDays"`
	ApprovedLopDays       int `json:"approvedLopDays"`
	UnapprovedAbsenceDays int `json:"unapprovedAbsenceDays"`
	WeeklyOffDays         int `json:"weeklyOffDays"`
}

// MonthSummary is the persisted classification of one month.
// Days is keyed by day of month.
type MonthSummary struct {
	EmployeeID string            `json:"employeeId"`
	Year       int               `json:"year"`
	Month      time.Month        `json:"month"`
	Days       map[int]DayStatus `json:"days"`
	Counts     Counts            `json:"counts"`
}

// CountDays tallies statuses. TotalDays counts recognized labels only.
func CountDays(days map[int]DayStatus) Counts {
	var c Counts
	for _, d := range days {
		switch d.Status {
		case StatusPresent:
			c.PresentDays++
		case StatusLeave:
			c.ApprovedLeaveDays++
		case StatusLOP:
			c.ApprovedLopDays++
		case StatusAbsent:
			c.UnapprovedAbsenceDays++
		case StatusWeeklyOff:
			c.WeeklyOffDays++
		default:
			continue
		}
		c.TotalDays++
	}
	return c
}
