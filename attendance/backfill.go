/*
backfill.go - One-time historical classification

WHEN:
  On an employee's first check-in ever (no ledger entry exists yet), every
  day from the joining date up to, but not including, today is classified
  before the check-in itself is recorded. A backdated check-in day is then
  overwritten with Present in the same transaction.

RULES:
  - weekday in the employee's weekly-offs -> Weekly Off
  - otherwise                              -> Absent
  - days that already have a status keep it (manual overrides made before
    the first check-in survive)
  - the walk stops before today; a joining date in the future walks nothing

GATE:
  Once any ledger entry exists the backfill never runs again, so a late
  first check-in cannot rewrite history that admins have since corrected.
*/
package attendance

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/warp/attendance-engine/calendar"
)

// backfillPlan classifies [joiningDate, until).
func backfillPlan(profile EmployeeProfile, until calendar.Date) map[calendar.Date]DayStatus {
	walk := calendar.HalfOpen(profile.JoiningDate, until)
	plan := make(map[calendar.Date]DayStatus, walk.Len())
	for _, d := range walk.Days() {
		if profile.WeeklyOffs.Contains(d.Weekday()) {
			plan[d] = DayStatus{Status: StatusWeeklyOff}
		} else {
			plan[d] = DayStatus{Status: StatusAbsent}
		}
	}
	return plan
}

// backfill writes the plan without overwriting existing statuses.
// The caller checks the gate and holds the employee lock.
func backfill(ctx context.Context, tx Store, profile EmployeeProfile, until calendar.Date) (int, error) {
	plan := backfillPlan(profile, until)
	if len(plan) == 0 {
		return 0, nil
	}
	return tx.InsertDaysIfAbsent(ctx, profile.ID, plan)
}

// Backfill runs the historical classification up to today on demand.
// It is a no-op once the employee has any ledger entry. Returns the number
// of days classified.
func (s *Service) Backfill(ctx context.Context, employeeID string) (int, error) {
	profile, err := s.profile(ctx, employeeID)
	if err != nil {
		return 0, err
	}
	today := s.Today()

	unlock := s.locks.Lock(employeeID)
	defer unlock()

	inserted := 0
	err = s.store.WithTx(ctx, func(tx Store) error {
		hasEntries, err := tx.HasEntries(ctx, employeeID)
		if err != nil || hasEntries {
			return err
		}
		inserted, err = backfill(ctx, tx, profile, today)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{"employee_id": employeeID, "inserted": inserted}).Info("backfill completed")
	return inserted, nil
}
