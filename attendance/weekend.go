package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/attendance-engine/calendar"
	"golang.org/x/sync/errgroup"
)

// weekendPlan marks every day of the month that falls on a weekly off.
func weekendPlan(profile EmployeeProfile, year int, month time.Month) map[calendar.Date]DayStatus {
	plan := make(map[calendar.Date]DayStatus)
	for _, d := range profile.WeeklyOffs.Matching(calendar.Month(year, month)) {
		plan[d] = DayStatus{Status: StatusWeeklyOff}
	}
	return plan
}

// MarkWeekends inserts Weekly Off for the employee's weekly-off days of the
// month. Days that already have any status are left alone, so running it
// again for the same month changes nothing. Returns the number inserted.
func (s *Service) MarkWeekends(ctx context.Context, employeeID string, year int, month time.Month) (int, error) {
	if err := validateMonth(year, month); err != nil {
		return 0, err
	}
	profile, err := s.profile(ctx, employeeID)
	if err != nil {
		return 0, err
	}
	return s.markWeekends(ctx, profile, year, month)
}

func (s *Service) markWeekends(ctx context.Context, profile EmployeeProfile, year int, month time.Month) (int, error) {
	plan := weekendPlan(profile, year, month)
	if len(plan) == 0 {
		return 0, nil
	}

	unlock := s.locks.Lock(profile.ID)
	defer unlock()

	inserted := 0
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		inserted, err = tx.InsertDaysIfAbsent(ctx, profile.ID, plan)
		return err
	})
	return inserted, err
}

// SweepReport summarizes an all-employee weekend sweep.
type SweepReport struct {
	Year      int               `json:"year"`
	Month     time.Month        `json:"month"`
	Employees int               `json:"employees"`
	Marked    int               `json:"marked"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// FailedIDs returns the employees whose marking failed, sorted.
func (r SweepReport) FailedIDs() []string {
	ids := make([]string, 0, len(r.Errors))
	for id := range r.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarkAllWeekends runs MarkWeekends for every registered employee.
// Employees are processed concurrently; a failure for one employee is
// recorded in the report and does not stop the others. The returned error
// is non-nil only when the employee list cannot be loaded or ctx ends.
func (s *Service) MarkAllWeekends(ctx context.Context, year int, month time.Month) (SweepReport, error) {
	report := SweepReport{Year: year, Month: month}
	if err := validateMonth(year, month); err != nil {
		return report, err
	}

	cctx, cancel := s.withTimeout(ctx)
	profiles, err := s.directory.List(cctx)
	cancel()
	if err != nil {
		return report, upstream("directory", "list", err)
	}
	report.Employees = len(profiles)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.sweepConcurrency)

	for _, p := range profiles {
		p := p
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n, err := s.markWeekends(ctx, p, year, month)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				if report.Errors == nil {
					report.Errors = make(map[string]string)
				}
				report.Errors[p.ID] = err.Error()
				s.log.WithField("employee_id", p.ID).WithError(err).Warn("weekend marking failed")
				return nil
			}
			report.Marked += n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	s.log.WithFields(logrus.Fields{
		"year":      year,
		"month":     int(month),
		"employees": report.Employees,
		"marked":    report.Marked,
		"failed":    report.Failed,
	}).Info("weekend sweep completed")
	return report, nil
}
