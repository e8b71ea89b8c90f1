package attendance_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// SCENARIOS
// =============================================================================

func TestCheckIn_FirstEverBackfillsHistory(t *testing.T) {
	// GIVEN: Employee joined 2025-04-10, Sundays off, never checked in
	// WHEN: First check-in on 2025-04-15
	// THEN: 10-12 and 14 are Absent, 13 (Sunday) is Weekly Off, 15 is Present

	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-10", time.Sunday)

	verdict, err := h.checkIn(t, "E1")
	require.NoError(t, err)
	assert.Equal(t, attendance.VerdictPresent, verdict)

	for _, d := range []string{"2025-04-10", "2025-04-11", "2025-04-12", "2025-04-14"} {
		st, ok := h.status(t, "E1", d)
		assert.True(t, ok, d)
		assert.Equal(t, attendance.StatusAbsent, st, d)
	}
	st, _ := h.status(t, "E1", "2025-04-13")
	assert.Equal(t, attendance.StatusWeeklyOff, st)
	st, _ = h.status(t, "E1", "2025-04-15")
	assert.Equal(t, attendance.StatusPresent, st)

	_, ok := h.status(t, "E1", "2025-04-09")
	assert.False(t, ok, "nothing before the joining date")
	_, ok = h.status(t, "E1", "2025-04-16")
	assert.False(t, ok, "nothing after today")

	assert.Len(t, h.store.AllDays("E1"), 6)
}

func TestBulkOverride_LeaveCountsInMonth(t *testing.T) {
	// GIVEN: An employee
	// WHEN: Two days are overridden to Leave with a reference
	// THEN: The month reports both as approved leave, tagged with the reference

	h := newHarness(t, "2025-04-25")
	h.employee("E1", "2025-04-01")
	ctx := context.Background()

	n, err := h.svc.BulkOverride(ctx, attendance.OverrideRequest{
		EmployeeID:       "E1",
		Status:           "Leave",
		LeaveReferenceID: "LV-001",
		Dates:            []string{"2025-04-20", "2025-04-21"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	month, err := h.svc.Month(ctx, "E1", 2025, time.April)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, month.Counts.ApprovedLeaveDays, 2)
	assert.Equal(t, "LV-001", month.Days[20].LeaveReferenceID)
	assert.Equal(t, "LV-001", month.Days[21].LeaveReferenceID)
	assert.Equal(t, attendance.StatusLeave, month.Days[20].Status)
}

func TestCheckIn_TwiceWithoutCheckOut_Conflict(t *testing.T) {
	// GIVEN: Employee already checked in today
	// WHEN: Checking in again without checking out
	// THEN: Conflict, and the face service is not called a second time

	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")

	_, err := h.checkIn(t, "E1")
	require.NoError(t, err)

	_, err = h.checkIn(t, "E1")
	assert.ErrorIs(t, err, attendance.ErrConflict)
	assert.Equal(t, 1, h.faces.verifyCalls())

	entry, err := h.store.Entry(context.Background(), "E1", calendar.MustParse("2025-04-15"))
	require.NoError(t, err)
	assert.Len(t, entry.Events, 1)
}

func TestCheckOut_WithoutCheckIn_NotFound(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")

	_, err := h.svc.CheckOut(context.Background(), "E1")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestMarkWeekends_DoesNotOverwrite(t *testing.T) {
	// GIVEN: Sat/Sun off, and 2025-04-05 (Saturday) overridden to Leave
	// WHEN: Marking weekends for April
	// THEN: Every other Sat/Sun becomes Weekly Off, 04-05 stays Leave

	h := newHarness(t, "2025-04-02")
	h.employee("E1", "2025-01-01", time.Saturday, time.Sunday)
	ctx := context.Background()

	_, err := h.svc.BulkOverride(ctx, attendance.OverrideRequest{
		EmployeeID: "E1", Status: "Leave", Dates: []string{"2025-04-05"},
	})
	require.NoError(t, err)

	n, err := h.svc.MarkWeekends(ctx, "E1", 2025, time.April)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	for _, d := range []string{"2025-04-06", "2025-04-12", "2025-04-13", "2025-04-19", "2025-04-20", "2025-04-26", "2025-04-27"} {
		st, _ := h.status(t, "E1", d)
		assert.Equal(t, attendance.StatusWeeklyOff, st, d)
	}
	st, _ := h.status(t, "E1", "2025-04-05")
	assert.Equal(t, attendance.StatusLeave, st)

	_, ok := h.status(t, "E1", "2025-04-07")
	assert.False(t, ok, "weekdays are not touched")
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestMarkWeekends_Idempotent(t *testing.T) {
	h := newHarness(t, "2025-04-10")
	h.employee("E1", "2025-01-01", time.Saturday, time.Sunday)
	ctx := context.Background()

	_, err := h.svc.MarkWeekends(ctx, "E1", 2025, time.April)
	require.NoError(t, err)
	first, err := h.svc.Month(ctx, "E1", 2025, time.April)
	require.NoError(t, err)

	n, err := h.svc.MarkWeekends(ctx, "E1", 2025, time.April)
	require.NoError(t, err)
	assert.Zero(t, n)
	second, err := h.svc.Month(ctx, "E1", 2025, time.April)
	require.NoError(t, err)

	assert.Equal(t, first.Days, second.Days)
	assert.Equal(t, 8, second.Counts.WeeklyOffDays)
}

func TestBackfill_RunsAtMostOnce(t *testing.T) {
	// GIVEN: First check-in on 04-15 backfilled 04-10..04-14
	// WHEN: An admin corrects 04-11 and the employee checks in on 04-17
	// THEN: History stays as it was; 04-16 is not backfilled

	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-10", time.Sunday)
	ctx := context.Background()

	_, err := h.checkIn(t, "E1")
	require.NoError(t, err)

	_, err = h.svc.BulkOverride(ctx, attendance.OverrideRequest{
		EmployeeID: "E1", Status: "LOP", Dates: []string{"2025-04-11"},
	})
	require.NoError(t, err)

	h.clock.Set(at(calendar.MustParse("2025-04-17"), 9, 30))
	_, err = h.checkIn(t, "E1")
	require.NoError(t, err)

	st, _ := h.status(t, "E1", "2025-04-11")
	assert.Equal(t, attendance.StatusLOP, st)
	st, _ = h.status(t, "E1", "2025-04-15")
	assert.Equal(t, attendance.StatusPresent, st)
	_, ok := h.status(t, "E1", "2025-04-16")
	assert.False(t, ok)
	st, _ = h.status(t, "E1", "2025-04-17")
	assert.Equal(t, attendance.StatusPresent, st)

	n, err := h.svc.Backfill(ctx, "E1")
	require.NoError(t, err)
	assert.Zero(t, n, "explicit backfill is gated too")
}

func TestBackfill_KeepsOverridesMadeBeforeFirstCheckIn(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-10")
	ctx := context.Background()

	_, err := h.svc.BulkOverride(ctx, attendance.OverrideRequest{
		EmployeeID: "E1", Status: "Leave", LeaveReferenceID: "LV-9", Dates: []string{"2025-04-11"},
	})
	require.NoError(t, err)

	_, err = h.checkIn(t, "E1")
	require.NoError(t, err)

	st, ok, err := h.store.Day(ctx, "E1", calendar.MustParse("2025-04-11"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, attendance.StatusLeave, st.Status)
	assert.Equal(t, "LV-9", st.LeaveReferenceID)
}

func TestBackfill_OnDemand(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-10", time.Sunday)

	n, err := h.svc.Backfill(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, 5, n, "04-10..04-14, today excluded")

	_, ok := h.status(t, "E1", "2025-04-15")
	assert.False(t, ok)
}

func TestBackfill_FutureJoiningDateWalksNothing(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-05-01")

	n, err := h.svc.Backfill(context.Background(), "E1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.store.AllDays("E1"))

	_, err = h.checkIn(t, "E1")
	assert.ErrorIs(t, err, attendance.ErrValidation, "no check-in before joining")
}

func TestDay_EveryProcessedDateHasExactlyOneStatus(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01", time.Saturday, time.Sunday)
	ctx := context.Background()

	_, err := h.checkIn(t, "E1")
	require.NoError(t, err)

	for _, d := range (calendar.Range{Start: calendar.MustParse("2025-04-01"), End: calendar.MustParse("2025-04-15")}).Days() {
		rec, err := h.svc.Day(ctx, "E1", d)
		require.NoError(t, err, d.String())
		require.NotNil(t, rec.Status, d.String())
		assert.True(t, rec.Status.Status.Known(), d.String())
	}
}

// =============================================================================
// CHECK-IN / CHECK-OUT
// =============================================================================

func TestCheckIn_ReentrantWithinDay(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")
	ctx := context.Background()
	day := calendar.MustParse("2025-04-15")

	_, err := h.checkIn(t, "E1")
	require.NoError(t, err)

	h.clock.Set(at(day, 13, 0))
	_, err = h.svc.CheckOut(ctx, "E1")
	require.NoError(t, err)

	h.clock.Set(at(day, 14, 0))
	_, err = h.checkIn(t, "E1")
	require.NoError(t, err)

	h.clock.Set(at(day, 18, 30))
	ev, err := h.svc.CheckOut(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, attendance.EventCheckOut, ev.Kind)

	_, err = h.svc.CheckOut(ctx, "E1")
	assert.ErrorIs(t, err, attendance.ErrConflict, "no open check-in")

	rec, err := h.svc.Day(ctx, "E1", day)
	require.NoError(t, err)
	require.NotNil(t, rec.Entry)
	assert.Len(t, rec.Entry.Events, 4)
	assert.Equal(t, attendance.StateCheckedOut, rec.Entry.State())
	assert.Equal(t, "7.5", rec.WorkedHours.String())
	assert.Equal(t, "mem://checkin/E1", rec.Entry.Events[0].EvidenceURL)
}

func TestCheckIn_AbsentVerdictWritesNothing(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")
	h.faces.verdict = attendance.VerdictAbsent

	verdict, err := h.checkIn(t, "E1")
	require.NoError(t, err)
	assert.Equal(t, attendance.VerdictAbsent, verdict)

	assert.Empty(t, h.store.AllDays("E1"))
	has, err := h.store.HasEntries(context.Background(), "E1")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Zero(t, h.images.stored)
}

func TestCheckIn_UnknownEmployee(t *testing.T) {
	h := newHarness(t, "2025-04-15")

	_, err := h.checkIn(t, "ghost")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
	assert.NotErrorIs(t, err, attendance.ErrUpstream)
}

func TestCheckIn_UpstreamFailures(t *testing.T) {
	boom := errors.New("connection refused")

	cases := map[string]func(h *harness){
		"directory": func(h *harness) { h.directory.err = boom },
		"face":      func(h *harness) { h.faces.err = boom },
		"image":     func(h *harness) { h.images.err = boom },
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, "2025-04-15")
			h.employee("E1", "2025-04-01")
			breakIt(h)

			_, err := h.checkIn(t, "E1")
			require.Error(t, err)
			assert.ErrorIs(t, err, attendance.ErrUpstream)
			assert.ErrorIs(t, err, boom)

			var upErr *attendance.UpstreamError
			require.ErrorAs(t, err, &upErr)
			assert.NotEmpty(t, upErr.Service)

			assert.Empty(t, h.store.AllDays("E1"), "failed check-in writes nothing")
		})
	}
}

func TestCheckIn_VerificationTimeout(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")
	h.faces.delay = time.Second

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := attendance.NewService(h.store, attendance.Dependencies{
		Directory: h.directory,
		Leaves:    h.leaves,
		Faces:     h.faces,
		Images:    h.images,
		Location:  kolkata,
		Timeout:   20 * time.Millisecond,
		Now:       h.clock.Now,
		Logger:    logger,
	})

	_, err := svc.CheckIn(context.Background(), attendance.CheckInRequest{EmployeeID: "E1", Image: []byte("face")})
	assert.ErrorIs(t, err, attendance.ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCheckIn_Validation(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")
	ctx := context.Background()

	_, err := h.svc.CheckIn(ctx, attendance.CheckInRequest{Image: []byte("x")})
	assert.ErrorIs(t, err, attendance.ErrValidation)

	_, err = h.svc.CheckIn(ctx, attendance.CheckInRequest{EmployeeID: "E1"})
	assert.ErrorIs(t, err, attendance.ErrValidation)

	tomorrow := at(calendar.MustParse("2025-04-16"), 9, 0)
	_, err = h.svc.CheckIn(ctx, attendance.CheckInRequest{EmployeeID: "E1", Image: []byte("x"), At: &tomorrow})
	assert.ErrorIs(t, err, attendance.ErrValidation)
}

func TestCheckIn_ExplicitPastTime(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-10")

	yesterday := at(calendar.MustParse("2025-04-14"), 9, 15)
	_, err := h.svc.CheckIn(context.Background(), attendance.CheckInRequest{
		EmployeeID: "E1", Image: []byte("x"), At: &yesterday,
	})
	require.NoError(t, err)

	st, _ := h.status(t, "E1", "2025-04-14")
	assert.Equal(t, attendance.StatusPresent, st)
	st, _ = h.status(t, "E1", "2025-04-13")
	assert.Equal(t, attendance.StatusAbsent, st)
	_, ok := h.status(t, "E1", "2025-04-15")
	assert.False(t, ok)
}

func TestCheckIn_BackdatedFirstCheckInBackfillsUpToToday(t *testing.T) {
	// GIVEN: Employee joined 2025-04-01, today is 2025-04-15
	// WHEN: The first check-in ever is backdated to 2025-04-10
	// THEN: 04-10 is Present and every other day up to yesterday is classified

	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01", time.Sunday)
	ctx := context.Background()

	backdated := at(calendar.MustParse("2025-04-10"), 9, 0)
	_, err := h.svc.CheckIn(ctx, attendance.CheckInRequest{EmployeeID: "E1", Image: []byte("x"), At: &backdated})
	require.NoError(t, err)

	st, _ := h.status(t, "E1", "2025-04-10")
	assert.Equal(t, attendance.StatusPresent, st)
	for _, d := range []string{"2025-04-09", "2025-04-11", "2025-04-12", "2025-04-14"} {
		st, ok := h.status(t, "E1", d)
		assert.True(t, ok, d)
		assert.Equal(t, attendance.StatusAbsent, st, d)
	}
	st, _ = h.status(t, "E1", "2025-04-13")
	assert.Equal(t, attendance.StatusWeeklyOff, st)
	_, ok := h.status(t, "E1", "2025-04-15")
	assert.False(t, ok, "today is left open")
	assert.Len(t, h.store.AllDays("E1"), 14)
}

func TestCheckIn_BeforeJoiningDate(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-10")

	early := at(calendar.MustParse("2025-04-09"), 9, 0)
	_, err := h.svc.CheckIn(context.Background(), attendance.CheckInRequest{EmployeeID: "E1", Image: []byte("x"), At: &early})
	assert.ErrorIs(t, err, attendance.ErrValidation)
	assert.Empty(t, h.store.AllDays("E1"))
	assert.Zero(t, h.faces.verifyCalls(), "rejected before verification")
}

func TestCheckIn_EarlierThanLastEventIsRejected(t *testing.T) {
	// GIVEN: A check-in and checkout at 10:00 today
	// WHEN: A second check-in is backdated to 00:01 the same day
	// THEN: It is rejected and the ledger keeps two events in time order

	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")
	ctx := context.Background()
	day := calendar.MustParse("2025-04-15")

	_, err := h.checkIn(t, "E1")
	require.NoError(t, err)
	_, err = h.svc.CheckOut(ctx, "E1")
	require.NoError(t, err)

	early := at(day, 0, 1)
	_, err = h.svc.CheckIn(ctx, attendance.CheckInRequest{EmployeeID: "E1", Image: []byte("x"), At: &early})
	assert.ErrorIs(t, err, attendance.ErrValidation)

	entry, err := h.store.Entry(ctx, "E1", day)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Len(t, entry.Events, 2)
}

func TestCheckOut_BeforeCheckInTimeIsRejected(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")
	ctx := context.Background()
	day := calendar.MustParse("2025-04-15")

	later := at(day, 18, 0)
	_, err := h.svc.CheckIn(ctx, attendance.CheckInRequest{EmployeeID: "E1", Image: []byte("x"), At: &later})
	require.NoError(t, err)

	_, err = h.svc.CheckOut(ctx, "E1")
	assert.ErrorIs(t, err, attendance.ErrValidation)

	h.clock.Set(at(day, 19, 0))
	_, err = h.svc.CheckOut(ctx, "E1")
	assert.NoError(t, err)
}

func TestCheckIn_DayFollowsServiceTimezone(t *testing.T) {
	// 20:00 UTC on 04-14 is 01:30 on 04-15 in Kolkata
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-15")

	utc := time.Date(2025, time.April, 14, 20, 0, 0, 0, time.UTC)
	_, err := h.svc.CheckIn(context.Background(), attendance.CheckInRequest{
		EmployeeID: "E1", Image: []byte("x"), At: &utc,
	})
	require.NoError(t, err)

	st, _ := h.status(t, "E1", "2025-04-15")
	assert.Equal(t, attendance.StatusPresent, st)
}

func TestCheckIn_ConcurrentSameEmployee(t *testing.T) {
	// GIVEN: Many simultaneous check-ins for one employee
	// THEN: Exactly one succeeds, the rest conflict, one event is stored

	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.checkIn(t, "E1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, attendance.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)

	entry, err := h.store.Entry(context.Background(), "E1", calendar.MustParse("2025-04-15"))
	require.NoError(t, err)
	assert.Len(t, entry.Events, 1)
}

func TestCheckIn_ConcurrentDifferentEmployees(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	ids := []string{"E1", "E2", "E3", "E4", "E5", "E6"}
	for _, id := range ids {
		h.employee(id, "2025-04-01", time.Sunday)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.checkIn(t, id)
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		assert.NoError(t, errs[i], id)
		assert.Len(t, h.store.AllDays(id), 15, id)
	}
}

// =============================================================================
// READS
// =============================================================================

func TestDay_NotFoundWhenNothingKnown(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")

	_, err := h.svc.Day(context.Background(), "E1", calendar.MustParse("2025-04-03"))
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestMonth_NotFoundWithoutSummary(t *testing.T) {
	h := newHarness(t, "2025-04-15")

	_, err := h.svc.Month(context.Background(), "E1", 2025, time.April)
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestMonth_EmptyMonthOfKnownEmployee(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-10")
	ctx := context.Background()

	_, err := h.checkIn(t, "E1")
	require.NoError(t, err)

	m, err := h.svc.Month(ctx, "E1", 2024, time.December)
	require.NoError(t, err)
	assert.Empty(t, m.Days)
	assert.Equal(t, attendance.Counts{}, m.Counts)
}

func TestMonth_InvalidMonth(t *testing.T) {
	h := newHarness(t, "2025-04-15")

	_, err := h.svc.Month(context.Background(), "E1", 2025, time.Month(13))
	assert.ErrorIs(t, err, attendance.ErrValidation)
}

func TestMonth_CountsIgnoreUnknownLabels(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	ctx := context.Background()

	err := h.store.PutDays(ctx, "E1", map[calendar.Date]attendance.DayStatus{
		calendar.MustParse("2025-04-01"): {Status: attendance.StatusPresent},
		calendar.MustParse("2025-04-02"): {Status: attendance.StatusAbsent},
		calendar.MustParse("2025-04-03"): {Status: "Holiday"},
		calendar.MustParse("2025-04-04"): {Status: attendance.StatusLOP},
		calendar.MustParse("2025-04-05"): {Status: attendance.StatusWeeklyOff},
	})
	require.NoError(t, err)

	m, err := h.svc.Month(ctx, "E1", 2025, time.April)
	require.NoError(t, err)
	assert.Len(t, m.Days, 5)
	assert.Equal(t, attendance.Counts{
		TotalDays:             4,
		PresentDays:           1,
		ApprovedLopDays:       1,
		UnapprovedAbsenceDays: 1,
		WeeklyOffDays:         1,
	}, m.Counts)
}

// =============================================================================
// OVERRIDE
// =============================================================================

func TestBulkOverride_AllOrNothing(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	ctx := context.Background()

	_, err := h.svc.BulkOverride(ctx, attendance.OverrideRequest{
		EmployeeID: "E1", Status: "Leave", Dates: []string{"2025-04-01", "04/02/2025"},
	})
	require.Error(t, err)
	var vErr *attendance.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "04/02/2025", vErr.Value)
	assert.Empty(t, h.store.AllDays("E1"))

	_, err = h.svc.BulkOverride(ctx, attendance.OverrideRequest{
		EmployeeID: "E1", Status: "Vacation", Dates: []string{"2025-04-01"},
	})
	assert.ErrorIs(t, err, attendance.ErrValidation)
}

func TestBulkOverride_OverwritesPresent(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-15")
	ctx := context.Background()

	_, err := h.checkIn(t, "E1")
	require.NoError(t, err)

	_, err = h.svc.BulkOverride(ctx, attendance.OverrideRequest{
		EmployeeID: "E1", Status: "weekly_off", Dates: []string{"2025-04-15"},
	})
	require.NoError(t, err)

	st, _ := h.status(t, "E1", "2025-04-15")
	assert.Equal(t, attendance.StatusWeeklyOff, st)
}

// =============================================================================
// SWEEP
// =============================================================================

type failingTx struct {
	attendance.Store
	failFor string
}

func (f *failingTx) InsertDaysIfAbsent(ctx context.Context, id string, days map[calendar.Date]attendance.DayStatus) (int, error) {
	if id == f.failFor {
		return 0, errors.New("disk full")
	}
	return f.Store.InsertDaysIfAbsent(ctx, id, days)
}

type failingStore struct {
	attendance.Store
	failFor string
}

func (f *failingStore) WithTx(ctx context.Context, fn func(attendance.Store) error) error {
	return f.Store.WithTx(ctx, func(tx attendance.Store) error {
		return fn(&failingTx{Store: tx, failFor: f.failFor})
	})
}

func TestMarkAllWeekends_ReportsPerEmployeeFailures(t *testing.T) {
	h := newHarness(t, "2025-04-01")
	h.employee("E1", "2025-01-01", time.Saturday, time.Sunday)
	h.employee("E2", "2025-01-01", time.Saturday, time.Sunday)
	h.employee("E3", "2025-01-01", time.Saturday, time.Sunday)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := attendance.NewService(&failingStore{Store: h.store, failFor: "E2"}, attendance.Dependencies{
		Directory:        h.directory,
		Location:         kolkata,
		SweepConcurrency: 2,
		Now:              h.clock.Now,
		Logger:           logger,
	})

	report, err := svc.MarkAllWeekends(context.Background(), 2025, time.April)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Employees)
	assert.Equal(t, 16, report.Marked)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"E2"}, report.FailedIDs())

	assert.Len(t, h.store.AllDays("E1"), 8)
	assert.Empty(t, h.store.AllDays("E2"))
}

func TestMarkAllWeekends_DirectoryFailure(t *testing.T) {
	h := newHarness(t, "2025-04-01")
	h.directory.err = errors.New("timeout")

	_, err := h.svc.MarkAllWeekends(context.Background(), 2025, time.April)
	assert.ErrorIs(t, err, attendance.ErrUpstream)
}

// =============================================================================
// IDENTIFY
// =============================================================================

func TestIdentify(t *testing.T) {
	h := newHarness(t, "2025-04-15")
	h.employee("E1", "2025-04-01")
	ctx := context.Background()

	h.faces.recognize = "E1"
	p, err := h.svc.Identify(ctx, []byte("face"))
	require.NoError(t, err)
	assert.Equal(t, "E1", p.ID)

	h.faces.recognize = ""
	_, err = h.svc.Identify(ctx, []byte("face"))
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	h.faces.recognize = "ghost"
	_, err = h.svc.Identify(ctx, []byte("face"))
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}
