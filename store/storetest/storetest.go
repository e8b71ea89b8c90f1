// Package storetest runs the same behavioural checks against every
// attendance.Store implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
)

// Run exercises store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) attendance.Store) {
	t.Run("ledger append and read", func(t *testing.T) { testLedger(t, newStore(t)) })
	t.Run("entries in range", func(t *testing.T) { testEntriesInRange(t, newStore(t)) })
	t.Run("day statuses", func(t *testing.T) { testDays(t, newStore(t)) })
	t.Run("insert if absent", func(t *testing.T) { testInsertIfAbsent(t, newStore(t)) })
	t.Run("tx commit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("tx rollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
}

var day = calendar.MustParse("2025-04-15")

func checkin(hour int) attendance.Event {
	return attendance.Event{
		Kind:        attendance.EventCheckIn,
		At:          time.Date(2025, time.April, 15, hour, 0, 0, 0, time.UTC),
		EvidenceURL: fmt.Sprintf("img://%d", hour),
	}
}

func checkout(hour int) attendance.Event {
	return attendance.Event{
		Kind: attendance.EventCheckOut,
		At:   time.Date(2025, time.April, 15, hour, 30, 0, 0, time.UTC),
	}
}

func testLedger(t *testing.T, s attendance.Store) {
	ctx := context.Background()

	e, err := s.Entry(ctx, "E1", day)
	require.NoError(t, err)
	assert.Nil(t, e)

	has, err := s.HasEntries(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.AppendEvent(ctx, "E1", day, checkin(9)))
	require.NoError(t, s.AppendEvent(ctx, "E1", day, checkout(12)))
	require.NoError(t, s.AppendEvent(ctx, "E1", day, checkin(13)))

	e, err = s.Entry(ctx, "E1", day)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "E1", e.EmployeeID)
	assert.Equal(t, day, e.Date)
	require.Len(t, e.Events, 3)
	assert.Equal(t, attendance.EventCheckIn, e.Events[0].Kind)
	assert.Equal(t, attendance.EventCheckOut, e.Events[1].Kind)
	assert.True(t, checkin(9).At.Equal(e.Events[0].At))
	assert.Equal(t, checkin(9).EvidenceURL, e.Events[0].EvidenceURL)
	assert.Empty(t, e.Events[1].EvidenceURL)
	assert.Equal(t, attendance.StateCheckedIn, e.State())

	has, err = s.HasEntries(ctx, "E1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasEntries(ctx, "E2")
	require.NoError(t, err)
	assert.False(t, has, "ledgers are per employee")
}

func testEntriesInRange(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	for _, d := range []string{"2025-04-01", "2025-04-10", "2025-04-30", "2025-05-01"} {
		require.NoError(t, s.AppendEvent(ctx, "E1", calendar.MustParse(d), checkin(9)))
	}

	entries, err := s.EntriesInRange(ctx, "E1", calendar.Month(2025, time.April))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, calendar.MustParse("2025-04-01"), entries[0].Date)
	assert.Equal(t, calendar.MustParse("2025-04-10"), entries[1].Date)
	assert.Equal(t, calendar.MustParse("2025-04-30"), entries[2].Date)
	for _, e := range entries {
		assert.Len(t, e.Events, 1)
	}

	empty, err := s.EntriesInRange(ctx, "E1", calendar.MonthUpTo(2025, time.June, calendar.MustParse("2025-05-15")))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testDays(t *testing.T, s attendance.Store) {
	ctx := context.Background()

	has, err := s.HasSummary(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, has)

	err = s.PutDays(ctx, "E1", map[calendar.Date]attendance.DayStatus{
		calendar.MustParse("2025-04-01"): {Status: attendance.StatusAbsent},
		calendar.MustParse("2025-04-02"): {Status: attendance.StatusLeave, LeaveReferenceID: "LV-1"},
		calendar.MustParse("2025-05-01"): {Status: attendance.StatusPresent},
	})
	require.NoError(t, err)

	has, err = s.HasSummary(ctx, "E1")
	require.NoError(t, err)
	assert.True(t, has)

	st, ok, err := s.Day(ctx, "E1", calendar.MustParse("2025-04-02"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, attendance.DayStatus{Status: attendance.StatusLeave, LeaveReferenceID: "LV-1"}, st)

	_, ok, err = s.Day(ctx, "E1", calendar.MustParse("2025-04-03"))
	require.NoError(t, err)
	assert.False(t, ok)

	april, err := s.Days(ctx, "E1", calendar.Month(2025, time.April))
	require.NoError(t, err)
	assert.Len(t, april, 2)

	// overwrite clears the leave reference
	err = s.PutDays(ctx, "E1", map[calendar.Date]attendance.DayStatus{
		calendar.MustParse("2025-04-02"): {Status: attendance.StatusPresent},
	})
	require.NoError(t, err)
	st, _, err = s.Day(ctx, "E1", calendar.MustParse("2025-04-02"))
	require.NoError(t, err)
	assert.Equal(t, attendance.DayStatus{Status: attendance.StatusPresent}, st)
}

func testInsertIfAbsent(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutDays(ctx, "E1", map[calendar.Date]attendance.DayStatus{
		calendar.MustParse("2025-04-05"): {Status: attendance.StatusLeave},
	}))

	plan := map[calendar.Date]attendance.DayStatus{
		calendar.MustParse("2025-04-05"): {Status: attendance.StatusWeeklyOff},
		calendar.MustParse("2025-04-06"): {Status: attendance.StatusWeeklyOff},
	}
	n, err := s.InsertDaysIfAbsent(ctx, "E1", plan)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.InsertDaysIfAbsent(ctx, "E1", plan)
	require.NoError(t, err)
	assert.Zero(t, n)

	st, _, err := s.Day(ctx, "E1", calendar.MustParse("2025-04-05"))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusLeave, st.Status)
}

func testTxCommit(t *testing.T, s attendance.Store) {
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx attendance.Store) error {
		if err := tx.AppendEvent(ctx, "E1", day, checkin(9)); err != nil {
			return err
		}
		// reads inside the transaction see its own writes
		e, err := tx.Entry(ctx, "E1", day)
		if err != nil {
			return err
		}
		if e == nil || len(e.Events) != 1 {
			return errors.New("write not visible inside tx")
		}
		return tx.PutDays(ctx, "E1", map[calendar.Date]attendance.DayStatus{day: {Status: attendance.StatusPresent}})
	})
	require.NoError(t, err)

	e, err := s.Entry(ctx, "E1", day)
	require.NoError(t, err)
	require.NotNil(t, e)
	st, ok, err := s.Day(ctx, "E1", day)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, attendance.StatusPresent, st.Status)
}

func testTxRollback(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx attendance.Store) error {
		if err := tx.AppendEvent(ctx, "E1", day, checkin(9)); err != nil {
			return err
		}
		if _, err := tx.InsertDaysIfAbsent(ctx, "E1", map[calendar.Date]attendance.DayStatus{day: {Status: attendance.StatusPresent}}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	e, err := s.Entry(ctx, "E1", day)
	require.NoError(t, err)
	assert.Nil(t, e)

	has, err := s.HasEntries(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = s.HasSummary(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, has)
}
