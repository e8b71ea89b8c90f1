package attendance

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/calendar"
)

func entryOf(kinds ...EventKind) *LedgerEntry {
	day := calendar.MustParse("2025-04-15")
	e := &LedgerEntry{ID: "x", EmployeeID: "E1", Date: day}
	base := day.Time().Add(9 * time.Hour)
	for i, k := range kinds {
		e.Events = append(e.Events, Event{Kind: k, At: base.Add(time.Duration(i) * time.Hour)})
	}
	return e
}

func TestLedgerEntry_State(t *testing.T) {
	var nilEntry *LedgerEntry
	assert.Equal(t, StateNoRecord, nilEntry.State())
	assert.Equal(t, StateNoRecord, entryOf().State())
	assert.Equal(t, StateCheckedIn, entryOf(EventCheckIn).State())
	assert.Equal(t, StateCheckedOut, entryOf(EventCheckIn, EventCheckOut).State())
	assert.Equal(t, StateCheckedIn, entryOf(EventCheckIn, EventCheckOut, EventCheckIn).State())
}

func TestLedgerEntry_CanCheckIn(t *testing.T) {
	var nilEntry *LedgerEntry
	assert.NoError(t, nilEntry.CanCheckIn())
	assert.NoError(t, entryOf(EventCheckIn, EventCheckOut).CanCheckIn())

	err := entryOf(EventCheckIn).CanCheckIn()
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "2025-04-15", conflict.Date)
}

func TestLedgerEntry_CanCheckOut(t *testing.T) {
	day := calendar.MustParse("2025-04-15")
	var nilEntry *LedgerEntry

	assert.ErrorIs(t, nilEntry.CanCheckOut("E1", day), ErrNotFound)
	assert.ErrorIs(t, entryOf().CanCheckOut("E1", day), ErrConflict)
	assert.ErrorIs(t, entryOf(EventCheckIn, EventCheckOut).CanCheckOut("E1", day), ErrConflict)
	assert.NoError(t, entryOf(EventCheckIn).CanCheckOut("E1", day))
}

func TestLedgerEntry_NotBefore(t *testing.T) {
	var nilEntry *LedgerEntry
	e := entryOf(EventCheckIn, EventCheckOut) // 09:00, 10:00
	last := e.Events[1].At

	assert.NoError(t, nilEntry.NotBefore(last, "checkinTime"))
	assert.NoError(t, e.NotBefore(last, "checkinTime"), "same instant is allowed")
	assert.NoError(t, e.NotBefore(last.Add(time.Minute), "checkinTime"))

	err := e.NotBefore(last.Add(-time.Minute), "checkinTime")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "checkinTime", ve.Field)
}

func TestLedgerEntry_CorruptionFailsLoudly(t *testing.T) {
	// GIVEN: A stored entry that starts with a checkout
	// THEN: Both transitions refuse it instead of repairing it

	bad := entryOf(EventCheckOut, EventCheckIn)
	day := bad.Date

	err := bad.CanCheckIn()
	assert.ErrorIs(t, err, ErrCorruptLedger)
	var corrupt *CorruptLedgerError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, 0, corrupt.Index)

	assert.ErrorIs(t, bad.CanCheckOut("E1", day), ErrCorruptLedger)
	assert.ErrorIs(t, entryOf(EventCheckIn, EventCheckIn).Validate(), ErrCorruptLedger)
}

func TestLedgerEntry_WorkedHours(t *testing.T) {
	assert.True(t, entryOf().WorkedHours().IsZero())
	assert.Equal(t, "1", entryOf(EventCheckIn, EventCheckOut).WorkedHours().String())
	assert.Equal(t, "2", entryOf(EventCheckIn, EventCheckOut, EventCheckIn, EventCheckOut).WorkedHours().String())
	assert.Equal(t, "1", entryOf(EventCheckIn, EventCheckOut, EventCheckIn).WorkedHours().String(), "open check-in does not count")

	var nilEntry *LedgerEntry
	assert.True(t, nilEntry.WorkedHours().IsZero())
}

func TestUpstream_KeepsKinds(t *testing.T) {
	nf := &NotFoundError{What: "employee", ID: "E1"}
	assert.Same(t, nf, upstream("directory", "get", nf).(*NotFoundError))

	v := &ValidationError{Field: "file", Reason: "bad"}
	assert.ErrorIs(t, upstream("image-store", "store", v), ErrValidation)
	assert.NotErrorIs(t, upstream("image-store", "store", v), ErrUpstream)

	raw := errors.New("reset by peer")
	wrapped := upstream("face-verification", "verify", raw)
	assert.ErrorIs(t, wrapped, ErrUpstream)
	assert.ErrorIs(t, wrapped, raw)
	assert.Same(t, wrapped, upstream("api", "again", wrapped).(*UpstreamError))

	assert.Nil(t, upstream("x", "y", nil))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(&ConflictError{}))
	assert.True(t, IsClientError(&ValidationError{}))
	assert.True(t, IsClientError(&NotFoundError{}))
	assert.False(t, IsClientError(&UpstreamError{Err: errors.New("x")}))
	assert.False(t, IsClientError(errors.New("x")))
}

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		active  int32
		maxSeen int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("E1")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, km.locks, "entries are released")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.Lock("A")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("B")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on B blocked behind A")
	}
}
