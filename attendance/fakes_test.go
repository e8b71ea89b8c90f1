package attendance_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var kolkata = time.FixedZone("IST", 5*3600+1800)

type fakeDirectory struct {
	mu       sync.Mutex
	profiles map[string]attendance.EmployeeProfile
	err      error
}

func (d *fakeDirectory) add(p attendance.EmployeeProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

func (d *fakeDirectory) Get(_ context.Context, id string) (attendance.EmployeeProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return attendance.EmployeeProfile{}, d.err
	}
	p, ok := d.profiles[id]
	if !ok {
		return p, &attendance.NotFoundError{What: "employee", ID: id}
	}
	return p, nil
}

func (d *fakeDirectory) Exists(ctx context.Context, id string) (bool, error) {
	_, err := d.Get(ctx, id)
	if errors.Is(err, attendance.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (d *fakeDirectory) GetMany(ctx context.Context, ids []string) ([]attendance.EmployeeProfile, error) {
	var out []attendance.EmployeeProfile
	for _, id := range ids {
		if p, err := d.Get(ctx, id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *fakeDirectory) List(_ context.Context) ([]attendance.EmployeeProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	var out []attendance.EmployeeProfile
	for _, p := range d.profiles {
		out = append(out, p)
	}
	return out, nil
}

type fakeLeaves struct {
	records []attendance.LeaveRecord
	err     error
}

func (l *fakeLeaves) FindApproved(_ context.Context, id string, r calendar.Range) ([]attendance.LeaveRecord, error) {
	if l.err != nil {
		return nil, l.err
	}
	var out []attendance.LeaveRecord
	for _, rec := range l.records {
		if rec.EmployeeID != id {
			continue
		}
		for _, d := range rec.Dates {
			if r.Contains(d) {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}

type fakeFaces struct {
	mu        sync.Mutex
	verdict   attendance.Verdict
	err       error
	delay     time.Duration
	calls     int
	recognize string
}

func (f *fakeFaces) Verify(ctx context.Context, _ string, _ []byte, _ string) (attendance.Verdict, error) {
	f.mu.Lock()
	f.calls++
	delay, verdict, err := f.delay, f.verdict, f.err
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return verdict, err
}

func (f *fakeFaces) Recognize(_ context.Context, _ []byte) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	return f.recognize, f.recognize != "", nil
}

func (f *fakeFaces) verifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeImages struct {
	mu     sync.Mutex
	stored int
	err    error
}

func (i *fakeImages) Store(_ context.Context, id string, kind attendance.ImageKind, _ []byte) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return "", i.err
	}
	i.stored++
	return "mem://" + string(kind) + "/" + id, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type harness struct {
	svc       *attendance.Service
	store     *memory.Store
	directory *fakeDirectory
	leaves    *fakeLeaves
	faces     *fakeFaces
	images    *fakeImages
	clock     *clock
}

// newHarness starts the clock at 10:00 local time on today.
func newHarness(t *testing.T, today string) *harness {
	t.Helper()
	d := calendar.MustParse(today)
	h := &harness{
		store:     memory.New(),
		directory: &fakeDirectory{profiles: make(map[string]attendance.EmployeeProfile)},
		leaves:    &fakeLeaves{},
		faces:     &fakeFaces{verdict: attendance.VerdictPresent},
		images:    &fakeImages{},
		clock:     &clock{t: at(d, 10, 0)},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h.svc = attendance.NewService(h.store, attendance.Dependencies{
		Directory: h.directory,
		Leaves:    h.leaves,
		Faces:     h.faces,
		Images:    h.images,
		Location:  kolkata,
		Timeout:   time.Second,
		Now:       h.clock.Now,
		Logger:    logger,
	})
	return h
}

func at(d calendar.Date, hour, minute int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, kolkata)
}

func (h *harness) employee(id, joining string, offs ...time.Weekday) attendance.EmployeeProfile {
	p := attendance.EmployeeProfile{
		ID:          id,
		Name:        "Employee " + id,
		JoiningDate: calendar.MustParse(joining),
		WeeklyOffs:  calendar.NewWeekdaySet(offs...),
		PhotoURL:    "mem://profile/" + id,
	}
	h.directory.add(p)
	return p
}

func (h *harness) checkIn(t *testing.T, id string) (attendance.Verdict, error) {
	t.Helper()
	return h.svc.CheckIn(context.Background(), attendance.CheckInRequest{EmployeeID: id, Image: []byte("face")})
}

func (h *harness) status(t *testing.T, id, date string) (attendance.Status, bool) {
	t.Helper()
	st, ok, err := h.store.Day(context.Background(), id, calendar.MustParse(date))
	if err != nil {
		t.Fatalf("store.Day: %v", err)
	}
	return st.Status, ok
}
