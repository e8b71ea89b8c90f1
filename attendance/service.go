/*
service.go - Attendance operations

OPERATIONS:
  CheckIn        Face-verified check-in; first one ever triggers backfill
  CheckOut       Close today's open check-in
  Day            Day status + ledger entry for one date
  Month          Persisted monthly summary with derived counts
  Breakdown      On-demand monthly classification (aggregate.go)
  Backfill       One-time historical classification (backfill.go)
  MarkWeekends   Idempotent weekly-off marking (weekend.go)
  BulkOverride   Unconditional admin write (override.go)
  Identify       Face recognition to employee profile

CONCURRENCY:
  Every operation that writes an employee's ledger or statuses holds that
  employee's lock for its whole read-modify-write, and performs its writes
  in one store transaction. Different employees never block each other.

COLLABORATOR CALLS:
  Each directory, leave, face or image call gets its own timeout. Failures
  surface as UpstreamError; nothing is retried.
*/
package attendance

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/attendance-engine/calendar"
)

// DefaultTimeout bounds each collaborator call when none is configured.
const DefaultTimeout = 10 * time.Second

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Directory EmployeeDirectory
	Leaves    LeaveDirectory
	Faces     FaceVerifier
	Images    ImageStore

	// Location is the timezone that defines "today" and the day of a check-in.
	// Defaults to UTC.
	Location *time.Location

	// Timeout applies to each collaborator call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// SweepConcurrency bounds MarkAllWeekends. Defaults to 4.
	SweepConcurrency int

	// Now overrides the clock (tests).
	Now func() time.Time

	Logger *logrus.Logger
}

// Service implements the attendance operations.
type Service struct {
	store     Store
	directory EmployeeDirectory
	leaves    LeaveDirectory
	faces     FaceVerifier
	images    ImageStore

	loc              *time.Location
	timeout          time.Duration
	sweepConcurrency int
	now              func() time.Time
	log              *logrus.Entry

	locks *keyedMutex
}

// NewService creates a service over store.
func NewService(store Store, deps Dependencies) *Service {
	s := &Service{
		store:            store,
		directory:        deps.Directory,
		leaves:           deps.Leaves,
		faces:            deps.Faces,
		images:           deps.Images,
		loc:              deps.Location,
		timeout:          deps.Timeout,
		sweepConcurrency: deps.SweepConcurrency,
		now:              deps.Now,
		locks:            newKeyedMutex(),
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.sweepConcurrency <= 0 {
		s.sweepConcurrency = 4
	}
	if s.now == nil {
		s.now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s.log = logger.WithField("component", "attendance")
	return s
}

// Today returns the current day in the service timezone.
func (s *Service) Today() calendar.Date {
	return calendar.DateOf(s.now(), s.loc)
}

// Location returns the service timezone.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) profile(ctx context.Context, employeeID string) (EmployeeProfile, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	p, err := s.directory.Get(cctx, employeeID)
	if err != nil {
		return EmployeeProfile{}, upstream("directory", "get", err)
	}
	return p, nil
}

func (s *Service) logCorruption(employeeID string, err error) {
	if errors.Is(err, ErrCorruptLedger) {
		s.log.WithField("employee_id", employeeID).WithError(err).Error("ledger invariant violated")
	}
}

// =============================================================================
// CHECK-IN / CHECK-OUT
// =============================================================================

// CheckInRequest is a face-verified check-in attempt.
type CheckInRequest struct {
	EmployeeID string
	Image      []byte
	At         *time.Time // nil means now
}

// CheckIn verifies the face and records a check-in.
//
// An Absent verdict writes nothing and is not an error. On the employee's
// first check-in ever, all days from joining date up to yesterday are
// backfilled before the check-in day is marked Present. A check-in time
// before the joining date, on a future day, or earlier than the last event
// of its day is a ValidationError.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (Verdict, error) {
	if req.EmployeeID == "" {
		return "", &ValidationError{Field: "employeeId", Reason: "required"}
	}
	if len(req.Image) == 0 {
		return "", &ValidationError{Field: "file", Reason: "image required"}
	}

	profile, err := s.profile(ctx, req.EmployeeID)
	if err != nil {
		return "", err
	}

	at := s.now()
	if req.At != nil {
		at = *req.At
	}
	day := calendar.DateOf(at, s.loc)
	today := s.Today()
	if day.After(today) {
		return "", &ValidationError{Field: "checkinTime", Value: at.Format(time.RFC3339), Reason: "in the future"}
	}
	if day.Before(profile.JoiningDate) {
		return "", &ValidationError{Field: "checkinTime", Value: at.Format(time.RFC3339), Reason: "before joining date " + profile.JoiningDate.String()}
	}

	// Reject a double check-in before paying for verification and upload.
	entry, err := s.store.Entry(ctx, req.EmployeeID, day)
	if err != nil {
		return "", err
	}
	if err := entry.CanCheckIn(); err != nil {
		s.logCorruption(req.EmployeeID, err)
		return "", err
	}
	if err := entry.NotBefore(at, "checkinTime"); err != nil {
		return "", err
	}

	verdict, err := s.verify(ctx, profile, req.Image)
	if err != nil {
		return "", err
	}
	if verdict != VerdictPresent {
		s.log.WithField("employee_id", req.EmployeeID).Info("face verification rejected check-in")
		return VerdictAbsent, nil
	}

	evidenceURL, err := s.storeImage(ctx, req.EmployeeID, ImageCheckIn, req.Image)
	if err != nil {
		return "", err
	}

	unlock := s.locks.Lock(req.EmployeeID)
	defer unlock()

	backfilled := 0
	err = s.store.WithTx(ctx, func(tx Store) error {
		entry, err := tx.Entry(ctx, req.EmployeeID, day)
		if err != nil {
			return err
		}
		if err := entry.CanCheckIn(); err != nil {
			return err
		}
		if err := entry.NotBefore(at, "checkinTime"); err != nil {
			return err
		}

		hasEntries, err := tx.HasEntries(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		if !hasEntries {
			backfilled, err = backfill(ctx, tx, profile, today)
			if err != nil {
				return err
			}
		}

		ev := Event{Kind: EventCheckIn, At: at, EvidenceURL: evidenceURL}
		if err := tx.AppendEvent(ctx, req.EmployeeID, day, ev); err != nil {
			return err
		}
		return tx.PutDays(ctx, req.EmployeeID, map[calendar.Date]DayStatus{
			day: {Status: StatusPresent},
		})
	})
	if err != nil {
		s.logCorruption(req.EmployeeID, err)
		return "", err
	}

	s.log.WithFields(logrus.Fields{
		"employee_id": req.EmployeeID,
		"date":        day.String(),
		"backfilled":  backfilled,
	}).Info("check-in recorded")
	return VerdictPresent, nil
}

func (s *Service) verify(ctx context.Context, profile EmployeeProfile, image []byte) (Verdict, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	verdict, err := s.faces.Verify(cctx, profile.ID, image, profile.PhotoURL)
	if err != nil {
		return "", upstream("face-verification", "verify", err)
	}
	return verdict, nil
}

func (s *Service) storeImage(ctx context.Context, employeeID string, kind ImageKind, image []byte) (string, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	url, err := s.images.Store(cctx, employeeID, kind, image)
	if err != nil {
		return "", upstream("image-store", "store", err)
	}
	return url, nil
}

// CheckOut closes today's open check-in.
func (s *Service) CheckOut(ctx context.Context, employeeID string) (Event, error) {
	if employeeID == "" {
		return Event{}, &ValidationError{Field: "employeeId", Reason: "required"}
	}
	at := s.now()
	day := calendar.DateOf(at, s.loc)
	ev := Event{Kind: EventCheckOut, At: at}

	unlock := s.locks.Lock(employeeID)
	defer unlock()

	err := s.store.WithTx(ctx, func(tx Store) error {
		entry, err := tx.Entry(ctx, employeeID, day)
		if err != nil {
			return err
		}
		if err := entry.CanCheckOut(employeeID, day); err != nil {
			return err
		}
		if err := entry.NotBefore(at, "checkoutTime"); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, employeeID, day, ev)
	})
	if err != nil {
		s.logCorruption(employeeID, err)
		return Event{}, err
	}

	s.log.WithFields(logrus.Fields{"employee_id": employeeID, "date": day.String()}).Info("check-out recorded")
	return ev, nil
}

// =============================================================================
// READS
// =============================================================================

// DayRecord combines the persisted status with the raw ledger entry.
type DayRecord struct {
	EmployeeID  string
	Date        calendar.Date
	Status      *DayStatus
	Entry       *LedgerEntry
	WorkedHours decimal.Decimal
}

// Day returns what is known about one employee-day.
// NotFound when the day has neither a status nor a ledger entry.
func (s *Service) Day(ctx context.Context, employeeID string, day calendar.Date) (DayRecord, error) {
	rec := DayRecord{EmployeeID: employeeID, Date: day}

	status, ok, err := s.store.Day(ctx, employeeID, day)
	if err != nil {
		return rec, err
	}
	if ok {
		rec.Status = &status
	}

	entry, err := s.store.Entry(ctx, employeeID, day)
	if err != nil {
		return rec, err
	}
	rec.Entry = entry
	rec.WorkedHours = entry.WorkedHours()

	if rec.Status == nil && rec.Entry == nil {
		return rec, &NotFoundError{What: "attendance for " + day.String(), ID: employeeID}
	}
	return rec, nil
}

// Month returns the persisted statuses of a month with counts derived from
// them. NotFound only when the employee has no statuses at all.
func (s *Service) Month(ctx context.Context, employeeID string, year int, month time.Month) (MonthSummary, error) {
	if err := validateMonth(year, month); err != nil {
		return MonthSummary{}, err
	}

	exists, err := s.store.HasSummary(ctx, employeeID)
	if err != nil {
		return MonthSummary{}, err
	}
	if !exists {
		return MonthSummary{}, &NotFoundError{What: "summary", ID: employeeID}
	}

	stored, err := s.store.Days(ctx, employeeID, calendar.Month(year, month))
	if err != nil {
		return MonthSummary{}, err
	}

	days := make(map[int]DayStatus, len(stored))
	for d, st := range stored {
		days[d.Day()] = st
	}
	return MonthSummary{
		EmployeeID: employeeID,
		Year:       year,
		Month:      month,
		Days:       days,
		Counts:     CountDays(days),
	}, nil
}

// Identify recognizes a face and returns the matching profile.
func (s *Service) Identify(ctx context.Context, image []byte) (EmployeeProfile, error) {
	if len(image) == 0 {
		return EmployeeProfile{}, &ValidationError{Field: "file", Reason: "image required"}
	}
	cctx, cancel := s.withTimeout(ctx)
	employeeID, ok, err := s.faces.Recognize(cctx, image)
	cancel()
	if err != nil {
		return EmployeeProfile{}, upstream("face-verification", "recognize", err)
	}
	if !ok {
		return EmployeeProfile{}, &NotFoundError{What: "face match", ID: "image"}
	}
	return s.profile(ctx, employeeID)
}

func validateMonth(year int, month time.Month) error {
	if month < time.January || month > time.December {
		return &ValidationError{Field: "month", Value: strconv.Itoa(int(month)), Reason: "must be 1-12"}
	}
	if year < 1 || year > 9999 {
		return &ValidationError{Field: "year", Reason: "out of range"}
	}
	return nil
}
