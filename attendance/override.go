package attendance

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/warp/attendance-engine/calendar"
)

// OverrideRequest sets one status on explicit dates.
type OverrideRequest struct {
	EmployeeID       string
	Status           string
	LeaveReferenceID string
	Dates            []string // YYYY-MM-DD
}

// BulkOverride writes the status onto every date, replacing whatever was
// there (including Present). There is no chronology or conflict check; it
// is the administrative escape hatch.
//
// All dates are parsed before anything is written: one malformed date or an
// unknown status fails the whole request with a ValidationError.
func (s *Service) BulkOverride(ctx context.Context, req OverrideRequest) (int, error) {
	if req.EmployeeID == "" {
		return 0, &ValidationError{Field: "employeeId", Reason: "required"}
	}
	status, ok := ParseStatus(req.Status)
	if !ok {
		return 0, &ValidationError{Field: "status", Value: req.Status, Reason: "must be Present, Absent, Leave, LOP or Weekly Off"}
	}
	if len(req.Dates) == 0 {
		return 0, &ValidationError{Field: "dates", Reason: "at least one date required"}
	}

	days := make(map[calendar.Date]DayStatus, len(req.Dates))
	for _, raw := range req.Dates {
		d, err := calendar.Parse(raw)
		if err != nil {
			return 0, &ValidationError{Field: "dates", Value: raw, Reason: "use YYYY-MM-DD"}
		}
		days[d] = DayStatus{Status: status, LeaveReferenceID: req.LeaveReferenceID}
	}

	unlock := s.locks.Lock(req.EmployeeID)
	defer unlock()

	err := s.store.WithTx(ctx, func(tx Store) error {
		return tx.PutDays(ctx, req.EmployeeID, days)
	})
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{
		"employee_id": req.EmployeeID,
		"status":      string(status),
		"days":        len(days),
	}).Info("bulk override applied")
	return len(days), nil
}
