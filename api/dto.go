/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the attendance model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Attendance:
    CheckInResponse, CheckOutResponse, DayDTO, EventDTO, MonthDTO
    BulkOverrideRequest, MarkResponse

  Employees:
    EmployeeDTO, RegisterEmployeeRequest

  Leaves:
    LeaveRequest, LeaveDTO

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  h.validate.Struct before touching the service; the service validates
  again (dates, status labels) because it is also called from the scheduler.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// ATTENDANCE
// =============================================================================

// CheckInRequest is the multipart form of POST /attendance/checkin.
// The image arrives separately as the "file" part.
type CheckInRequest struct {
	EmployeeID  string `validate:"required,max=64"`
	CheckinTime string `validate:"omitempty"`
}

type CheckInResponse struct {
	EmployeeID string             `json:"employeeId"`
	Result     attendance.Verdict `json:"result"`
}

type CheckOutRequest struct {
	EmployeeID string `json:"employeeId" validate:"required,max=64"`
}

type EventDTO struct {
	Type          string `json:"type"`
	Timestamp     string `json:"timestamp"`
	CheckinImgURL string `json:"checkinImgUrl,omitempty"`
}

type CheckOutResponse struct {
	EmployeeID string   `json:"employeeId"`
	Event      EventDTO `json:"event"`
}

// DayDTO is the daily view: the persisted status plus the raw events.
type DayDTO struct {
	EmployeeID       string     `json:"employeeId"`
	Date             string     `json:"date"`
	Status           string     `json:"status,omitempty"`
	LeaveReferenceID string     `json:"leaveReferenceId,omitempty"`
	Events           []EventDTO `json:"checkInOuts"`
	WorkedHours      string     `json:"workedHours"`
}

type MonthDTO struct {
	EmployeeID string                          `json:"employeeId"`
	Year       int                             `json:"year"`
	Month      int                             `json:"month"`
	Attendance map[string]attendance.DayStatus `json:"attendance"`
	attendance.Counts
}

// BulkOverrideRequest is the body of POST /attendance/mark-bulk.
type BulkOverrideRequest struct {
	EmployeeID       string   `json:"employeeId" validate:"required,max=64"`
	Status           string   `json:"status" validate:"required"`
	LeaveReferenceID string   `json:"leaveReferenceId" validate:"omitempty,max=64"`
	Dates            []string `json:"dates" validate:"required,min=1,dive,required"`
}

// MarkResponse reports how many days a mutation wrote.
type MarkResponse struct {
	EmployeeID string `json:"employeeId,omitempty"`
	Updated    int    `json:"updated"`
	Message    string `json:"message"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID          string   `json:"employeeId"`
	Name        string   `json:"name"`
	JoiningDate string   `json:"joiningDate"`
	WeeklyOffs  []string `json:"weeklyOffs"`
	PhotoURL    string   `json:"photoUrl,omitempty"`
}

// RegisterEmployeeRequest is the multipart form of POST /employees.
// The profile photo arrives as the "file" part.
type RegisterEmployeeRequest struct {
	EmployeeID  string   `validate:"required,max=64"`
	Name        string   `validate:"required,max=200"`
	JoiningDate string   `validate:"required,datetime=2006-01-02"`
	WeeklyOffs  []string `validate:"max=7,dive,required"`
}

func toEmployeeDTO(p attendance.EmployeeProfile) EmployeeDTO {
	offs := p.WeeklyOffs.Names()
	return EmployeeDTO{
		ID:          p.ID,
		Name:        p.Name,
		JoiningDate: p.JoiningDate.String(),
		WeeklyOffs:  offs,
		PhotoURL:    p.PhotoURL,
	}
}

// =============================================================================
// LEAVES
// =============================================================================

// LeaveRequest is the body of POST /leaves.
type LeaveRequest struct {
	ID         string   `json:"id" validate:"omitempty,max=64"`
	EmployeeID string   `json:"employeeId" validate:"required,max=64"`
	Status     string   `json:"status" validate:"required"`
	LeaveType  string   `json:"leaveType" validate:"required"`
	ShiftType  string   `json:"shiftType" validate:"required,oneof=FULL_DAY HALF_DAY FIRST_HALF SECOND_HALF"`
	Dates      []string `json:"dates" validate:"required,min=1,dive,datetime=2006-01-02"`
}

type LeaveDTO struct {
	ID         string   `json:"id"`
	EmployeeID string   `json:"employeeId"`
	Status     string   `json:"status"`
	LeaveType  string   `json:"leaveType"`
	ShiftType  string   `json:"shiftType"`
	Dates      []string `json:"dates"`
}

func toLeaveDTO(l attendance.LeaveRecord) LeaveDTO {
	return LeaveDTO{
		ID:         l.ID,
		EmployeeID: l.EmployeeID,
		Status:     l.Status,
		LeaveType:  string(l.Kind),
		ShiftType:  string(l.Shift),
		Dates:      dateStrings(l.Dates),
	}
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toEventDTO(ev attendance.Event) EventDTO {
	return EventDTO{
		Type:          string(ev.Kind),
		Timestamp:     ev.At.Format(time.RFC3339),
		CheckinImgURL: ev.EvidenceURL,
	}
}

func dateStrings(ds []calendar.Date) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}
