/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:
  Exposes the attendance service via REST API. Handles HTTP request/response,
  multipart uploads, JSON serialization, and delegates to the service.

ENDPOINTS:
  Attendance:
    POST   /api/attendance/checkin                 Face-verified check-in (multipart)
    POST   /api/attendance/checkout                Close today's check-in
    POST   /api/attendance/recognize               Identify an employee by face (multipart)
    GET    /api/attendance/daily/{id}/{date}       Day status and events
    GET    /api/attendance/monthly/{id}/{y}/{m}    Stored month with counts
    GET    /api/attendance/breakdown/{id}/{y}/{m}  Recomputed month by category
    POST   /api/attendance/mark-bulk               Override statuses on dates
    POST   /api/attendance/mark-weekends           Weekend sweep for all employees
    POST   /api/attendance/mark-weekends/{id}/{y}/{m}
    POST   /api/attendance/backfill/{id}           On-demand historical backfill

  Employees (local registry):
    GET    /api/employees
    POST   /api/employees                          Register with photo (multipart)
    GET    /api/employees/{id}

  Leaves / sweeps:
    POST   /api/leaves
    GET    /api/sweeps

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"} with status by kind:
  - 400: ValidationError, malformed input
  - 404: NotFoundError
  - 409: ConflictError
  - 502: UpstreamError (directory, face service, image store)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/store/sqlite"
)

// MaxUploadBytes bounds multipart bodies.
const MaxUploadBytes = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *attendance.Service
	Store     *sqlite.Store
	Images    attendance.ImageStore
	Scheduler *WeekendScheduler

	validate *validator.Validate
	log      *logrus.Entry
}

// NewHandler creates a new handler. Store is the local registry for
// employees, leaves and sweep runs.
func NewHandler(svc *attendance.Service, store *sqlite.Store, images attendance.ImageStore, scheduler *WeekendScheduler, logger *logrus.Logger) *Handler {
	return &Handler{
		Service:   svc,
		Store:     store,
		Images:    images,
		Scheduler: scheduler,
		validate:  validator.New(),
		log:       logger.WithField("component", "api"),
	}
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CHECK-IN / CHECK-OUT
// =============================================================================

// CheckIn verifies the uploaded face and records a check-in.
// An Absent verdict is a 200 with result "Absent".
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readImage(w, r)
	if !ok {
		return
	}
	req := CheckInRequest{
		EmployeeID:  r.FormValue("employeeId"),
		CheckinTime: r.FormValue("checkinTime"),
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, "CheckIn", validationError(err))
		return
	}

	in := attendance.CheckInRequest{EmployeeID: req.EmployeeID, Image: image}
	if req.CheckinTime != "" {
		at, err := parseCheckinTime(req.CheckinTime, h.Service.Location())
		if err != nil {
			h.fail(w, r, "CheckIn", err)
			return
		}
		in.At = &at
	}

	verdict, err := h.Service.CheckIn(r.Context(), in)
	if err != nil {
		h.fail(w, r, "CheckIn", err)
		return
	}
	writeJSON(w, http.StatusOK, CheckInResponse{EmployeeID: req.EmployeeID, Result: verdict})
}

// CheckOut accepts employeeId as a form or query value, or a JSON body.
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req CheckOutRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	} else {
		req.EmployeeID = r.FormValue("employeeId")
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, "CheckOut", validationError(err))
		return
	}

	ev, err := h.Service.CheckOut(r.Context(), req.EmployeeID)
	if err != nil {
		h.fail(w, r, "CheckOut", err)
		return
	}
	writeJSON(w, http.StatusOK, CheckOutResponse{EmployeeID: req.EmployeeID, Event: toEventDTO(ev)})
}

// Recognize identifies the employee in the uploaded image.
func (h *Handler) Recognize(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readImage(w, r)
	if !ok {
		return
	}
	profile, err := h.Service.Identify(r.Context(), image)
	if err != nil {
		h.fail(w, r, "Recognize", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(profile))
}

// =============================================================================
// READS
// =============================================================================

// GetDay returns the status and events of one employee-day.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeId")
	day, err := calendar.Parse(chi.URLParam(r, "date"))
	if err != nil {
		h.fail(w, r, "GetDay", &attendance.ValidationError{Field: "date", Value: chi.URLParam(r, "date"), Reason: "use YYYY-MM-DD"})
		return
	}

	rec, err := h.Service.Day(r.Context(), employeeID, day)
	if err != nil {
		h.fail(w, r, "GetDay", err)
		return
	}

	dto := DayDTO{
		EmployeeID:  rec.EmployeeID,
		Date:        rec.Date.String(),
		Events:      []EventDTO{},
		WorkedHours: rec.WorkedHours.StringFixed(2),
	}
	if rec.Status != nil {
		dto.Status = string(rec.Status.Status)
		dto.LeaveReferenceID = rec.Status.LeaveReferenceID
	}
	if rec.Entry != nil {
		for _, ev := range rec.Entry.Events {
			dto.Events = append(dto.Events, toEventDTO(ev))
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetMonth returns the stored statuses of a month with derived counts.
func (h *Handler) GetMonth(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeId")
	year, month, err := yearMonth(r)
	if err != nil {
		h.fail(w, r, "GetMonth", err)
		return
	}

	summary, err := h.Service.Month(r.Context(), employeeID, year, month)
	if err != nil {
		h.fail(w, r, "GetMonth", err)
		return
	}

	days := make(map[string]attendance.DayStatus, len(summary.Days))
	for d, st := range summary.Days {
		days[calendar.NewDate(year, month, d).String()] = st
	}
	writeJSON(w, http.StatusOK, MonthDTO{
		EmployeeID: summary.EmployeeID,
		Year:       summary.Year,
		Month:      int(summary.Month),
		Attendance: days,
		Counts:     summary.Counts,
	})
}

// GetBreakdown recomputes the month by category without writing anything.
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeId")
	year, month, err := yearMonth(r)
	if err != nil {
		h.fail(w, r, "GetBreakdown", err)
		return
	}

	b, err := h.Service.Breakdown(r.Context(), employeeID, year, month)
	if err != nil {
		h.fail(w, r, "GetBreakdown", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// =============================================================================
// ADMIN MUTATIONS
// =============================================================================

// MarkBulk overwrites the status of every listed date.
func (h *Handler) MarkBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, "MarkBulk", validationError(err))
		return
	}

	n, err := h.Service.BulkOverride(r.Context(), attendance.OverrideRequest{
		EmployeeID:       req.EmployeeID,
		Status:           req.Status,
		LeaveReferenceID: req.LeaveReferenceID,
		Dates:            req.Dates,
	})
	if err != nil {
		h.fail(w, r, "MarkBulk", err)
		return
	}
	writeJSON(w, http.StatusOK, MarkResponse{
		EmployeeID: req.EmployeeID,
		Updated:    n,
		Message:    "Attendance updated for selected dates.",
	})
}

// MarkAllWeekends sweeps the current month, or ?year=&month= when given.
func (h *Handler) MarkAllWeekends(w http.ResponseWriter, r *http.Request) {
	today := h.Service.Today()
	year, month := today.Year(), today.Month()

	q := r.URL.Query()
	if q.Get("year") != "" || q.Get("month") != "" {
		y, m, err := parseYearMonth(q.Get("year"), q.Get("month"))
		if err != nil {
			h.fail(w, r, "MarkAllWeekends", err)
			return
		}
		year, month = y, m
	}

	report, err := h.Scheduler.Sweep(r.Context(), year, month)
	if err != nil {
		h.fail(w, r, "MarkAllWeekends", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// MarkWeekends marks one employee's weekly offs for the month.
func (h *Handler) MarkWeekends(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeId")
	year, month, err := yearMonth(r)
	if err != nil {
		h.fail(w, r, "MarkWeekends", err)
		return
	}

	n, err := h.Service.MarkWeekends(r.Context(), employeeID, year, month)
	if err != nil {
		h.fail(w, r, "MarkWeekends", err)
		return
	}
	writeJSON(w, http.StatusOK, MarkResponse{
		EmployeeID: employeeID,
		Updated:    n,
		Message:    fmt.Sprintf("Weekends marked for %04d-%02d.", year, int(month)),
	})
}

// Backfill classifies history up to today if the employee never checked in.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeId")

	n, err := h.Service.Backfill(r.Context(), employeeID)
	if err != nil {
		h.fail(w, r, "Backfill", err)
		return
	}
	writeJSON(w, http.StatusOK, MarkResponse{
		EmployeeID: employeeID,
		Updated:    n,
		Message:    "Backfill completed.",
	})
}

// =============================================================================
// EMPLOYEE REGISTRY
// =============================================================================

// ListEmployees returns all registered employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.List(r.Context())
	if err != nil {
		h.fail(w, r, "ListEmployees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "GetEmployee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// RegisterEmployee stores the profile photo and registers the employee.
// weeklyOffs may repeat or be comma separated: "SATURDAY,SUNDAY".
func (h *Handler) RegisterEmployee(w http.ResponseWriter, r *http.Request) {
	photo, ok := h.readImage(w, r)
	if !ok {
		return
	}

	var offs []string
	for _, v := range r.MultipartForm.Value["weeklyOffs"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				offs = append(offs, name)
			}
		}
	}
	req := RegisterEmployeeRequest{
		EmployeeID:  r.FormValue("employeeId"),
		Name:        r.FormValue("name"),
		JoiningDate: r.FormValue("joiningDate"),
		WeeklyOffs:  offs,
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, "RegisterEmployee", validationError(err))
		return
	}

	weeklyOffs, err := calendar.ParseWeekdays(req.WeeklyOffs)
	if err != nil {
		h.fail(w, r, "RegisterEmployee", &attendance.ValidationError{Field: "weeklyOffs", Reason: err.Error()})
		return
	}
	joining := calendar.MustParse(req.JoiningDate)

	exists, err := h.Store.Exists(r.Context(), req.EmployeeID)
	if err != nil {
		h.fail(w, r, "RegisterEmployee", err)
		return
	}
	if exists {
		h.fail(w, r, "RegisterEmployee", &attendance.ConflictError{EmployeeID: req.EmployeeID, Reason: "employee already registered"})
		return
	}

	photoURL, err := h.Images.Store(r.Context(), req.EmployeeID, attendance.ImageProfile, photo)
	if err != nil {
		if !errors.Is(err, attendance.ErrValidation) {
			err = &attendance.UpstreamError{Service: "image-store", Op: "store", Err: err}
		}
		h.fail(w, r, "RegisterEmployee", err)
		return
	}

	profile := attendance.EmployeeProfile{
		ID:          req.EmployeeID,
		Name:        req.Name,
		JoiningDate: joining,
		WeeklyOffs:  weeklyOffs,
		PhotoURL:    photoURL,
	}
	if err := h.Store.Register(r.Context(), profile); err != nil {
		h.fail(w, r, "RegisterEmployee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(profile))
}

// =============================================================================
// LEAVES / SWEEPS
// =============================================================================

// CreateLeave records a leave application in the local leave store.
func (h *Handler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, "CreateLeave", validationError(err))
		return
	}
	kind, ok := attendance.ParseLeaveKind(req.LeaveType)
	if !ok {
		h.fail(w, r, "CreateLeave", &attendance.ValidationError{Field: "leaveType", Value: req.LeaveType, Reason: "must be Leave or Comp-Off"})
		return
	}

	dates := make([]calendar.Date, len(req.Dates))
	for i, s := range req.Dates {
		dates[i] = calendar.MustParse(s)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	saved, err := h.Store.SaveLeave(r.Context(), attendance.LeaveRecord{
		ID:         req.ID,
		EmployeeID: req.EmployeeID,
		Status:     req.Status,
		Kind:       kind,
		Shift:      attendance.ShiftType(req.ShiftType),
		Dates:      dates,
	})
	if err != nil {
		h.fail(w, r, "CreateLeave", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(saved))
}

// ListSweepRuns returns weekend sweep history, optionally ?status=.
func (h *Handler) ListSweepRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListSweepRuns(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, r, "ListSweepRuns", err)
		return
	}
	if runs == nil {
		runs = []sqlite.SweepRun{}
	}
	resp := map[string]any{"runs": runs}
	if h.Scheduler != nil && h.Scheduler.Enabled {
		resp["nextCheck"] = h.Scheduler.GetNextRunTime().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, attendance.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, attendance.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, attendance.ErrUpstream):
		return http.StatusBadGateway, "Upstream service failed"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// fail writes the mapped error. Server-side failures are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, funcName string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		config.LogError(h.log.Logger, "api", funcName, r.Method+" "+r.URL.Path,
			map[string]any{"request_id": middleware.GetReqID(r.Context())}, err)
	}
	writeError(w, status, message, err)
}

// readImage parses the multipart form and returns the "file" part.
// It writes the error response itself and reports ok=false on failure.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return nil, false
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, "readImage", &attendance.ValidationError{Field: "file", Reason: "image part required"})
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file", err)
		return nil, false
	}
	return data, true
}

// validationError converts validator output into a ValidationError naming
// the first failing field.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return &attendance.ValidationError{
			Field:  fieldName(fe.Field()),
			Value:  fmt.Sprint(fe.Value()),
			Reason: "failed " + fe.Tag() + " check",
		}
	}
	return &attendance.ValidationError{Reason: err.Error()}
}

// fieldName turns a Go field name into its JSON spelling.
func fieldName(s string) string {
	if strings.HasSuffix(s, "ID") {
		s = strings.TrimSuffix(s, "ID") + "Id"
	}
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// checkinLayouts are tried in order; layouts without an offset are read in
// the service timezone.
var checkinLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}

func parseCheckinTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range checkinLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &attendance.ValidationError{Field: "checkinTime", Value: s, Reason: "use RFC 3339 or YYYY-MM-DDTHH:MM:SS"}
}

func yearMonth(r *http.Request) (int, time.Month, error) {
	return parseYearMonth(chi.URLParam(r, "year"), chi.URLParam(r, "month"))
}

func parseYearMonth(ys, ms string) (int, time.Month, error) {
	year, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, &attendance.ValidationError{Field: "year", Value: ys, Reason: "must be a number"}
	}
	month, err := strconv.Atoi(ms)
	if err != nil {
		return 0, 0, &attendance.ValidationError{Field: "month", Value: ms, Reason: "must be a number"}
	}
	return year, time.Month(month), nil
}

