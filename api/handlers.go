/*
handlers.go - HTTP API handlers for the vacation ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization and validation, and delegates to vacation.Service and
  vacation.Runner.

ENDPOINTS:
  Employees:
    GET    /api/employees                 List all employees
    POST   /api/employees                 Create employee (opening balance)
    GET    /api/employees/{id}            Get employee with balance
    GET    /api/employees/{id}/balance    Balance view
    GET    /api/employees/{id}/history    History entries (?year=)
    GET    /api/employees/{id}/requests   Requests of the employee
    POST   /api/employees/{id}/requests   Submit a leave request

  Requests:
    GET    /api/requests                  List requests (?status=)
    GET    /api/requests/{id}             Get request
    POST   /api/requests/{id}/approve     Approve (deducts the ledger)
    POST   /api/requests/{id}/reject      Reject (no ledger effect)

  Maintenance:
    POST   /api/maintenance               {action} -> {success} | {error}

  Calendar and export: see holidays.go and export.go.

ERROR HANDLING:
  Errors are returned as JSON with the status from statusFor (errors.go):
  - 400: Validation errors, invalid dates, unknown action
  - 404: Employee or request not found
  - 409: Request already decided, job already running
  - 422: Insufficient balance, ledger invariant
  - 500: Store failures

SECURITY NOTE:
  No authentication or authorization here. The deployment puts this
  service behind the application's authenticated gateway.

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
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/holiday"
	"github.com/warp/leave-ledger/vacation"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc      *vacation.Service
	runner   *vacation.Runner
	calendar *holiday.Calendar
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a new handler.
func NewHandler(svc *vacation.Service, runner *vacation.Runner, calendar *holiday.Calendar, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.L()
	}
	if calendar == nil {
		calendar = holiday.Default()
	}
	return &Handler{
		svc:      svc,
		runner:   runner,
		calendar: calendar,
		validate: newValidator(),
		logger:   logger.Named("api"),
		now:      time.Now,
	}
}

// newValidator reports field names as their json tags.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Day quantities are validated by value, e.g. validate:"gte=0".
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, _ := f.Interface().(decimal.Decimal).Float64()
		return d
	}, decimal.Decimal{})
	return v
}

// decode reads a JSON body into dst and validates it. An empty body is
// allowed and validated as the zero value.
func (h *Handler) decode(r *http.Request, dst any) error {
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: body: %v", generic.ErrInvalidRequest, err)
		}
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.svc.ListEmployees(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
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
	emp, err := h.svc.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee creates a new employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	emp := vacation.Employee{
		ID:     req.ID,
		Name:   req.Name,
		Email:  req.Email,
		Active: req.Active == nil || *req.Active,
		Balance: vacation.Balance{
			CurrentYearVacationDays:  req.CurrentYearVacationDays,
			CurrentYearUsedDays:      req.CurrentYearUsedDays,
			PreviousYearVacationDays: req.PreviousYearVacationDays,
			PreviousYearUsedDays:     req.PreviousYearUsedDays,
		},
	}
	if req.HireDate != "" {
		d, err := generic.ParseDate(req.HireDate)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		emp.HireDate = d
	}

	created, err := h.svc.CreateEmployee(r.Context(), emp)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*created))
}

// GetBalance returns the balance view of an employee.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*view))
}

// GetEmployeeHistory returns the employee's history entries.
// GET /api/employees/{id}/history?year=2024&limit=50
func (h *Handler) GetEmployeeHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.GetEmployee(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	filter, err := historyFilter(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	filter.EmployeeID = id

	entries, err := h.svc.History(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]HistoryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toHistoryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func historyFilter(r *http.Request) (generic.HistoryFilter, error) {
	var f generic.HistoryFilter
	q := r.URL.Query()
	if s := q.Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			return f, fmt.Errorf("%w: year %q", generic.ErrInvalidRequest, s)
		}
		f.Year = y
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%w: limit %q", generic.ErrInvalidRequest, s)
		}
		f.Limit = n
	}
	for _, a := range q["action"] {
		action := generic.HistoryAction(a)
		if !action.Valid() {
			return f, fmt.Errorf("%w: action %q", generic.ErrInvalidRequest, a)
		}
		f.Actions = append(f.Actions, action)
	}
	return f, nil
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// SubmitRequest creates a pending leave request.
// POST /api/employees/{id}/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequestDTO
	if err := h.decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	start, err := generic.ParseDate(body.StartDate)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	end, err := generic.ParseDate(body.EndDate)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	in := vacation.NewRequest{
		EmployeeID:    chi.URLParam(r, "id"),
		StartDate:     start,
		EndDate:       end,
		Type:          vacation.LeaveType(body.Type),
		DayType:       vacation.DayType(body.DayType),
		HalfDayPeriod: vacation.HalfDayPeriod(body.HalfDayPeriod),
		Reason:        body.Reason,
	}
	if in.Type == "" {
		in.Type = vacation.LeaveVacation
	}
	if in.DayType == "" {
		in.DayType = vacation.DayFull
	}

	req, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toRequestDTO(*req))
}

// ListEmployeeRequests returns the requests of one employee.
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.GetEmployee(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.listRequests(w, r, vacation.RequestFilter{EmployeeID: id})
}

// ListRequests returns requests, optionally filtered by status.
// GET /api/requests?status=pending
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	h.listRequests(w, r, vacation.RequestFilter{EmployeeID: r.URL.Query().Get("employee_id")})
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request, filter vacation.RequestFilter) {
	if s := r.URL.Query().Get("status"); s != "" {
		switch st := vacation.RequestStatus(s); st {
		case vacation.StatusPending, vacation.StatusApproved, vacation.StatusRejected:
			filter.Status = st
		default:
			writeError(w, http.StatusBadRequest, "Invalid status (pending, approved, rejected)", nil)
			return
		}
	}

	reqs, err := h.svc.ListRequests(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]RequestDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = h.toRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRequest returns a single request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toRequestDTO(*req))
}

// ApproveRequest approves a pending request and deducts the ledger.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var body DecisionRequest
	if err := h.decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if body.DeciderID == "" {
		body.DeciderID = "admin"
	}

	req, err := h.svc.Approve(r.Context(), chi.URLParam(r, "id"), body.DeciderID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toRequestDTO(*req))
}

// RejectRequest rejects a pending request. The ledger is untouched.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var body DecisionRequest
	if err := h.decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if body.DeciderID == "" {
		body.DeciderID = "admin"
	}

	req, err := h.svc.Reject(r.Context(), chi.URLParam(r, "id"), body.DeciderID, body.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toRequestDTO(*req))
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// RunMaintenance is the job trigger entry point.
// POST /api/maintenance {"action": "monthly-credit"}
func (h *Handler) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	var body MaintenanceRequest
	if err := h.decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	action, err := vacation.ParseAction(body.Action)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	at := h.now()
	if body.Date != "" {
		d, err := generic.ParseDate(body.Date)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		at = d.Time()
	}

	report, err := h.runner.RunAt(r.Context(), action, at)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MaintenanceResponse{Success: true, Report: &report})
}
