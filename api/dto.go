/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the ledger
  types from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers

VALIDATION:
  Request types carry go-playground/validator tags, checked by
  Handler.decode before any domain call. Dates stay strings here and are
  parsed by generic.ParseDate so a bad date maps to invalid_date_range.
  Decimal fields accept JSON numbers or strings; responses emit strings.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/vacation"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email,omitempty"`
	HireDate  generic.Date `json:"hire_date"`
	Active    bool         `json:"active"`
	Balance   BalanceDTO   `json:"balance"`
	Version   int64        `json:"version"`
	CreatedAt string       `json:"created_at,omitempty"`
}

// CreateEmployeeRequest is the request to create an employee with an
// optional opening balance.
type CreateEmployeeRequest struct {
	ID       string `json:"id" validate:"omitempty,max=64"`
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	HireDate string `json:"hire_date"`
	Active   *bool  `json:"active"`

	CurrentYearVacationDays  decimal.Decimal `json:"current_year_vacation_days" validate:"gte=0"`
	CurrentYearUsedDays      decimal.Decimal `json:"current_year_used_days" validate:"gte=0"`
	PreviousYearVacationDays decimal.Decimal `json:"previous_year_vacation_days" validate:"gte=0"`
	PreviousYearUsedDays     decimal.Decimal `json:"previous_year_used_days" validate:"gte=0"`
}

func toEmployeeDTO(e vacation.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        e.ID,
		Name:      e.Name,
		Email:     e.Email,
		HireDate:  e.HireDate,
		Active:    e.Active,
		Balance:   toBalanceDTO(e.Balance.View(e.ID)),
		Version:   e.Version,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// BALANCE
// =============================================================================

// BalanceDTO represents balance information.
type BalanceDTO struct {
	EmployeeID               string          `json:"employee_id"`
	CurrentYearVacationDays  decimal.Decimal `json:"current_year_vacation_days"`
	CurrentYearUsedDays      decimal.Decimal `json:"current_year_used_days"`
	CurrentYearRemaining     decimal.Decimal `json:"current_year_remaining"`
	PreviousYearVacationDays decimal.Decimal `json:"previous_year_vacation_days"`
	PreviousYearUsedDays     decimal.Decimal `json:"previous_year_used_days"`
	PreviousYearRemaining    decimal.Decimal `json:"previous_year_remaining"`
	TotalAvailable           decimal.Decimal `json:"total_available"`
	LastVacationCreditDate   *generic.Date   `json:"last_vacation_credit_date,omitempty"`
}

func toBalanceDTO(v vacation.BalanceView) BalanceDTO {
	return BalanceDTO{
		EmployeeID:               v.EmployeeID,
		CurrentYearVacationDays:  v.CurrentYearVacationDays,
		CurrentYearUsedDays:      v.CurrentYearUsedDays,
		CurrentYearRemaining:     v.CurrentYearRemaining,
		PreviousYearVacationDays: v.PreviousYearVacationDays,
		PreviousYearUsedDays:     v.PreviousYearUsedDays,
		PreviousYearRemaining:    v.PreviousYearRemaining,
		TotalAvailable:           v.TotalAvailable,
		LastVacationCreditDate:   v.LastVacationCreditDate,
	}
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// SubmitRequestDTO is the body of POST /api/employees/{id}/requests.
type SubmitRequestDTO struct {
	StartDate     string `json:"start_date" validate:"required"`
	EndDate       string `json:"end_date" validate:"required"`
	Type          string `json:"type" validate:"omitempty,oneof=vacation sick other"`
	DayType       string `json:"day_type" validate:"omitempty,oneof=full half"`
	HalfDayPeriod string `json:"half_day_period" validate:"required_if=DayType half,omitempty,oneof=morning afternoon"`
	Reason        string `json:"reason" validate:"max=1000"`
}

// DecisionRequest is the body of approve and reject calls.
type DecisionRequest struct {
	DeciderID string `json:"decider_id" validate:"omitempty,max=64"`
	Reason    string `json:"reason" validate:"max=1000"`
}

// RequestDTO represents a leave request.
type RequestDTO struct {
	ID              string          `json:"id"`
	EmployeeID      string          `json:"employee_id"`
	StartDate       generic.Date    `json:"start_date"`
	EndDate         generic.Date    `json:"end_date"`
	Type            string          `json:"type"`
	DayType         string          `json:"day_type"`
	HalfDayPeriod   string          `json:"half_day_period,omitempty"`
	Days            decimal.Decimal `json:"days"`
	Reason          string          `json:"reason,omitempty"`
	Status          string          `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	DecidedBy       string          `json:"decided_by,omitempty"`
	DecidedAt       string          `json:"decided_at,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

func (h *Handler) toRequestDTO(r vacation.LeaveRequest) RequestDTO {
	dto := RequestDTO{
		ID:              r.ID,
		EmployeeID:      r.EmployeeID,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		Type:            string(r.Type),
		DayType:         string(r.DayType),
		HalfDayPeriod:   string(r.HalfDayPeriod),
		Days:            h.svc.DaysToDeduct(r.StartDate, r.EndDate, r.DayType),
		Reason:          r.Reason,
		Status:          string(r.Status),
		RejectionReason: r.RejectionReason,
		DecidedBy:       r.DecidedBy,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
	if r.DecidedAt != nil {
		dto.DecidedAt = r.DecidedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// HISTORY
// =============================================================================

// HistoryDTO represents one history entry.
type HistoryDTO struct {
	ID           string            `json:"id"`
	EmployeeID   string            `json:"employee_id"`
	Year         int               `json:"year"`
	Action       string            `json:"action"`
	DaysAffected decimal.Decimal   `json:"days_affected"`
	Details      map[string]string `json:"details,omitempty"`
	CreatedAt    string            `json:"created_at"`
}

func toHistoryDTO(e generic.HistoryEntry) HistoryDTO {
	return HistoryDTO{
		ID:           e.ID,
		EmployeeID:   e.EmployeeID,
		Year:         e.Year,
		Action:       string(e.Action),
		DaysAffected: e.DaysAffected,
		Details:      e.Details,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// MaintenanceRequest is the body of POST /api/maintenance. Date optionally
// runs the action as of another day.
type MaintenanceRequest struct {
	Action string `json:"action" validate:"required"`
	Date   string `json:"date"`
}

// MaintenanceResponse is {success: true} plus the run report.
type MaintenanceResponse struct {
	Success bool             `json:"success"`
	Report  *vacation.Report `json:"report,omitempty"`
}

// =============================================================================
// CALENDAR
// =============================================================================

// BusinessDaysDTO is the response of GET /api/business-days.
type BusinessDaysDTO struct {
	Start        generic.Date `json:"start"`
	End          generic.Date `json:"end"`
	BusinessDays int          `json:"business_days"`
}
