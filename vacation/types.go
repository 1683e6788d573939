// Package vacation implements the vacation balance ledger: leave-request
// accounting (submit, approve, reject) and the periodic maintenance jobs
// (monthly credit, year transition, previous-year expiration).
package vacation

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is the subset of the employee record the ledger needs.
// Version is bumped by every successful UpdateBalance.
type Employee struct {
	ID        string
	Name      string
	Email     string
	HireDate  generic.Date
	Active    bool
	Balance   Balance
	Version   int64
	CreatedAt time.Time
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type LeaveType string

const (
	LeaveVacation LeaveType = "vacation"
	LeaveSick     LeaveType = "sick"
	LeaveOther    LeaveType = "other"
)

func (t LeaveType) Valid() bool {
	switch t {
	case LeaveVacation, LeaveSick, LeaveOther:
		return true
	}
	return false
}

type DayType string

const (
	DayFull DayType = "full"
	DayHalf DayType = "half"
)

func (t DayType) Valid() bool { return t == DayFull || t == DayHalf }

type HalfDayPeriod string

const (
	PeriodNone      HalfDayPeriod = ""
	PeriodMorning   HalfDayPeriod = "morning"
	PeriodAfternoon HalfDayPeriod = "afternoon"
)

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// LeaveRequest moves pending -> approved or pending -> rejected, once.
type LeaveRequest struct {
	ID              string
	EmployeeID      string
	StartDate       generic.Date
	EndDate         generic.Date // inclusive
	Type            LeaveType
	DayType         DayType
	HalfDayPeriod   HalfDayPeriod // only with DayHalf
	Reason          string
	Status          RequestStatus
	RejectionReason string
	DecidedBy       string
	DecidedAt       *time.Time
	CreatedAt       time.Time
}

// NewRequest is the input to Service.Submit.
type NewRequest struct {
	EmployeeID    string
	StartDate     generic.Date
	EndDate       generic.Date
	Type          LeaveType
	DayType       DayType
	HalfDayPeriod HalfDayPeriod
	Reason        string
}

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	EmployeeID string
	Status     RequestStatus
}

func (f RequestFilter) Matches(r LeaveRequest) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// DaysToDeduct is business days in [start, end], halved for half-day requests.
func DaysToDeduct(cal generic.HolidayCalendar, start, end generic.Date, dayType DayType) decimal.Decimal {
	days := decimal.NewFromInt(int64(cal.CountBusinessDays(start, end)))
	if dayType == DayHalf {
		return days.Mul(generic.Half)
	}
	return days
}
