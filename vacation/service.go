/*
service.go - Leave-request accounting

PURPOSE:
  Gates request creation on available balance and applies the ledger
  deduction when a request is approved.

OPERATIONS:
  Submit:  validate -> days_to_deduct -> balance check -> insert pending
           No ledger mutation.
  Approve: pending only -> claim status -> recompute days_to_deduct ->
           deduct (previous year first) -> request_deduction history entry
  Reject:  pending only -> record reason. No ledger effect, no history.

ATOMICITY:
  With a TxRepository, Approve runs in one transaction: a ledger invariant
  violation or a store failure leaves the request pending and the balance
  untouched. Without one, the status is claimed before the balance moves so
  that two concurrent approvals can never both deduct.

APPROVAL CHECKS:
  Approval trusts the submission-time balance check. It does not re-check
  total_available, but a deduction that would push used days over an
  allowance still fails with ErrLedgerInvariant.

SEE ALSO:
  - balance.go: Deduct, Validate
  - ledger.go: Compare-and-swap write
*/
package vacation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
	"go.uber.org/zap"
)

// Service exposes Submit/Approve/Reject plus the read side.
type Service struct {
	repo     Repository
	calendar generic.HolidayCalendar
	ledger   *Ledger
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMaxRetries(n int) Option {
	return func(s *Service) { s.ledger.MaxRetries = n }
}

func NewService(repo Repository, calendar generic.HolidayCalendar, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		calendar: calendar,
		logger:   zap.L().Named("vacation.service"),
		now:      time.Now,
	}
	s.ledger = NewLedger(nil)
	for _, opt := range opts {
		opt(s)
	}
	s.ledger.logger = s.logger.Named("ledger")
	s.ledger.Now = s.now
	return s
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// CreateEmployee stores a new employee with an optional opening balance.
// This is the only place balance values are set without a history entry.
func (s *Service) CreateEmployee(ctx context.Context, emp Employee) (*Employee, error) {
	if emp.Name == "" {
		return nil, fmt.Errorf("%w: name is required", generic.ErrInvalidRequest)
	}
	if err := emp.Balance.ValidateOpening(); err != nil {
		return nil, fmt.Errorf("%w: opening balance: %v", generic.ErrInvalidRequest, err)
	}
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	if emp.HireDate.IsZero() {
		emp.HireDate = generic.DateOf(s.now())
	}
	// The opening balance already belongs to this year.
	if emp.Balance.LastTransitionYear == 0 {
		emp.Balance.LastTransitionYear = s.now().Year()
	}
	emp.Version = 1
	emp.CreatedAt = s.now().UTC()

	if err := s.repo.InsertEmployee(ctx, emp); err != nil {
		s.logger.Error("insert employee failed", zap.String("employee_id", emp.ID), zap.Error(err))
		return nil, generic.Persist("employees.insert", err)
	}
	return &emp, nil
}

func (s *Service) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	emp, err := s.repo.GetEmployee(ctx, id)
	return emp, generic.Persist("employees.get", err)
}

func (s *Service) ListEmployees(ctx context.Context) ([]Employee, error) {
	emps, err := s.repo.ListEmployees(ctx)
	return emps, generic.Persist("employees.list", err)
}

func (s *Service) GetBalance(ctx context.Context, employeeID string) (*BalanceView, error) {
	emp, err := s.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	v := emp.Balance.View(emp.ID)
	return &v, nil
}

// =============================================================================
// SUBMIT
// =============================================================================

// DaysToDeduct is the request's cost under the service's calendar.
func (s *Service) DaysToDeduct(start, end generic.Date, dayType DayType) decimal.Decimal {
	return DaysToDeduct(s.calendar, start, end, dayType)
}

// Submit validates and records a pending request. Nothing is written when
// the balance is insufficient.
func (s *Service) Submit(ctx context.Context, in NewRequest) (*LeaveRequest, error) {
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", generic.ErrInvalidDateRange)
	}
	if _, err := generic.NewPeriod(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	if err := validateNewRequest(in); err != nil {
		return nil, err
	}

	days := s.DaysToDeduct(in.StartDate, in.EndDate, in.DayType)

	emp, err := s.repo.GetEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, generic.Persist("employees.get", err)
	}

	available := emp.Balance.TotalAvailable()
	if days.GreaterThan(available) {
		s.logger.Info("submission rejected: insufficient balance",
			zap.String("employee_id", emp.ID),
			zap.String("requested", days.String()),
			zap.String("available", available.String()))
		return nil, &generic.InsufficientBalanceError{
			EmployeeID: emp.ID,
			Available:  available,
			Requested:  days,
		}
	}

	period := in.HalfDayPeriod
	if in.DayType == DayFull {
		period = PeriodNone
	}
	req := LeaveRequest{
		ID:            uuid.NewString(),
		EmployeeID:    emp.ID,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Type:          in.Type,
		DayType:       in.DayType,
		HalfDayPeriod: period,
		Reason:        in.Reason,
		Status:        StatusPending,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.InsertRequest(ctx, req); err != nil {
		s.logger.Error("insert request failed", zap.String("employee_id", emp.ID), zap.Error(err))
		return nil, generic.Persist("requests.insert", err)
	}

	s.logger.Info("leave request submitted",
		zap.String("request_id", req.ID),
		zap.String("employee_id", emp.ID),
		zap.String("days", days.String()))
	return &req, nil
}

func validateNewRequest(in NewRequest) error {
	if in.EmployeeID == "" {
		return fmt.Errorf("%w: employee id is required", generic.ErrInvalidRequest)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown leave type %q", generic.ErrInvalidRequest, in.Type)
	}
	if !in.DayType.Valid() {
		return fmt.Errorf("%w: unknown day type %q", generic.ErrInvalidRequest, in.DayType)
	}
	if in.DayType == DayHalf && in.HalfDayPeriod != PeriodMorning && in.HalfDayPeriod != PeriodAfternoon {
		return fmt.Errorf("%w: half day requires morning or afternoon", generic.ErrInvalidRequest)
	}
	return nil
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

// Approve deducts the request's days and marks it approved.
func (s *Service) Approve(ctx context.Context, requestID, approverID string) (*LeaveRequest, error) {
	var approved LeaveRequest
	var entry *generic.HistoryEntry

	err := inTx(ctx, s.repo, func(repo Repository) error {
		req, err := repo.GetRequest(ctx, requestID)
		if err != nil {
			return generic.Persist("requests.get", err)
		}
		if req.Status != StatusPending {
			return &generic.StateTransitionError{RequestID: req.ID, From: string(req.Status), To: string(StatusApproved)}
		}

		now := s.now().UTC()
		approved = *req
		approved.Status = StatusApproved
		approved.DecidedBy = approverID
		approved.DecidedAt = &now
		if err := repo.DecideRequest(ctx, approved); err != nil {
			return generic.Persist("requests.decide", err)
		}

		days := s.DaysToDeduct(req.StartDate, req.EndDate, req.DayType)
		entry, err = s.ledger.Apply(ctx, repo, req.EmployeeID, func(emp Employee) (Balance, *generic.HistoryEntry, error) {
			next, split := emp.Balance.Deduct(days)
			return next, &generic.HistoryEntry{
				Year:         req.StartDate.Year(),
				Action:       generic.HistoryRequestDeduction,
				DaysAffected: days,
				Details: map[string]string{
					"request_id":         req.ID,
					"start_date":         req.StartDate.String(),
					"end_date":           req.EndDate.String(),
					"day_type":           string(req.DayType),
					"leave_type":         string(req.Type),
					"from_previous_year": split.FromPreviousYear.String(),
					"from_current_year":  split.FromCurrentYear.String(),
					"approved_by":        approverID,
				},
			}, nil
		})
		if err != nil && !isTx(s.repo) {
			s.logger.Error("request approved but ledger not updated",
				zap.String("request_id", req.ID),
				zap.String("employee_id", req.EmployeeID),
				zap.Error(err))
		}
		return err
	})
	if err != nil {
		s.logFailure("approve", requestID, err)
		return nil, err
	}

	s.logger.Info("leave request approved",
		zap.String("request_id", approved.ID),
		zap.String("employee_id", approved.EmployeeID),
		zap.String("days", entry.DaysAffected.String()),
		zap.String("from_previous_year", entry.Details["from_previous_year"]),
		zap.String("from_current_year", entry.Details["from_current_year"]))
	return &approved, nil
}

// Reject records the reason. The ledger is not touched.
func (s *Service) Reject(ctx context.Context, requestID, deciderID, reason string) (*LeaveRequest, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, generic.Persist("requests.get", err)
	}
	if req.Status != StatusPending {
		return nil, &generic.StateTransitionError{RequestID: req.ID, From: string(req.Status), To: string(StatusRejected)}
	}

	now := s.now().UTC()
	rejected := *req
	rejected.Status = StatusRejected
	rejected.RejectionReason = reason
	rejected.DecidedBy = deciderID
	rejected.DecidedAt = &now

	if err := s.repo.DecideRequest(ctx, rejected); err != nil {
		s.logFailure("reject", requestID, err)
		return nil, generic.Persist("requests.decide", err)
	}

	s.logger.Info("leave request rejected",
		zap.String("request_id", rejected.ID),
		zap.String("employee_id", rejected.EmployeeID))
	return &rejected, nil
}

func (s *Service) GetRequest(ctx context.Context, id string) (*LeaveRequest, error) {
	req, err := s.repo.GetRequest(ctx, id)
	return req, generic.Persist("requests.get", err)
}

func (s *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error) {
	reqs, err := s.repo.ListRequests(ctx, filter)
	return reqs, generic.Persist("requests.list", err)
}

func (s *Service) History(ctx context.Context, filter generic.HistoryFilter) ([]generic.HistoryEntry, error) {
	entries, err := s.repo.QueryHistory(ctx, filter)
	return entries, generic.Persist("history.query", err)
}

// =============================================================================
// HELPERS
// =============================================================================

func isTx(repo Repository) bool {
	_, ok := repo.(TxRepository)
	return ok
}

func (s *Service) logFailure(op, requestID string, err error) {
	if errors.Is(err, generic.ErrPersistence) {
		s.logger.Error(op+" failed", zap.String("request_id", requestID), zap.Error(err))
		return
	}
	s.logger.Info(op+" refused", zap.String("request_id", requestID), zap.Error(err))
}
