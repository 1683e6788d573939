/*
errors.go - Centralized error types for the vacation ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context; the API layer
  maps them to HTTP status codes with errors.Is.

ERROR CATEGORIES:
  1. Accounting errors - Balance and lifecycle violations
  2. Validation errors - Malformed input rejected before any write
  3. Store errors      - Persistence failures and optimistic-lock conflicts

USAGE:
  if errors.Is(err, generic.ErrInsufficientBalance) {
      var ibe *generic.InsufficientBalanceError
      errors.As(err, &ibe)
      ...
  }

SEE ALSO:
  - vacation/service.go: Returns these errors
  - api/errors.go: HTTP mapping
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a submission asks for more days
	// than previous-year plus current-year remaining.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidStateTransition is returned when approving or rejecting a
	// request that is no longer pending.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrInvalidDateRange is returned for end-before-start or unparseable dates.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidRequest is returned for malformed input other than dates.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrLedgerInvariant is returned when a mutation would leave used days
	// above the matching allowance.
	ErrLedgerInvariant = errors.New("ledger invariant violated")

	// ErrPersistence wraps any failure of the underlying store.
	ErrPersistence = errors.New("persistence failure")

	// ErrConcurrentModification is returned when a compare-and-swap on the
	// employee version loses the race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrEmployeeNotFound = errors.New("employee not found")
	ErrRequestNotFound  = errors.New("leave request not found")

	// ErrUnknownAction is returned for a maintenance action tag outside the
	// three known jobs.
	ErrUnknownAction = errors.New("unknown maintenance action")

	// ErrJobLocked is returned when another runner holds the job lock.
	ErrJobLocked = errors.New("maintenance job already running")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID string
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// StateTransitionError names the request and the status it was found in.
type StateTransitionError struct {
	RequestID string
	From      string
	To        string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("request %s: cannot move from %s to %s", e.RequestID, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// PersistenceError records which store operation failed.
type PersistenceError struct {
	Op  string
	Err error
}

// Persist wraps err as a PersistenceError unless it is nil or already one of
// the domain sentinels the store reports on purpose.
func Persist(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		IsNotFound(err) || IsClientError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrUnknownAction)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}

// IsConflict returns true if the error reflects the current state of the
// resource rather than the input.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrJobLocked)
}
