/*
balance.go - The employee vacation balance and its accounting rules

PURPOSE:
  Holds the four counters every other component reads or mutates, plus the
  guards that make the periodic jobs run once per period.

  previous_remaining = PreviousYearVacationDays - PreviousYearUsedDays
  current_remaining  = CurrentYearVacationDays  - CurrentYearUsedDays
  total_available    = previous_remaining + current_remaining

INVARIANT:
  CurrentYearUsedDays  <= CurrentYearVacationDays
  PreviousYearUsedDays <= PreviousYearVacationDays

  Checked after every mutation. A violation rejects the operation; values
  are never clamped.

DEDUCTION PRECEDENCE:
  Previous-year days are consumed first, the remainder spills into the
  current year. See Deduct.

SEE ALSO:
  - ledger.go: Compare-and-swap persistence of a new Balance
  - maintenance.go: Credit, transition and expiration rules
*/
package vacation

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
)

type Balance struct {
	CurrentYearVacationDays  decimal.Decimal
	CurrentYearUsedDays      decimal.Decimal
	PreviousYearVacationDays decimal.Decimal
	PreviousYearUsedDays     decimal.Decimal

	// LastVacationCreditDate prevents a second monthly credit in one month.
	LastVacationCreditDate *generic.Date
	// LastTransitionYear and LastExpirationYear hold the calendar year of the
	// last applied run; 0 means never.
	LastTransitionYear int
	LastExpirationYear int
}

func (b Balance) PreviousRemaining() decimal.Decimal {
	return b.PreviousYearVacationDays.Sub(b.PreviousYearUsedDays)
}

func (b Balance) CurrentRemaining() decimal.Decimal {
	return b.CurrentYearVacationDays.Sub(b.CurrentYearUsedDays)
}

func (b Balance) TotalAvailable() decimal.Decimal {
	return b.PreviousRemaining().Add(b.CurrentRemaining())
}

// =============================================================================
// INVARIANT
// =============================================================================

// LedgerInvariantError names the counter pair that went out of bounds.
type LedgerInvariantError struct {
	Year      string // "current" or "previous"
	Used      decimal.Decimal
	Allowance decimal.Decimal
}

func (e *LedgerInvariantError) Error() string {
	return fmt.Sprintf("%s year used days %s exceed allowance %s", e.Year, e.Used, e.Allowance)
}

func (e *LedgerInvariantError) Unwrap() error { return generic.ErrLedgerInvariant }

// Validate reports the first violated bound, if any.
func (b Balance) Validate() error {
	if b.CurrentYearUsedDays.GreaterThan(b.CurrentYearVacationDays) {
		return &LedgerInvariantError{Year: "current", Used: b.CurrentYearUsedDays, Allowance: b.CurrentYearVacationDays}
	}
	if b.PreviousYearUsedDays.GreaterThan(b.PreviousYearVacationDays) {
		return &LedgerInvariantError{Year: "previous", Used: b.PreviousYearUsedDays, Allowance: b.PreviousYearVacationDays}
	}
	return nil
}

// ValidateOpening checks a balance supplied from outside the ledger: every
// counter must be non-negative on top of the usual bounds.
func (b Balance) ValidateOpening() error {
	counters := []struct {
		name string
		v    decimal.Decimal
	}{
		{"current_year_vacation_days", b.CurrentYearVacationDays},
		{"current_year_used_days", b.CurrentYearUsedDays},
		{"previous_year_vacation_days", b.PreviousYearVacationDays},
		{"previous_year_used_days", b.PreviousYearUsedDays},
	}
	for _, c := range counters {
		if c.v.IsNegative() {
			return fmt.Errorf("%s must not be negative, got %s", c.name, c.v)
		}
	}
	return b.Validate()
}

// =============================================================================
// DEDUCTION
// =============================================================================

// Deduction is how a request's days were split between the two allowances.
// FromPreviousYear + FromCurrentYear always equals the deducted amount.
type Deduction struct {
	FromPreviousYear decimal.Decimal
	FromCurrentYear  decimal.Decimal
}

// Deduct consumes days, previous year first. The result is not validated.
func (b Balance) Deduct(days decimal.Decimal) (Balance, Deduction) {
	prev := b.PreviousRemaining()

	switch {
	case prev.GreaterThanOrEqual(days):
		b.PreviousYearUsedDays = b.PreviousYearUsedDays.Add(days)
		return b, Deduction{FromPreviousYear: days, FromCurrentYear: decimal.Zero}

	case prev.IsPositive():
		spill := days.Sub(prev)
		b.PreviousYearUsedDays = b.PreviousYearVacationDays
		b.CurrentYearUsedDays = b.CurrentYearUsedDays.Add(spill)
		return b, Deduction{FromPreviousYear: prev, FromCurrentYear: spill}

	default:
		b.CurrentYearUsedDays = b.CurrentYearUsedDays.Add(days)
		return b, Deduction{FromPreviousYear: decimal.Zero, FromCurrentYear: days}
	}
}

// =============================================================================
// VIEW
// =============================================================================

// BalanceView is the read model returned to callers.
type BalanceView struct {
	EmployeeID               string
	CurrentYearVacationDays  decimal.Decimal
	CurrentYearUsedDays      decimal.Decimal
	CurrentYearRemaining     decimal.Decimal
	PreviousYearVacationDays decimal.Decimal
	PreviousYearUsedDays     decimal.Decimal
	PreviousYearRemaining    decimal.Decimal
	TotalAvailable           decimal.Decimal
	LastVacationCreditDate   *generic.Date
}

func (b Balance) View(employeeID string) BalanceView {
	return BalanceView{
		EmployeeID:               employeeID,
		CurrentYearVacationDays:  b.CurrentYearVacationDays,
		CurrentYearUsedDays:      b.CurrentYearUsedDays,
		CurrentYearRemaining:     b.CurrentRemaining(),
		PreviousYearVacationDays: b.PreviousYearVacationDays,
		PreviousYearUsedDays:     b.PreviousYearUsedDays,
		PreviousYearRemaining:    b.PreviousRemaining(),
		TotalAvailable:           b.TotalAvailable(),
		LastVacationCreditDate:   b.LastVacationCreditDate,
	}
}
