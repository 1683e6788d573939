/*
maintenance.go - Periodic ledger jobs

PURPOSE:
  The three date-driven procedures that mutate every eligible employee:

  monthly-credit        active employees, once per calendar month:
                        CurrentYearVacationDays += credit (2.5 by default)
  year-transition       every employee, once per calendar year:
                        current remaining becomes the previous-year
                        allowance, current year restarts at zero
  expire-previous-year  employees with a previous-year allowance, once per
                        calendar year: unused previous-year days are dropped

DESIGN:
  Each rule is a pure function of (Employee, today) returning the next
  Balance and the history entry to append, or a nil entry for "nothing to
  do". The Runner in runner.go fetches, maps and persists.

  Actions are a closed enum; Policy.Job switches over it exhaustively.

IDEMPOTENCY:
  LastVacationCreditDate, LastTransitionYear and LastExpirationYear make a
  repeated run within the same period a no-op.
*/
package vacation

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// ACTION
// =============================================================================

type Action int

const (
	ActionMonthlyCredit Action = iota + 1
	ActionYearTransition
	ActionExpirePreviousYear
)

// Actions lists every action in the order a scheduler should consider them.
var Actions = []Action{ActionYearTransition, ActionExpirePreviousYear, ActionMonthlyCredit}

func (a Action) String() string {
	switch a {
	case ActionMonthlyCredit:
		return "monthly-credit"
	case ActionYearTransition:
		return "year-transition"
	case ActionExpirePreviousYear:
		return "expire-previous-year"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction maps the wire tag to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "monthly-credit":
		return ActionMonthlyCredit, nil
	case "year-transition":
		return ActionYearTransition, nil
	case "expire-previous-year":
		return ActionExpirePreviousYear, nil
	}
	return 0, fmt.Errorf("%w: %q", generic.ErrUnknownAction, s)
}

func (a Action) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

func (a *Action) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// =============================================================================
// POLICY
// =============================================================================

// Policy carries the tunable constants of the jobs.
type Policy struct {
	MonthlyCredit decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{MonthlyCredit: generic.MustParseDecimal("2.5")}
}

// Job is the pure per-employee rule behind an Action.
type Job func(emp Employee, today generic.Date) (Balance, *generic.HistoryEntry)

// Job returns the rule for a.
func (p Policy) Job(a Action) (Job, error) {
	switch a {
	case ActionMonthlyCredit:
		return func(emp Employee, today generic.Date) (Balance, *generic.HistoryEntry) {
			return ApplyMonthlyCredit(emp, today, p.MonthlyCredit)
		}, nil
	case ActionYearTransition:
		return ApplyYearTransition, nil
	case ActionExpirePreviousYear:
		return ApplyExpiration, nil
	}
	return nil, fmt.Errorf("%w: %s", generic.ErrUnknownAction, a)
}

// =============================================================================
// RULES
// =============================================================================

// ApplyMonthlyCredit adds credit to the current-year allowance of an active
// employee not yet credited this month.
func ApplyMonthlyCredit(emp Employee, today generic.Date, credit decimal.Decimal) (Balance, *generic.HistoryEntry) {
	b := emp.Balance
	if !emp.Active {
		return b, nil
	}
	if b.LastVacationCreditDate != nil && b.LastVacationCreditDate.SameMonth(today) {
		return b, nil
	}

	b.CurrentYearVacationDays = b.CurrentYearVacationDays.Add(credit)
	credited := today
	b.LastVacationCreditDate = &credited

	return b, &generic.HistoryEntry{
		EmployeeID:   emp.ID,
		Year:         today.Year(),
		Action:       generic.HistoryMonthlyCredit,
		DaysAffected: credit,
		Details: map[string]string{
			"month":                      fmt.Sprintf("%04d-%02d", today.Year(), int(today.Month())),
			"current_year_vacation_days": b.CurrentYearVacationDays.String(),
		},
	}
}

// ApplyYearTransition moves the unused current-year allowance into the
// previous-year slot and resets the current year.
func ApplyYearTransition(emp Employee, today generic.Date) (Balance, *generic.HistoryEntry) {
	b := emp.Balance
	if b.LastTransitionYear == today.Year() {
		return b, nil
	}

	carried := b.CurrentRemaining()
	discarded := b.PreviousRemaining()

	b.PreviousYearVacationDays = carried
	b.PreviousYearUsedDays = decimal.Zero
	b.CurrentYearVacationDays = decimal.Zero
	b.CurrentYearUsedDays = decimal.Zero
	b.LastTransitionYear = today.Year()

	return b, &generic.HistoryEntry{
		EmployeeID:   emp.ID,
		Year:         today.Year(),
		Action:       generic.HistoryYearTransition,
		DaysAffected: carried,
		Details: map[string]string{
			"from_year":                    fmt.Sprint(today.Year() - 1),
			"previous_year_vacation_days":  carried.String(),
			"discarded_previous_remaining": discarded.String(),
		},
	}
}

// ApplyExpiration drops whatever is left of the previous-year allowance.
func ApplyExpiration(emp Employee, today generic.Date) (Balance, *generic.HistoryEntry) {
	b := emp.Balance
	if !b.PreviousYearVacationDays.IsPositive() || b.LastExpirationYear == today.Year() {
		return b, nil
	}

	expired := b.PreviousRemaining()
	allowance, used := b.PreviousYearVacationDays, b.PreviousYearUsedDays

	b.PreviousYearVacationDays = decimal.Zero
	b.PreviousYearUsedDays = decimal.Zero
	b.LastExpirationYear = today.Year()

	return b, &generic.HistoryEntry{
		EmployeeID:   emp.ID,
		Year:         today.Year(),
		Action:       generic.HistoryExpired,
		DaysAffected: expired,
		Details: map[string]string{
			"previous_year_vacation_days": allowance.String(),
			"previous_year_used_days":     used.String(),
		},
	}
}
