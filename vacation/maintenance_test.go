package vacation_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/vacation"
)

func datePtr(y int, m time.Month, d int) *generic.Date {
	dt := generic.NewDate(y, m, d)
	return &dt
}

// =============================================================================
// ACTION DISPATCH
// =============================================================================

func TestParseAction(t *testing.T) {
	for _, a := range []vacation.Action{vacation.ActionMonthlyCredit, vacation.ActionYearTransition, vacation.ActionExpirePreviousYear} {
		parsed, err := vacation.ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}

	_, err := vacation.ParseAction("rollover")
	assert.ErrorIs(t, err, generic.ErrUnknownAction)
}

func TestAction_JSON(t *testing.T) {
	var body struct {
		Action vacation.Action `json:"action"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"action":"expire-previous-year"}`), &body))
	assert.Equal(t, vacation.ActionExpirePreviousYear, body.Action)

	assert.Error(t, json.Unmarshal([]byte(`{"action":"nope"}`), &body))
}

func TestPolicy_JobCoversEveryAction(t *testing.T) {
	p := vacation.DefaultPolicy()
	for _, a := range vacation.Actions {
		job, err := p.Job(a)
		require.NoError(t, err, a.String())
		require.NotNil(t, job)
	}

	_, err := p.Job(vacation.Action(42))
	assert.ErrorIs(t, err, generic.ErrUnknownAction)
}

// =============================================================================
// MONTHLY CREDIT
// =============================================================================

func TestApplyMonthlyCredit(t *testing.T) {
	emp := vacation.Employee{ID: "emp-1", Active: true, Balance: balance(0, 0, 5, 1)}
	today := generic.NewDate(2024, time.March, 1)

	next, entry := vacation.ApplyMonthlyCredit(emp, today, dec(2.5))

	require.NotNil(t, entry)
	assertDecimal(t, 7.5, next.CurrentYearVacationDays)
	assertDecimal(t, 1, next.CurrentYearUsedDays)
	assert.Equal(t, today, *next.LastVacationCreditDate)
	assert.Equal(t, generic.HistoryMonthlyCredit, entry.Action)
	assert.Equal(t, 2024, entry.Year)
	assertDecimal(t, 2.5, entry.DaysAffected)
	assert.Equal(t, "2024-03", entry.Details["month"])

	// Input untouched
	assertDecimal(t, 5, emp.Balance.CurrentYearVacationDays)
	assert.Nil(t, emp.Balance.LastVacationCreditDate)
}

func TestApplyMonthlyCredit_SameMonthIsNoop(t *testing.T) {
	// GIVEN: already credited on March 1
	b := balance(0, 0, 7.5, 0)
	b.LastVacationCreditDate = datePtr(2024, time.March, 1)
	emp := vacation.Employee{ID: "emp-1", Active: true, Balance: b}

	// WHEN: the job runs again on March 20
	next, entry := vacation.ApplyMonthlyCredit(emp, generic.NewDate(2024, time.March, 20), dec(2.5))

	// THEN: nothing happens
	assert.Nil(t, entry)
	assertDecimal(t, 7.5, next.CurrentYearVacationDays)
}

func TestApplyMonthlyCredit_NextMonthCredits(t *testing.T) {
	b := balance(0, 0, 7.5, 0)
	b.LastVacationCreditDate = datePtr(2024, time.March, 31)
	emp := vacation.Employee{ID: "emp-1", Active: true, Balance: b}

	next, entry := vacation.ApplyMonthlyCredit(emp, generic.NewDate(2024, time.April, 1), dec(2.5))

	require.NotNil(t, entry)
	assertDecimal(t, 10, next.CurrentYearVacationDays)
}

func TestApplyMonthlyCredit_SameMonthOtherYearCredits(t *testing.T) {
	b := balance(0, 0, 0, 0)
	b.LastVacationCreditDate = datePtr(2023, time.March, 1)
	emp := vacation.Employee{ID: "emp-1", Active: true, Balance: b}

	_, entry := vacation.ApplyMonthlyCredit(emp, generic.NewDate(2024, time.March, 1), dec(2.5))
	assert.NotNil(t, entry)
}

func TestApplyMonthlyCredit_InactiveSkipped(t *testing.T) {
	emp := vacation.Employee{ID: "emp-1", Active: false, Balance: balance(0, 0, 5, 0)}

	next, entry := vacation.ApplyMonthlyCredit(emp, generic.NewDate(2024, time.March, 1), dec(2.5))

	assert.Nil(t, entry)
	assertDecimal(t, 5, next.CurrentYearVacationDays)
}

// =============================================================================
// YEAR TRANSITION
// =============================================================================

func TestApplyYearTransition(t *testing.T) {
	// GIVEN: 30 granted, 18 used in 2024; 2 previous-year days never expired
	emp := vacation.Employee{ID: "emp-1", Balance: balance(4, 2, 30, 18)}
	jan1 := generic.NewDate(2025, time.January, 1)

	next, entry := vacation.ApplyYearTransition(emp, jan1)

	require.NotNil(t, entry)
	assertDecimal(t, 12, next.PreviousYearVacationDays)
	assertDecimal(t, 0, next.PreviousYearUsedDays)
	assertDecimal(t, 0, next.CurrentYearVacationDays)
	assertDecimal(t, 0, next.CurrentYearUsedDays)
	assert.Equal(t, 2025, next.LastTransitionYear)

	assert.Equal(t, generic.HistoryYearTransition, entry.Action)
	assertDecimal(t, 12, entry.DaysAffected)
	assert.Equal(t, "2024", entry.Details["from_year"])
	assert.Equal(t, "2", entry.Details["discarded_previous_remaining"])
}

func TestApplyYearTransition_OncePerYear(t *testing.T) {
	emp := vacation.Employee{ID: "emp-1", Balance: balance(0, 0, 30, 18)}
	jan1 := generic.NewDate(2025, time.January, 1)

	first, entry := vacation.ApplyYearTransition(emp, jan1)
	require.NotNil(t, entry)

	// WHEN: the job fires again later the same year
	emp.Balance = first
	second, entry := vacation.ApplyYearTransition(emp, generic.NewDate(2025, time.January, 2))

	// THEN: the carried-over 12 days are not wiped
	assert.Nil(t, entry)
	assert.Equal(t, first, second)
	assertDecimal(t, 12, second.PreviousYearVacationDays)
}

// =============================================================================
// EXPIRATION
// =============================================================================

func TestApplyExpiration(t *testing.T) {
	emp := vacation.Employee{ID: "emp-1", Balance: balance(12, 5, 12.5, 3)}
	june1 := generic.NewDate(2025, time.June, 1)

	next, entry := vacation.ApplyExpiration(emp, june1)

	require.NotNil(t, entry)
	assertDecimal(t, 0, next.PreviousYearVacationDays)
	assertDecimal(t, 0, next.PreviousYearUsedDays)
	assertDecimal(t, 12.5, next.CurrentYearVacationDays)
	assertDecimal(t, 3, next.CurrentYearUsedDays)
	assert.Equal(t, 2025, next.LastExpirationYear)

	assert.Equal(t, generic.HistoryExpired, entry.Action)
	assertDecimal(t, 7, entry.DaysAffected)
	assert.Equal(t, "12", entry.Details["previous_year_vacation_days"])
	assert.Equal(t, "5", entry.Details["previous_year_used_days"])
}

func TestApplyExpiration_NothingToExpire(t *testing.T) {
	emp := vacation.Employee{ID: "emp-1", Balance: balance(0, 0, 10, 0)}

	_, entry := vacation.ApplyExpiration(emp, generic.NewDate(2025, time.June, 1))
	assert.Nil(t, entry)
}

func TestApplyExpiration_OncePerYear(t *testing.T) {
	b := balance(3, 0, 10, 0)
	b.LastExpirationYear = 2025
	emp := vacation.Employee{ID: "emp-1", Balance: b}

	next, entry := vacation.ApplyExpiration(emp, generic.NewDate(2025, time.June, 2))

	assert.Nil(t, entry)
	assertDecimal(t, 3, next.PreviousYearVacationDays)
}
