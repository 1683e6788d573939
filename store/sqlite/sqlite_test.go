package sqlite

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/holiday"
	"github.com/warp/leave-ledger/vacation"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var created = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

func testEmployee(id string) vacation.Employee {
	credit := generic.NewDate(2024, time.March, 1)
	return vacation.Employee{
		ID:       id,
		Name:     "Employee " + id,
		Email:    id + "@example.com",
		HireDate: generic.NewDate(2021, time.September, 1),
		Active:   true,
		Balance: vacation.Balance{
			CurrentYearVacationDays:  dec("7.5"),
			CurrentYearUsedDays:      dec("0.5"),
			PreviousYearVacationDays: dec("3"),
			PreviousYearUsedDays:     dec("1"),
			LastVacationCreditDate:   &credit,
			LastTransitionYear:       2024,
		},
		Version:   1,
		CreatedAt: created,
	}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestStore_EmployeeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	emp := testEmployee("emp-1")

	require.NoError(t, s.InsertEmployee(ctx, emp))

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, emp.Name, got.Name)
	assert.Equal(t, emp.Email, got.Email)
	assert.Equal(t, emp.HireDate, got.HireDate)
	assert.True(t, got.Active)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.Balance.CurrentYearVacationDays.Equal(dec("7.5")))
	assert.True(t, got.Balance.CurrentYearUsedDays.Equal(dec("0.5")))
	assert.True(t, got.Balance.PreviousYearVacationDays.Equal(dec("3")))
	assert.True(t, got.Balance.PreviousYearUsedDays.Equal(dec("1")))
	require.NotNil(t, got.Balance.LastVacationCreditDate)
	assert.Equal(t, "2024-03-01", got.Balance.LastVacationCreditDate.String())
	assert.Equal(t, 2024, got.Balance.LastTransitionYear)
	assert.Equal(t, created, got.CreatedAt)

	_, err = s.GetEmployee(ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)

	err = s.InsertEmployee(ctx, emp)
	assert.ErrorIs(t, err, generic.ErrInvalidRequest)
}

func TestStore_ListEmployeesInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"zoe", "adam", "mia"} {
		require.NoError(t, s.InsertEmployee(ctx, testEmployee(id)))
	}

	emps, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, emps, 3)
	assert.Equal(t, "zoe", emps[0].ID)
	assert.Equal(t, "mia", emps[2].ID)
}

func TestStore_UpdateBalanceCompareAndSwap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEmployee(ctx, testEmployee("emp-1")))

	next := testEmployee("emp-1").Balance
	next.CurrentYearVacationDays = dec("10")
	next.LastVacationCreditDate = nil
	next.LastExpirationYear = 2024
	require.NoError(t, s.UpdateBalance(ctx, "emp-1", 1, next))

	err := s.UpdateBalance(ctx, "emp-1", 1, next)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	err = s.UpdateBalance(ctx, "ghost", 1, next)
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.Balance.CurrentYearVacationDays.Equal(dec("10")))
	assert.Nil(t, got.Balance.LastVacationCreditDate)
	assert.Equal(t, 2024, got.Balance.LastExpirationYear)
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestStore_Requests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEmployee(ctx, testEmployee("emp-1")))

	req := vacation.LeaveRequest{
		ID:            "req-1",
		EmployeeID:    "emp-1",
		StartDate:     generic.NewDate(2024, time.June, 10),
		EndDate:       generic.NewDate(2024, time.June, 10),
		Type:          vacation.LeaveVacation,
		DayType:       vacation.DayHalf,
		HalfDayPeriod: vacation.PeriodMorning,
		Reason:        "dentist",
		Status:        vacation.StatusPending,
		CreatedAt:     created,
	}
	require.NoError(t, s.InsertRequest(ctx, req))

	got, err := s.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, req.StartDate, got.StartDate)
	assert.Equal(t, vacation.DayHalf, got.DayType)
	assert.Equal(t, vacation.PeriodMorning, got.HalfDayPeriod)
	assert.Equal(t, "dentist", got.Reason)
	assert.Nil(t, got.DecidedAt)

	decidedAt := created.Add(time.Hour)
	decision := *got
	decision.Status = vacation.StatusRejected
	decision.RejectionReason = "coverage"
	decision.DecidedBy = "mgr-1"
	decision.DecidedAt = &decidedAt
	require.NoError(t, s.DecideRequest(ctx, decision))

	decision.Status = vacation.StatusApproved
	assert.ErrorIs(t, s.DecideRequest(ctx, decision), generic.ErrInvalidStateTransition)

	decision.ID = "ghost"
	assert.ErrorIs(t, s.DecideRequest(ctx, decision), generic.ErrRequestNotFound)

	got, err = s.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusRejected, got.Status)
	assert.Equal(t, "coverage", got.RejectionReason)
	require.NotNil(t, got.DecidedAt)
	assert.Equal(t, decidedAt, *got.DecidedAt)

	rejected, err := s.ListRequests(ctx, vacation.RequestFilter{EmployeeID: "emp-1", Status: vacation.StatusRejected})
	require.NoError(t, err)
	assert.Len(t, rejected, 1)
	pending, err := s.ListRequests(ctx, vacation.RequestFilter{Status: vacation.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)

	req.ID = "req-2"
	req.EmployeeID = "ghost"
	assert.ErrorIs(t, s.InsertRequest(ctx, req), generic.ErrEmployeeNotFound)

	_, err = s.GetRequest(ctx, "req-2")
	assert.ErrorIs(t, err, generic.ErrRequestNotFound)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestStore_HistoryAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEmployee(ctx, testEmployee("emp-1")))

	entries := []generic.HistoryEntry{
		{ID: "h-1", EmployeeID: "emp-1", Year: 2024, Action: generic.HistoryMonthlyCredit, DaysAffected: dec("2.5"), Details: map[string]string{"month": "2024-03"}, CreatedAt: created},
		{ID: "h-2", EmployeeID: "emp-1", Year: 2024, Action: generic.HistoryRequestDeduction, DaysAffected: dec("0.5"), CreatedAt: created},
		{ID: "h-3", EmployeeID: "emp-1", Year: 2025, Action: generic.HistoryYearTransition, DaysAffected: dec("12"), CreatedAt: created},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendHistory(ctx, e))
	}

	all, err := s.QueryHistory(ctx, generic.HistoryFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "h-1", all[0].ID)
	assert.Equal(t, "2024-03", all[0].Details["month"])
	assert.True(t, all[0].DaysAffected.Equal(dec("2.5")))
	assert.NotNil(t, all[1].Details)

	y2024, err := s.QueryHistory(ctx, generic.HistoryFilter{Year: 2024, Actions: []generic.HistoryAction{generic.HistoryRequestDeduction}})
	require.NoError(t, err)
	require.Len(t, y2024, 1)
	assert.Equal(t, "h-2", y2024[0].ID)

	limited, err := s.QueryHistory(ctx, generic.HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// The schema refuses to rewrite the log.
	_, err = s.db.ExecContext(ctx, "UPDATE vacation_history SET days_affected = '0'")
	assert.Error(t, err)
	_, err = s.db.ExecContext(ctx, "DELETE FROM vacation_history")
	assert.Error(t, err)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEmployee(ctx, testEmployee("emp-1")))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx vacation.Repository) error {
		next := testEmployee("emp-1").Balance
		next.CurrentYearUsedDays = dec("5")
		require.NoError(t, tx.UpdateBalance(ctx, "emp-1", 1, next))
		require.NoError(t, tx.AppendHistory(ctx, generic.HistoryEntry{ID: "h-1", EmployeeID: "emp-1", Year: 2024, Action: generic.HistoryRequestDeduction, DaysAffected: dec("4.5"), CreatedAt: created}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.Balance.CurrentYearUsedDays.Equal(dec("0.5")))

	history, err := s.QueryHistory(ctx, generic.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_ServiceApproveEndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	svc := vacation.NewService(s, holiday.Default(),
		vacation.WithLogger(zap.NewNop()),
		vacation.WithClock(func() time.Time { return created }))

	emp, err := svc.CreateEmployee(ctx, vacation.Employee{
		Name:   "Camille",
		Active: true,
		Balance: vacation.Balance{
			PreviousYearVacationDays: dec("3"),
			CurrentYearVacationDays:  dec("10"),
		},
	})
	require.NoError(t, err)

	req, err := svc.Submit(ctx, vacation.NewRequest{
		EmployeeID: emp.ID,
		StartDate:  generic.NewDate(2024, time.June, 10),
		EndDate:    generic.NewDate(2024, time.June, 14),
		Type:       vacation.LeaveVacation,
		DayType:    vacation.DayFull,
	})
	require.NoError(t, err)

	// Concurrent approvals: exactly one deducts.
	var wg sync.WaitGroup
	var okCount int
	var mu sync.Mutex
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Approve(ctx, req.ID, "mgr-1"); err == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, generic.ErrInvalidStateTransition)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, okCount)

	view, err := svc.GetBalance(ctx, emp.ID)
	require.NoError(t, err)
	assert.True(t, view.PreviousYearRemaining.IsZero())
	assert.True(t, view.CurrentYearRemaining.Equal(dec("8")))

	history, err := svc.History(ctx, generic.HistoryFilter{EmployeeID: emp.ID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "3", history[0].Details["from_previous_year"])
	assert.Equal(t, "2", history[0].Details["from_current_year"])
}

func TestStore_RunnerOnSQLite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		emp := testEmployee(id)
		emp.Balance.LastVacationCreditDate = nil
		require.NoError(t, s.InsertEmployee(ctx, emp))
	}
	runner := vacation.NewRunner(s, vacation.DefaultPolicy(), vacation.WithRunnerLogger(zap.NewNop()))

	report, err := runner.RunAt(ctx, vacation.ActionMonthlyCredit, created)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)

	report, err = runner.RunAt(ctx, vacation.ActionMonthlyCredit, created.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)

	got, err := s.GetEmployee(ctx, "b")
	require.NoError(t, err)
	assert.True(t, got.Balance.CurrentYearVacationDays.Equal(dec("10")))
	assert.Equal(t, int64(2), got.Version)
}

// =============================================================================
// FAILURE PATHS (sqlmock)
// =============================================================================

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestStore_UpdateBalanceLostRace(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE employees SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM employees WHERE id = ?")).
		WithArgs("emp-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	err := s.UpdateBalance(context.Background(), "emp-1", 3, testEmployee("emp-1").Balance)

	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTxRollsBackOnDriverError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vacation_history")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx vacation.Repository) error {
		return tx.AppendHistory(context.Background(), generic.HistoryEntry{ID: "h-1", EmployeeID: "emp-1", Action: generic.HistoryExpired})
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.ErrorIs(t, generic.Persist("history.append", err), generic.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryFailureSurfaces(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM employees")).
		WillReturnError(errors.New("database is locked"))

	_, err := s.ListEmployees(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, generic.ErrEmployeeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
