/*
handlers_test.go - HTTP contract tests for API handlers

Tests for:
- Employee creation and balance view
- Submit / Approve / Reject through the router, with error mapping
- Maintenance trigger ({success} | {error})
- Holiday list, .ics feed, business-day counter
- XLSX history export
- Rate limiting and demo scenarios
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/holiday"
	"github.com/warp/leave-ledger/store/memory"
	"github.com/warp/leave-ledger/vacation"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

type testServer struct {
	router http.Handler
	repo   *memory.Memory
}

func newTestServer(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()
	clock := func() time.Time { return testNow }
	repo := memory.New()
	svc := vacation.NewService(repo, holiday.Default(),
		vacation.WithLogger(zap.NewNop()),
		vacation.WithClock(clock))
	runner := vacation.NewRunner(repo, vacation.DefaultPolicy(),
		vacation.WithRunnerLogger(zap.NewNop()),
		vacation.WithRunnerClock(clock))

	h := NewHandler(svc, runner, holiday.Default(), zap.NewNop())
	h.now = clock

	opts.Logger = zap.NewNop()
	return &testServer{router: NewRouter(h, opts), repo: repo}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createEmployee(t *testing.T, id string, current, previous, previousUsed string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/employees", map[string]any{
		"id":                          id,
		"name":                        "Employee " + id,
		"email":                       id + "@example.com",
		"hire_date":                   "2020-01-06",
		"current_year_vacation_days":  current,
		"previous_year_vacation_days": previous,
		"previous_year_used_days":     previousUsed,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) submit(t *testing.T, employeeID, start, end string) RequestDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/employees/"+employeeID+"/requests", map[string]any{
		"start_date": start,
		"end_date":   end,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[RequestDTO](t, rec)
}

func assertDays(t *testing.T, want string, got decimal.Decimal, msg ...any) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s %v", want, got, msg)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestCreateEmployee_OpeningBalance(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	// WHEN: an employee is created with an opening balance
	s.createEmployee(t, "emp-1", "10", "5", "2")

	// THEN: the balance view derives remaining and total
	rec := s.do(t, http.MethodGet, "/api/employees/emp-1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b := decodeBody[BalanceDTO](t, rec)
	assertDays(t, "10", b.CurrentYearRemaining)
	assertDays(t, "3", b.PreviousYearRemaining)
	assertDays(t, "13", b.TotalAvailable)

	// AND: creation writes no history
	rec = s.do(t, http.MethodGet, "/api/employees/emp-1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]HistoryDTO](t, rec))
}

func TestCreateEmployee_Validation(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodPost, "/api/employees", map[string]any{"email": "not-an-email"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation_failed", resp.Code)
	assert.Contains(t, resp.Details, "name failed required")
	assert.Contains(t, resp.Details, "email failed email")
}

func TestCreateEmployee_UsedAboveAllowance(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodPost, "/api/employees", map[string]any{
		"name":                       "Over",
		"current_year_vacation_days": "2",
		"current_year_used_days":     "3",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateEmployee_NegativeOpeningBalance(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	// WHEN: the opening balance carries a negative used count
	rec := s.do(t, http.MethodPost, "/api/employees", map[string]any{
		"id":                      "neg",
		"name":                    "Negative",
		"previous_year_used_days": "-5",
	})

	// THEN: rejected before reaching the ledger
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeBody[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/employees/neg", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetEmployee_NotFound(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodGet, "/api/employees/nobody", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[ErrorResponse](t, rec).Code)
}

// =============================================================================
// SUBMIT / APPROVE / REJECT
// =============================================================================

func TestSubmitApprove_SpillsFromPreviousYear(t *testing.T) {
	// GIVEN: 3 days left from last year, 10 this year
	s := newTestServer(t, RouterOptions{})
	s.createEmployee(t, "emp-1", "10", "5", "2")

	// WHEN: a 5-business-day week is submitted and approved
	req := s.submit(t, "emp-1", "2024-06-10", "2024-06-14")
	assert.Equal(t, "pending", req.Status)
	assertDays(t, "5", req.Days)

	rec := s.do(t, http.MethodPost, "/api/requests/"+req.ID+"/approve", map[string]string{"decider_id": "mgr-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decodeBody[RequestDTO](t, rec)
	assert.Equal(t, "approved", approved.Status)
	assert.Equal(t, "mgr-1", approved.DecidedBy)

	// THEN: 3 days come from last year and 2 from this year
	b := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/employees/emp-1/balance", nil))
	assertDays(t, "5", b.PreviousYearUsedDays)
	assertDays(t, "2", b.CurrentYearVacationDays.Sub(b.CurrentYearRemaining))
	assertDays(t, "8", b.TotalAvailable)

	// AND: one request_deduction entry records the split
	history := decodeBody[[]HistoryDTO](t, s.do(t, http.MethodGet, "/api/employees/emp-1/history?year=2024", nil))
	require.Len(t, history, 1)
	assert.Equal(t, string(generic.HistoryRequestDeduction), history[0].Action)
	assert.Equal(t, "3", history[0].Details["from_previous_year"])
	assert.Equal(t, "2", history[0].Details["from_current_year"])
}

func TestSubmit_InsufficientBalance(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createEmployee(t, "emp-1", "2", "0", "0")

	rec := s.do(t, http.MethodPost, "/api/employees/emp-1/requests", map[string]any{
		"start_date": "2024-06-10",
		"end_date":   "2024-06-14",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_balance", decodeBody[ErrorResponse](t, rec).Code)

	// AND: nothing was recorded
	reqs := decodeBody[[]RequestDTO](t, s.do(t, http.MethodGet, "/api/employees/emp-1/requests", nil))
	assert.Empty(t, reqs)
}

func TestSubmit_EndBeforeStart(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createEmployee(t, "emp-1", "10", "0", "0")

	rec := s.do(t, http.MethodPost, "/api/employees/emp-1/requests", map[string]any{
		"start_date": "2024-06-10",
		"end_date":   "2024-06-05",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date_range", decodeBody[ErrorResponse](t, rec).Code)
}

func TestSubmit_HalfDayNeedsPeriod(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createEmployee(t, "emp-1", "10", "0", "0")

	rec := s.do(t, http.MethodPost, "/api/employees/emp-1/requests", map[string]any{
		"start_date": "2024-06-10",
		"end_date":   "2024-06-10",
		"day_type":   "half",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "half_day_period")

	rec = s.do(t, http.MethodPost, "/api/employees/emp-1/requests", map[string]any{
		"start_date":      "2024-06-10",
		"end_date":        "2024-06-10",
		"day_type":        "half",
		"half_day_period": "morning",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assertDays(t, "0.5", decodeBody[RequestDTO](t, rec).Days)
}

func TestSubmit_UnknownEmployee(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodPost, "/api/employees/ghost/requests", map[string]any{
		"start_date": "2024-06-10",
		"end_date":   "2024-06-14",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprove_Twice(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createEmployee(t, "emp-1", "10", "0", "0")
	req := s.submit(t, "emp-1", "2024-06-10", "2024-06-11")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/requests/"+req.ID+"/approve", nil).Code)
	rec := s.do(t, http.MethodPost, "/api/requests/"+req.ID+"/approve", nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeBody[ErrorResponse](t, rec).Code)

	// AND: deducted once
	b := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/employees/emp-1/balance", nil))
	assertDays(t, "2", b.CurrentYearUsedDays)
}

func TestReject_NoLedgerEffect(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createEmployee(t, "emp-1", "10", "0", "0")
	req := s.submit(t, "emp-1", "2024-06-10", "2024-06-14")

	rec := s.do(t, http.MethodPost, "/api/requests/"+req.ID+"/reject", map[string]string{"reason": "team offsite"})
	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decodeBody[RequestDTO](t, rec)
	assert.Equal(t, "rejected", rejected.Status)
	assert.Equal(t, "team offsite", rejected.RejectionReason)

	b := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/employees/emp-1/balance", nil))
	assertDays(t, "0", b.CurrentYearUsedDays)
	history := decodeBody[[]HistoryDTO](t, s.do(t, http.MethodGet, "/api/employees/emp-1/history", nil))
	assert.Empty(t, history)

	// AND: a rejected request can no longer be approved
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/requests/"+req.ID+"/approve", nil).Code)
}

func TestListRequests_ByStatus(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createEmployee(t, "emp-1", "20", "0", "0")
	first := s.submit(t, "emp-1", "2024-06-10", "2024-06-11")
	s.submit(t, "emp-1", "2024-07-01", "2024-07-02")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/requests/"+first.ID+"/approve", nil).Code)

	pending := decodeBody[[]RequestDTO](t, s.do(t, http.MethodGet, "/api/requests?status=pending", nil))
	require.Len(t, pending, 1)
	assert.Equal(t, "2024-07-01", pending[0].StartDate.String())

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/requests?status=lost", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/requests/missing", nil).Code)
}

// =============================================================================
// MAINTENANCE
// =============================================================================

func TestRunMaintenance_MonthlyCredit(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createEmployee(t, "emp-1", "5", "0", "0")

	rec := s.do(t, http.MethodPost, "/api/maintenance", map[string]string{"action": "monthly-credit"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[MaintenanceResponse](t, rec)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Report)
	assert.Equal(t, 1, resp.Report.Processed)

	b := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/employees/emp-1/balance", nil))
	assertDays(t, "7.5", b.CurrentYearVacationDays)

	// AND: the same month again is a no-op
	resp = decodeBody[MaintenanceResponse](t, s.do(t, http.MethodPost, "/api/maintenance", map[string]string{"action": "monthly-credit"}))
	assert.True(t, resp.Success)
	assert.Equal(t, 0, resp.Report.Processed)
}

func TestRunMaintenance_AsOfDate(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createEmployee(t, "emp-1", "10", "4", "1")

	// WHEN: the transition is run as of next January
	rec := s.do(t, http.MethodPost, "/api/maintenance", map[string]string{
		"action": "year-transition",
		"date":   "2025-01-01",
	})

	// THEN: this year's allowance becomes last year's
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/employees/emp-1/balance", nil))
	assertDays(t, "10", b.PreviousYearVacationDays)
	assertDays(t, "0", b.CurrentYearVacationDays)
}

func TestRunMaintenance_UnknownAction(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodPost, "/api/maintenance", map[string]string{"action": "halve-everything"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "unknown_action", resp.Code)
	assert.Contains(t, resp.Error, "halve-everything")
}

func TestRunMaintenance_MissingAction(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodPost, "/api/maintenance", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CALENDAR
// =============================================================================

func TestListHolidays(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodGet, "/api/holidays?year=2024", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]holiday.Holiday](t, rec)
	require.Len(t, list, 11)
	assert.Equal(t, "2024-01-01", list[0].Date.String())
	assert.Equal(t, "2024-04-01", list[1].Date.String())

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/holidays?year=abc", nil).Code)
}

func TestHolidayFeed(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodGet, "/api/holidays/2024.ics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Equal(t, 11, strings.Count(body, "BEGIN:VEVENT"))
}

func TestBusinessDays_SpansEasterMonday(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodGet, "/api/business-days?start=2024-03-28&end=2024-04-02", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeBody[BusinessDaysDTO](t, rec).BusinessDays)

	rec = s.do(t, http.MethodGet, "/api/business-days?start=2024-04-02&end=2024-03-28", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBusinessDays_RejectsUnboundedRange(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodGet, "/api/business-days?start=0001-01-01&end=9999-12-31", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date_range", decodeBody[ErrorResponse](t, rec).Code)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExportHistory_XLSX(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createEmployee(t, "emp-1", "10", "0", "0")
	req := s.submit(t, "emp-1", "2024-06-10", "2024-06-14")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/requests/"+req.ID+"/approve", nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/maintenance", map[string]string{"action": "monthly-credit"}).Code)

	rec := s.do(t, http.MethodGet, "/api/history/export?year=2024", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "emp-1", rows[1][1])
	assert.Equal(t, "Employee emp-1", rows[1][2])
	assert.Equal(t, string(generic.HistoryRequestDeduction), rows[1][4])
	assert.Equal(t, "5", rows[1][5])
	assert.Equal(t, req.ID, rows[1][6])
	assert.Equal(t, string(generic.HistoryMonthlyCredit), rows[2][4])
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimitByIP(t *testing.T) {
	s := newTestServer(t, RouterOptions{RateLimit: 1, RateBurst: 1})

	first := s.do(t, http.MethodGet, "/healthz", nil)
	second := s.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_OnlyInDemoMode(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/scenarios", nil).Code)
}

func TestLoadScenario_SpillOver(t *testing.T) {
	s := newTestServer(t, RouterOptions{Demo: true})

	list := decodeBody[[]ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios", nil))
	require.Len(t, list, len(scenarios))

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "spill-over"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: the seeded request is approved
	pending := decodeBody[[]RequestDTO](t, s.do(t, http.MethodGet, "/api/requests?status=pending", nil))
	require.Len(t, pending, 1)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/requests/"+pending[0].ID+"/approve", nil).Code)

	// THEN: 3 days from last year, 2 from this year
	emp, err := s.repo.GetEmployee(context.Background(), "spill-over-alice")
	require.NoError(t, err)
	assertDays(t, "5", emp.Balance.PreviousYearUsedDays)
	assertDays(t, "2", emp.Balance.CurrentYearUsedDays)

	// AND: loading it again is refused
	rec = s.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "spill-over"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadScenario_Unknown(t *testing.T) {
	s := newTestServer(t, RouterOptions{Demo: true})

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz_ReportsStoreFailure(t *testing.T) {
	healthy := newTestServer(t, RouterOptions{})
	assert.Equal(t, http.StatusOK, healthy.do(t, http.MethodGet, "/healthz", nil).Code)

	down := newTestServer(t, RouterOptions{Ping: func(context.Context) error { return errors.New("database is closed") }})
	rec := down.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "database is closed")
}
