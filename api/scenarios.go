/*
scenarios.go - Demo scenario loaders for demonstrations

PURPOSE:
  Populates the ledger with small, realistic situations so the approval
  precedence and the maintenance guards can be observed from the UI or
  with curl. Mounted only when server.demo is true.

AVAILABLE SCENARIOS:
  spill-over:      3 days left from last year, 10 this year, a pending
                   5-day request (approval takes 3 + 2)
  current-only:    nothing left from last year, a pending 4-day request
  credited:        already credited this month (monthly credit is a no-op)
  easter-week:     pending request across Easter Monday 2024
  year-end:        carried-over days waiting for the expiration job

HOW SCENARIOS WORK:
  Each loader creates its employees through vacation.Service, the same path
  the API uses, and submits its requests. Employee IDs are prefixed with the
  scenario ID, so loading a scenario twice fails on the duplicate insert
  instead of silently doubling data.

USAGE VIA API:
  GET  /api/scenarios
  POST /api/scenarios/load {"scenario_id": "spill-over"}

SEE ALSO:
  - handlers.go: Employee and request handlers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/vacation"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, h *Handler, today generic.Date) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "spill-over",
			Name:        "Spill-over",
			Description: "Previous-year remainder is consumed before the current year",
		},
		load: loadSpillOver,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "current-only",
			Name:        "Current year only",
			Description: "Nothing carried over; approval uses current-year days",
		},
		load: loadCurrentOnly,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "credited",
			Name:        "Already credited",
			Description: "Monthly credit already applied this month",
		},
		load: loadCredited,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "easter-week",
			Name:        "Easter week",
			Description: "Request spanning Easter Monday 2024 costs 3 days, not 4",
		},
		load: loadEasterWeek,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "year-end",
			Name:        "Year end",
			Description: "Carried-over days partly used, waiting for expiration",
		},
		load: loadYearEnd,
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	for _, s := range scenarios {
		if s.ID != req.ScenarioID {
			continue
		}
		if err := s.load(r.Context(), h, generic.DateOf(h.now())); err != nil {
			h.writeDomainError(w, r, fmt.Errorf("load scenario %s: %w", s.ID, err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": s.ID})
		return
	}
	writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func days(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func (h *Handler) seedEmployee(ctx context.Context, id, name string, b vacation.Balance) error {
	_, err := h.svc.CreateEmployee(ctx, vacation.Employee{
		ID:      id,
		Name:    name,
		Email:   id + "@example.com",
		Active:  true,
		Balance: b,
	})
	return err
}

func (h *Handler) seedRequest(ctx context.Context, employeeID string, start, end generic.Date) error {
	_, err := h.svc.Submit(ctx, vacation.NewRequest{
		EmployeeID: employeeID,
		StartDate:  start,
		EndDate:    end,
		Type:       vacation.LeaveVacation,
		DayType:    vacation.DayFull,
		Reason:     "demo",
	})
	return err
}

// nextMonday is the first Monday strictly after today.
func nextMonday(today generic.Date) generic.Date {
	d := today.AddDays(1)
	for d.Weekday() != time.Monday {
		d = d.AddDays(1)
	}
	return d
}

// businessDaysFrom returns the end date covering n business days starting at from.
func (h *Handler) businessDaysFrom(from generic.Date, n int) generic.Date {
	end := from
	for h.calendar.CountBusinessDays(from, end) < n {
		end = end.AddDays(1)
	}
	return end
}

func loadSpillOver(ctx context.Context, h *Handler, today generic.Date) error {
	id := "spill-over-alice"
	err := h.seedEmployee(ctx, id, "Alice Martin", vacation.Balance{
		CurrentYearVacationDays:  days(10),
		PreviousYearVacationDays: days(5),
		PreviousYearUsedDays:     days(2),
	})
	if err != nil {
		return err
	}
	start := nextMonday(today)
	return h.seedRequest(ctx, id, start, h.businessDaysFrom(start, 5))
}

func loadCurrentOnly(ctx context.Context, h *Handler, today generic.Date) error {
	id := "current-only-bruno"
	err := h.seedEmployee(ctx, id, "Bruno Petit", vacation.Balance{
		CurrentYearVacationDays: days(12.5),
		CurrentYearUsedDays:     days(2.5),
	})
	if err != nil {
		return err
	}
	start := nextMonday(today)
	return h.seedRequest(ctx, id, start, h.businessDaysFrom(start, 4))
}

func loadCredited(ctx context.Context, h *Handler, today generic.Date) error {
	credited := generic.StartOfMonth(today)
	return h.seedEmployee(ctx, "credited-chloe", "Chloé Bernard", vacation.Balance{
		CurrentYearVacationDays: days(7.5),
		LastVacationCreditDate:  &credited,
	})
}

func loadEasterWeek(ctx context.Context, h *Handler, _ generic.Date) error {
	id := "easter-week-david"
	err := h.seedEmployee(ctx, id, "David Moreau", vacation.Balance{
		CurrentYearVacationDays: days(25),
	})
	if err != nil {
		return err
	}
	return h.seedRequest(ctx, id, generic.NewDate(2024, time.March, 28), generic.NewDate(2024, time.April, 2))
}

func loadYearEnd(ctx context.Context, h *Handler, _ generic.Date) error {
	return h.seedEmployee(ctx, "year-end-emma", "Emma Laurent", vacation.Balance{
		CurrentYearVacationDays:  days(15),
		CurrentYearUsedDays:      days(5),
		PreviousYearVacationDays: days(8),
		PreviousYearUsedDays:     days(3),
	})
}
