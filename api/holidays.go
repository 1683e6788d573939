package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/holiday"
	"go.uber.org/zap"
)

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns the French public holidays of a year.
// GET /api/holidays?year=2024 (defaults to the current year)
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := h.now().Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := parseYear(s)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		year = y
	}
	writeJSON(w, http.StatusOK, holiday.HolidaysForYear(year))
}

// HolidayFeed serves the holidays of a year as an iCalendar feed.
// GET /api/holidays/{year}.ics
func (h *Handler) HolidayFeed(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(chi.URLParam(r, "year"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="holidays-%d.ics"`, year))
	if err := holiday.WriteICS(w, h.now(), year); err != nil {
		h.logger.Warn("ics feed write failed", zap.Int("year", year), zap.Error(err))
	}
}

// BusinessDays counts business days in [start, end].
// GET /api/business-days?start=2024-05-06&end=2024-05-10
func (h *Handler) BusinessDays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := generic.ParseDate(q.Get("start"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	end, err := generic.ParseDate(q.Get("end"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := generic.NewPeriod(start, end); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BusinessDaysDTO{
		Start:        start,
		End:          end,
		BusinessDays: h.calendar.CountBusinessDays(start, end),
	})
}

// parseYear accepts Gregorian years the Easter computation supports.
func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(s)
	if err != nil || y < 1583 || y > 9999 {
		return 0, fmt.Errorf("%w: year %q", generic.ErrInvalidRequest, s)
	}
	return y, nil
}
