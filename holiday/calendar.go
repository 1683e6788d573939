package holiday

import (
	"time"

	cal "github.com/rickar/cal/v2"
	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// CALENDAR - Business-day classification
// =============================================================================

// Calendar implements generic.HolidayCalendar over a rickar/cal
// BusinessCalendar loaded with the French holiday set.
type Calendar struct {
	bc *cal.BusinessCalendar
}

var _ generic.HolidayCalendar = (*Calendar)(nil)

// NewCalendar builds a calendar with Monday-Friday workdays and the
// holidays given, defaulting to the French public holidays.
func NewCalendar(holidays ...*cal.Holiday) *Calendar {
	if len(holidays) == 0 {
		holidays = Holidays
	}
	bc := cal.NewBusinessCalendar()
	bc.AddHoliday(holidays...)
	return &Calendar{bc: bc}
}

// IsHoliday ignores time-of-day; holidays are looked up in d's own year.
func (c *Calendar) IsHoliday(d generic.Date) bool {
	actual, _, _ := c.bc.IsHoliday(d.Time())
	return actual
}

func (c *Calendar) IsWeekend(d generic.Date) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// CountBusinessDays walks [start, end] day by day. Every day is checked
// against its own year's holidays so ranges crossing Dec 31 are handled.
func (c *Calendar) CountBusinessDays(start, end generic.Date) int {
	if end.Before(start) {
		return 0
	}
	n := 0
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if c.IsWeekend(d) || c.IsHoliday(d) {
			continue
		}
		n++
	}
	return n
}

// =============================================================================
// PACKAGE-LEVEL HELPERS
// =============================================================================

var france = NewCalendar()

// Default returns the shared French calendar. It holds no mutable state.
func Default() *Calendar { return france }

func IsHoliday(d generic.Date) bool                 { return france.IsHoliday(d) }
func IsWeekend(d generic.Date) bool                 { return france.IsWeekend(d) }
func CountBusinessDays(start, end generic.Date) int { return france.CountBusinessDays(start, end) }
