/*
holiday.go - French public holidays

PURPOSE:
  Deterministic mapping from a year to the eleven French public holidays:
  eight fixed dates plus three that move with Easter.

  Fixed:           Jan 1, May 1, May 8, Jul 14, Aug 15, Nov 1, Nov 11, Dec 25
  Easter-relative: Easter Monday (+1), Ascension (+39), Whit Monday (+50)

  Each holiday is a rickar/cal Holiday so the same definitions drive both
  HolidaysForYear and the BusinessCalendar in calendar.go.

SEE ALSO:
  - calendar.go: Business-day counting
  - ical.go: iCalendar feed
*/
package holiday

import (
	"sort"
	"time"

	cal "github.com/rickar/cal/v2"
	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// EASTER
// =============================================================================

// ComputeEasterDate returns Easter Sunday of the Gregorian calendar using the
// Meeus/Jones/Butcher algorithm.
func ComputeEasterDate(year int) generic.Date {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return generic.NewDate(year, time.Month(month), day)
}

// calcEasterOffset places a holiday h.Offset days after Easter Sunday.
func calcEasterOffset(h *cal.Holiday, year int) time.Time {
	return ComputeEasterDate(year).AddDays(h.Offset).Time()
}

// =============================================================================
// DEFINITIONS
// =============================================================================

var (
	NewYear = &cal.Holiday{
		Name: "Jour de l'an", Type: cal.ObservancePublic,
		Month: time.January, Day: 1, Func: cal.CalcDayOfMonth,
	}
	LabourDay = &cal.Holiday{
		Name: "Fête du Travail", Type: cal.ObservancePublic,
		Month: time.May, Day: 1, Func: cal.CalcDayOfMonth,
	}
	VictoryDay = &cal.Holiday{
		Name: "Victoire 1945", Type: cal.ObservancePublic,
		Month: time.May, Day: 8, Func: cal.CalcDayOfMonth,
	}
	BastilleDay = &cal.Holiday{
		Name: "Fête nationale", Type: cal.ObservancePublic,
		Month: time.July, Day: 14, Func: cal.CalcDayOfMonth,
	}
	AssumptionDay = &cal.Holiday{
		Name: "Assomption", Type: cal.ObservancePublic,
		Month: time.August, Day: 15, Func: cal.CalcDayOfMonth,
	}
	AllSaintsDay = &cal.Holiday{
		Name: "Toussaint", Type: cal.ObservancePublic,
		Month: time.November, Day: 1, Func: cal.CalcDayOfMonth,
	}
	ArmisticeDay = &cal.Holiday{
		Name: "Armistice 1918", Type: cal.ObservancePublic,
		Month: time.November, Day: 11, Func: cal.CalcDayOfMonth,
	}
	ChristmasDay = &cal.Holiday{
		Name: "Noël", Type: cal.ObservancePublic,
		Month: time.December, Day: 25, Func: cal.CalcDayOfMonth,
	}

	EasterMonday = &cal.Holiday{
		Name: "Lundi de Pâques", Type: cal.ObservancePublic,
		Offset: 1, Func: calcEasterOffset,
	}
	AscensionDay = &cal.Holiday{
		Name: "Ascension", Type: cal.ObservancePublic,
		Offset: 39, Func: calcEasterOffset,
	}
	WhitMonday = &cal.Holiday{
		Name: "Lundi de Pentecôte", Type: cal.ObservancePublic,
		Offset: 50, Func: calcEasterOffset,
	}

	// Holidays is the complete French public holiday set.
	Holidays = []*cal.Holiday{
		NewYear, LabourDay, VictoryDay, BastilleDay, AssumptionDay,
		AllSaintsDay, ArmisticeDay, ChristmasDay,
		EasterMonday, AscensionDay, WhitMonday,
	}
)

// Holiday is one dated occurrence.
type Holiday struct {
	Date generic.Date `json:"date"`
	Name string       `json:"name"`
}

// HolidaysForYear returns the eleven holidays of year, sorted by date.
func HolidaysForYear(year int) []Holiday {
	out := make([]Holiday, 0, len(Holidays))
	for _, h := range Holidays {
		actual, _ := h.Calc(year)
		out = append(out, Holiday{Date: generic.DateOf(actual), Name: h.Name})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
