package generic

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// =============================================================================
// DATE - Calendar day without time-of-day
// =============================================================================

// Date is a calendar day. The underlying time is always midnight UTC so that
// two dates compare equal iff they name the same day.
type Date struct {
	t time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf normalizes t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate accepts "2006-01-02" or a full RFC3339 timestamp.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidDateRange, s)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

// SameMonth reports whether both dates fall in the same calendar month.
func (d Date) SameMonth(other Date) bool {
	return d.Year() == other.Year() && d.Month() == other.Month()
}

func (d Date) String() string { return d.t.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive [Start, End] range of calendar days.
type Period struct {
	Start Date
	End   Date
}

// MaxPeriodDays bounds the calendar days a single period may span.
const MaxPeriodDays = 3 * 366

// NewPeriod rejects ranges whose end precedes their start or that span more
// than MaxPeriodDays.
func NewPeriod(start, end Date) (Period, error) {
	if end.Before(start) {
		return Period{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidDateRange, end, start)
	}
	if end.After(start.AddDays(MaxPeriodDays - 1)) {
		return Period{}, fmt.Errorf("%w: %s..%s spans more than %d days", ErrInvalidDateRange, start, end, MaxPeriodDays)
	}
	return Period{Start: start, End: end}, nil
}

func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns every calendar day in the period, in order.
func (p Period) Days() []Date {
	var days []Date
	for cur := p.Start; cur.BeforeOrEqual(p.End); cur = cur.AddDays(1) {
		days = append(days, cur)
	}
	return days
}

// Years returns each calendar year the period touches.
func (p Period) Years() []int {
	if p.End.Before(p.Start) {
		return nil
	}
	years := make([]int, 0, p.End.Year()-p.Start.Year()+1)
	for y := p.Start.Year(); y <= p.End.Year(); y++ {
		years = append(years, y)
	}
	return years
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// HolidayCalendar answers day-classification questions for business-day math.
// The holiday package provides the French public holiday implementation.
type HolidayCalendar interface {
	IsHoliday(d Date) bool
	IsWeekend(d Date) bool

	// CountBusinessDays counts days in [start, end] that are neither weekend
	// nor holiday. Returns 0 when end < start.
	CountBusinessDays(start, end Date) int
}

// StartOfMonth returns the first day of d's month.
func StartOfMonth(d Date) Date { return NewDate(d.Year(), d.Month(), 1) }
