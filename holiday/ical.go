package holiday

import (
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"
)

const productID = "-//warp//leave-ledger//FR"

// WriteICS writes an iCalendar feed with one all-day event per holiday of
// each year given. stamp is used as DTSTAMP so output is reproducible.
func WriteICS(w io.Writer, stamp time.Time, years ...int) error {
	c := ics.NewCalendar()
	c.SetMethod(ics.MethodPublish)
	c.SetProductId(productID)

	for _, y := range years {
		for _, h := range HolidaysForYear(y) {
			ev := c.AddEvent(fmt.Sprintf("%s@leave-ledger", h.Date))
			ev.SetSummary(h.Name)
			ev.SetDtStampTime(stamp.UTC())
			ev.SetAllDayStartAt(h.Date.Time())
			ev.SetAllDayEndAt(h.Date.AddDays(1).Time())
		}
	}

	if _, err := io.WriteString(w, c.Serialize()); err != nil {
		return fmt.Errorf("write ics: %w", err)
	}
	return nil
}
