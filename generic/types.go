/*
Package generic holds the domain-agnostic building blocks of the vacation
ledger: calendar dates and periods, the error taxonomy, the history log
contract and decimal helpers.

KEY CONCEPTS:
  - Date: A calendar day (midnight UTC), the unit of leave accounting
  - Period: An inclusive [Start, End] range of dates
  - HolidayCalendar: Weekend/holiday classification and business-day counts
  - HistoryEntry: Append-only audit record of a ledger mutation

DESIGN PRINCIPLES:
  1. Precision: Day quantities use decimal.Decimal (half days are exact)
  2. Immutability: History entries are never modified
  3. Explicit errors: Sentinels + structured errors, matched with errors.Is

SEE ALSO:
  - holiday/: French public holiday calendar
  - vacation/: Balance ledger and leave-request accounting
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

var (
	Half = decimal.NewFromFloat(0.5)
)

// MustParseDecimal parses a decimal literal and panics on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
