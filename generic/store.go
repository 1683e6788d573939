/*
store.go - History log contract

PURPOSE:
  Every ledger mutation (credit, transition, expiration, request deduction)
  leaves one HistoryEntry behind. The log exists for audit and debugging;
  balances are never recomputed from it.

APPEND-ONLY CONTRACT:
  - AppendHistory(): the ONLY write operation
  - NO Update() or Delete() methods exist
  Corrections, if ever needed, are new entries.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: vacation_history table
  - store/memory/memory.go: slice guarded by a mutex

SEE ALSO:
  - vacation/maintenance.go: Builds entries for the periodic jobs
  - vacation/service.go: Builds request_deduction entries
*/
package generic

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HISTORY ENTRY
// =============================================================================

type HistoryAction string

const (
	HistoryMonthlyCredit    HistoryAction = "monthly_credit"
	HistoryYearTransition   HistoryAction = "year_transition"
	HistoryExpired          HistoryAction = "expired"
	HistoryRequestDeduction HistoryAction = "request_deduction"
)

func (a HistoryAction) Valid() bool {
	switch a {
	case HistoryMonthlyCredit, HistoryYearTransition, HistoryExpired, HistoryRequestDeduction:
		return true
	}
	return false
}

// HistoryEntry records one ledger mutation. Never updated or deleted.
type HistoryEntry struct {
	ID           string
	EmployeeID   string
	Year         int
	Action       HistoryAction
	DaysAffected decimal.Decimal
	Details      map[string]string // action-specific
	CreatedAt    time.Time
}

// =============================================================================
// HISTORY LOG
// =============================================================================

type HistoryLog interface {
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	QueryHistory(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error)
}

// HistoryFilter narrows QueryHistory. Zero values match everything.
type HistoryFilter struct {
	EmployeeID string
	Year       int
	Actions    []HistoryAction
	Limit      int
}

// Matches reports whether e passes the filter (except Limit).
func (f HistoryFilter) Matches(e HistoryEntry) bool {
	if f.EmployeeID != "" && e.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Year != 0 && e.Year != f.Year {
		return false
	}
	if len(f.Actions) > 0 {
		for _, a := range f.Actions {
			if a == e.Action {
				return true
			}
		}
		return false
	}
	return true
}
