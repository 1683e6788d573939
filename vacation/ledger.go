package vacation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-ledger/generic"
	"go.uber.org/zap"
)

// DefaultMaxRetries bounds compare-and-swap retries on a contended employee.
const DefaultMaxRetries = 5

// =============================================================================
// LEDGER - Compare-and-swap balance mutation + history append
// =============================================================================

// Mutation computes the next balance from a freshly read employee. A nil
// entry means there is nothing to do; an error aborts without writing.
type Mutation func(emp Employee) (Balance, *generic.HistoryEntry, error)

// Ledger applies mutations to one employee's balance. On a version conflict
// it re-reads and re-runs the mutation, so the rule always sees the values
// it overwrites.
type Ledger struct {
	MaxRetries int
	Now        func() time.Time
	logger     *zap.Logger
}

func NewLedger(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.L().Named("vacation.ledger")
	}
	return &Ledger{MaxRetries: DefaultMaxRetries, Now: time.Now, logger: logger}
}

// Apply updates the balance and appends the history entry through repo.
// It returns the stored entry, or nil when the mutation was a no-op.
func (l *Ledger) Apply(ctx context.Context, repo Repository, employeeID string, m Mutation) (*generic.HistoryEntry, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		emp, err := repo.GetEmployee(ctx, employeeID)
		if err != nil {
			return nil, generic.Persist("employees.get", err)
		}

		next, entry, err := m(*emp)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, nil
		}
		if err := next.Validate(); err != nil {
			return nil, err
		}

		err = repo.UpdateBalance(ctx, employeeID, emp.Version, next)
		if generic.IsRetryable(err) && attempt < l.MaxRetries {
			l.logger.Debug("balance version conflict, retrying",
				zap.String("employee_id", employeeID),
				zap.Int64("version", emp.Version),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, generic.Persist("employees.update_balance", err)
		}

		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = l.Now().UTC()
		}
		entry.EmployeeID = employeeID

		if err := repo.AppendHistory(ctx, *entry); err != nil {
			// The balance write already happened. Without a transaction this
			// is a partially applied operation.
			l.logger.Error("history append failed after balance update",
				zap.String("employee_id", employeeID),
				zap.String("action", string(entry.Action)),
				zap.Error(err))
			return nil, generic.Persist("history.append", err)
		}
		return entry, nil
	}
}
