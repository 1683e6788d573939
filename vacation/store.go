/*
store.go - Persistence contract for the vacation ledger

PURPOSE:
  Defines the interface between the accounting rules and the database.
  Implementations: store/sqlite (production), store/memory (tests, dev).

BALANCE WRITES:
  UpdateBalance is the ONLY way balance columns change after insert. It is a
  compare-and-swap on Employee.Version: the write happens iff the stored
  version still equals expectedVersion, and bumps it by one. A lost race
  returns generic.ErrConcurrentModification and the caller re-reads.

REQUEST DECISIONS:
  DecideRequest is likewise conditional: it only moves a request that is
  still pending. A second decision returns generic.ErrInvalidStateTransition.

TRANSACTIONS:
  TxRepository.WithTx runs fn against a view whose writes commit together
  or not at all. Callers use it to make request approval atomic.
*/
package vacation

import (
	"context"

	"github.com/warp/leave-ledger/generic"
)

type EmployeeStore interface {
	// InsertEmployee stores a new employee including its opening balance.
	InsertEmployee(ctx context.Context, emp Employee) error

	// GetEmployee returns generic.ErrEmployeeNotFound for unknown ids.
	GetEmployee(ctx context.Context, id string) (*Employee, error)

	ListEmployees(ctx context.Context) ([]Employee, error)

	// UpdateBalance writes b iff the stored version equals expectedVersion.
	UpdateBalance(ctx context.Context, id string, expectedVersion int64, b Balance) error
}

type RequestStore interface {
	InsertRequest(ctx context.Context, req LeaveRequest) error

	// GetRequest returns generic.ErrRequestNotFound for unknown ids.
	GetRequest(ctx context.Context, id string) (*LeaveRequest, error)

	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)

	// DecideRequest persists req's status and decision fields iff the stored
	// request is still pending.
	DecideRequest(ctx context.Context, req LeaveRequest) error
}

// Repository is everything the service and the job runner need.
type Repository interface {
	EmployeeStore
	RequestStore
	generic.HistoryLog
}

// TxRepository adds all-or-nothing execution.
type TxRepository interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// inTx runs fn inside a transaction when repo supports one, directly otherwise.
func inTx(ctx context.Context, repo Repository, fn func(Repository) error) error {
	if txr, ok := repo.(TxRepository); ok {
		return txr.WithTx(ctx, fn)
	}
	return fn(repo)
}
