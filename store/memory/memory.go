// Package memory provides an in-memory vacation.TxRepository (for tests/dev).
package memory

import (
	"context"
	"sync"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/vacation"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	employees map[string]vacation.Employee
	empOrder  []string
	requests  map[string]vacation.LeaveRequest
	reqOrder  []string
	history   []generic.HistoryEntry
}

var _ vacation.TxRepository = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		employees: make(map[string]vacation.Employee),
		requests:  make(map[string]vacation.LeaveRequest),
	}
}

// Employees

func (m *Memory) InsertEmployee(_ context.Context, emp vacation.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertEmployeeLocked(emp)
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*vacation.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id)
}

func (m *Memory) ListEmployees(_ context.Context) ([]vacation.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEmployeesLocked(), nil
}

func (m *Memory) UpdateBalance(_ context.Context, id string, expectedVersion int64, b vacation.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBalanceLocked(id, expectedVersion, b)
}

func (m *Memory) insertEmployeeLocked(emp vacation.Employee) error {
	if _, ok := m.employees[emp.ID]; ok {
		return generic.ErrInvalidRequest
	}
	if emp.Version == 0 {
		emp.Version = 1
	}
	m.employees[emp.ID] = emp
	m.empOrder = append(m.empOrder, emp.ID)
	return nil
}

func (m *Memory) getEmployeeLocked(id string) (*vacation.Employee, error) {
	emp, ok := m.employees[id]
	if !ok {
		return nil, generic.ErrEmployeeNotFound
	}
	return &emp, nil
}

func (m *Memory) listEmployeesLocked() []vacation.Employee {
	out := make([]vacation.Employee, 0, len(m.empOrder))
	for _, id := range m.empOrder {
		out = append(out, m.employees[id])
	}
	return out
}

func (m *Memory) updateBalanceLocked(id string, expectedVersion int64, b vacation.Balance) error {
	emp, ok := m.employees[id]
	if !ok {
		return generic.ErrEmployeeNotFound
	}
	if emp.Version != expectedVersion {
		return generic.ErrConcurrentModification
	}
	emp.Balance = b
	emp.Version++
	m.employees[id] = emp
	return nil
}

// Requests

func (m *Memory) InsertRequest(_ context.Context, req vacation.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertRequestLocked(req)
}

func (m *Memory) GetRequest(_ context.Context, id string) (*vacation.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) ListRequests(_ context.Context, filter vacation.RequestFilter) ([]vacation.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsLocked(filter), nil
}

func (m *Memory) DecideRequest(_ context.Context, req vacation.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decideRequestLocked(req)
}

func (m *Memory) insertRequestLocked(req vacation.LeaveRequest) error {
	if _, ok := m.employees[req.EmployeeID]; !ok {
		return generic.ErrEmployeeNotFound
	}
	m.requests[req.ID] = req
	m.reqOrder = append(m.reqOrder, req.ID)
	return nil
}

func (m *Memory) getRequestLocked(id string) (*vacation.LeaveRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, generic.ErrRequestNotFound
	}
	return &req, nil
}

func (m *Memory) listRequestsLocked(filter vacation.RequestFilter) []vacation.LeaveRequest {
	var out []vacation.LeaveRequest
	for _, id := range m.reqOrder {
		if r := m.requests[id]; filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) decideRequestLocked(req vacation.LeaveRequest) error {
	stored, ok := m.requests[req.ID]
	if !ok {
		return generic.ErrRequestNotFound
	}
	if stored.Status != vacation.StatusPending {
		return generic.ErrInvalidStateTransition
	}
	stored.Status = req.Status
	stored.RejectionReason = req.RejectionReason
	stored.DecidedBy = req.DecidedBy
	stored.DecidedAt = req.DecidedAt
	m.requests[req.ID] = stored
	return nil
}

// History (append-only)

func (m *Memory) AppendHistory(_ context.Context, entry generic.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendHistoryLocked(entry)
	return nil
}

func (m *Memory) QueryHistory(_ context.Context, filter generic.HistoryFilter) ([]generic.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryHistoryLocked(filter), nil
}

func (m *Memory) appendHistoryLocked(entry generic.HistoryEntry) {
	details := make(map[string]string, len(entry.Details))
	for k, v := range entry.Details {
		details[k] = v
	}
	entry.Details = details
	m.history = append(m.history, entry)
}

func (m *Memory) queryHistoryLocked(filter generic.HistoryFilter) []generic.HistoryEntry {
	var out []generic.HistoryEntry
	for _, e := range m.history {
		if !filter.Matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(vacation.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	employees map[string]vacation.Employee
	empOrder  []string
	requests  map[string]vacation.LeaveRequest
	reqOrder  []string
	history   []generic.HistoryEntry
}

func (m *Memory) snapshot() memorySnapshot {
	emps := make(map[string]vacation.Employee, len(m.employees))
	for k, v := range m.employees {
		emps[k] = v
	}
	reqs := make(map[string]vacation.LeaveRequest, len(m.requests))
	for k, v := range m.requests {
		reqs[k] = v
	}
	return memorySnapshot{
		employees: emps,
		empOrder:  append([]string{}, m.empOrder...),
		requests:  reqs,
		reqOrder:  append([]string{}, m.reqOrder...),
		history:   append([]generic.HistoryEntry{}, m.history...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.employees = s.employees
	m.empOrder = s.empOrder
	m.requests = s.requests
	m.reqOrder = s.reqOrder
	m.history = s.history
}

// txView runs against the parent while WithTx holds its lock.
type txView struct {
	parent *Memory
}

func (tv *txView) InsertEmployee(_ context.Context, emp vacation.Employee) error {
	return tv.parent.insertEmployeeLocked(emp)
}

func (tv *txView) GetEmployee(_ context.Context, id string) (*vacation.Employee, error) {
	return tv.parent.getEmployeeLocked(id)
}

func (tv *txView) ListEmployees(_ context.Context) ([]vacation.Employee, error) {
	return tv.parent.listEmployeesLocked(), nil
}

func (tv *txView) UpdateBalance(_ context.Context, id string, expectedVersion int64, b vacation.Balance) error {
	return tv.parent.updateBalanceLocked(id, expectedVersion, b)
}

func (tv *txView) InsertRequest(_ context.Context, req vacation.LeaveRequest) error {
	return tv.parent.insertRequestLocked(req)
}

func (tv *txView) GetRequest(_ context.Context, id string) (*vacation.LeaveRequest, error) {
	return tv.parent.getRequestLocked(id)
}

func (tv *txView) ListRequests(_ context.Context, filter vacation.RequestFilter) ([]vacation.LeaveRequest, error) {
	return tv.parent.listRequestsLocked(filter), nil
}

func (tv *txView) DecideRequest(_ context.Context, req vacation.LeaveRequest) error {
	return tv.parent.decideRequestLocked(req)
}

func (tv *txView) AppendHistory(_ context.Context, entry generic.HistoryEntry) error {
	tv.parent.appendHistoryLocked(entry)
	return nil
}

func (tv *txView) QueryHistory(_ context.Context, filter generic.HistoryFilter) ([]generic.HistoryEntry, error) {
	return tv.parent.queryHistoryLocked(filter), nil
}
