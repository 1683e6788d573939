package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/vacation"
)

// =============================================================================
// REQUEST STORE
// =============================================================================

const requestColumns = `
	id, employee_id, start_date, end_date, leave_type, day_type, half_day_period,
	reason, status, rejection_reason, decided_by, decided_at, created_at`

// InsertRequest stores a new leave request.
func (r *queries) InsertRequest(ctx context.Context, req vacation.LeaveRequest) error {
	query := `
		INSERT INTO leave_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		req.ID, req.EmployeeID, req.StartDate.String(), req.EndDate.String(),
		string(req.Type), string(req.DayType), string(req.HalfDayPeriod),
		req.Reason, string(req.Status), req.RejectionReason, req.DecidedBy,
		nullTime(req.DecidedAt), req.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return generic.ErrEmployeeNotFound
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// GetRequest retrieves a request by ID.
func (r *queries) GetRequest(ctx context.Context, id string) (*vacation.LeaveRequest, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListRequests returns requests matching filter, oldest first.
func (r *queries) ListRequests(ctx context.Context, filter vacation.RequestFilter) ([]vacation.LeaveRequest, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + requestColumns + " FROM leave_requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []vacation.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// DecideRequest records the decision iff the request is still pending.
func (r *queries) DecideRequest(ctx context.Context, req vacation.LeaveRequest) error {
	query := `
		UPDATE leave_requests SET
			status = ?,
			rejection_reason = ?,
			decided_by = ?,
			decided_at = ?
		WHERE id = ? AND status = 'pending'
	`
	res, err := r.q.ExecContext(ctx, query,
		string(req.Status), req.RejectionReason, req.DecidedBy, nullTime(req.DecidedAt), req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to decide request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to decide request: %w", err)
	}
	if n == 1 {
		return nil
	}

	exists, err := r.exists(ctx, "SELECT 1 FROM leave_requests WHERE id = ?", req.ID)
	if err != nil {
		return err
	}
	if !exists {
		return generic.ErrRequestNotFound
	}
	return generic.ErrInvalidStateTransition
}

func scanRequest(row scanner) (vacation.LeaveRequest, error) {
	var (
		req                vacation.LeaveRequest
		startDate, endDate string
		leaveType, dayType string
		period, status     string
		decidedAt          sql.NullString
		createdAt          string
	)

	err := row.Scan(
		&req.ID, &req.EmployeeID, &startDate, &endDate, &leaveType, &dayType, &period,
		&req.Reason, &status, &req.RejectionReason, &req.DecidedBy, &decidedAt, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return req, err
		}
		return req, fmt.Errorf("failed to scan request: %w", err)
	}

	if req.StartDate, err = generic.ParseDate(startDate); err != nil {
		return req, fmt.Errorf("request %s: start_date: %w", req.ID, err)
	}
	if req.EndDate, err = generic.ParseDate(endDate); err != nil {
		return req, fmt.Errorf("request %s: end_date: %w", req.ID, err)
	}
	req.Type = vacation.LeaveType(leaveType)
	req.DayType = vacation.DayType(dayType)
	req.HalfDayPeriod = vacation.HalfDayPeriod(period)
	req.Status = vacation.RequestStatus(status)
	req.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if decidedAt.Valid {
		t, _ := time.Parse(time.RFC3339, decidedAt.String)
		req.DecidedAt = &t
	}
	return req, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
