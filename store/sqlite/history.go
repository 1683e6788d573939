package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// HISTORY LOG (append-only)
// =============================================================================

// AppendHistory inserts one entry. There is no update or delete path, and
// the schema's triggers reject both.
func (r *queries) AppendHistory(ctx context.Context, e generic.HistoryEntry) error {
	details := e.Details
	if details == nil {
		details = map[string]string{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode history details: %w", err)
	}

	query := `
		INSERT INTO vacation_history
		(id, employee_id, year, action, days_affected, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.q.ExecContext(ctx, query,
		e.ID, e.EmployeeID, e.Year, string(e.Action), e.DaysAffected.String(),
		string(detailsJSON), e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// QueryHistory returns entries matching filter in append order.
func (r *queries) QueryHistory(ctx context.Context, filter generic.HistoryFilter) ([]generic.HistoryEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, filter.Year)
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT id, employee_id, year, action, days_affected, details_json, created_at FROM vacation_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []generic.HistoryEntry
	for rows.Next() {
		var (
			e                     generic.HistoryEntry
			action, days, details string
			createdAt             string
		)
		if err := rows.Scan(&e.ID, &e.EmployeeID, &e.Year, &action, &days, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Action = generic.HistoryAction(action)
		if e.DaysAffected, err = decimal.NewFromString(days); err != nil {
			return nil, fmt.Errorf("history %s: days_affected: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("history %s: details: %w", e.ID, err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
