package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/vacation"
)

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

const employeeColumns = `
	id, name, email, hire_date, active,
	current_year_vacation_days, current_year_used_days,
	previous_year_vacation_days, previous_year_used_days,
	last_vacation_credit_date, last_transition_year, last_expiration_year,
	version, created_at`

// InsertEmployee stores a new employee with its opening balance.
func (r *queries) InsertEmployee(ctx context.Context, emp vacation.Employee) error {
	if emp.Version == 0 {
		emp.Version = 1
	}
	b := emp.Balance

	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		emp.ID, emp.Name, emp.Email, emp.HireDate.String(), boolToInt(emp.Active),
		b.CurrentYearVacationDays.String(), b.CurrentYearUsedDays.String(),
		b.PreviousYearVacationDays.String(), b.PreviousYearUsedDays.String(),
		nullDate(b.LastVacationCreditDate), b.LastTransitionYear, b.LastExpirationYear,
		emp.Version, emp.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) || isConstraint(err, sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("%w: employee %s already exists", generic.ErrInvalidRequest, emp.ID)
		}
		return fmt.Errorf("failed to insert employee: %w", err)
	}
	return nil
}

// GetEmployee retrieves an employee by ID.
func (r *queries) GetEmployee(ctx context.Context, id string) (*vacation.Employee, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// ListEmployees returns all employees in insertion order.
func (r *queries) ListEmployees(ctx context.Context) ([]vacation.Employee, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []vacation.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// UpdateBalance writes b iff the stored version still equals expectedVersion.
func (r *queries) UpdateBalance(ctx context.Context, id string, expectedVersion int64, b vacation.Balance) error {
	query := `
		UPDATE employees SET
			current_year_vacation_days = ?,
			current_year_used_days = ?,
			previous_year_vacation_days = ?,
			previous_year_used_days = ?,
			last_vacation_credit_date = ?,
			last_transition_year = ?,
			last_expiration_year = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := r.q.ExecContext(ctx, query,
		b.CurrentYearVacationDays.String(), b.CurrentYearUsedDays.String(),
		b.PreviousYearVacationDays.String(), b.PreviousYearUsedDays.String(),
		nullDate(b.LastVacationCreditDate), b.LastTransitionYear, b.LastExpirationYear,
		id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n == 1 {
		return nil
	}

	exists, err := r.exists(ctx, "SELECT 1 FROM employees WHERE id = ?", id)
	if err != nil {
		return err
	}
	if !exists {
		return generic.ErrEmployeeNotFound
	}
	return generic.ErrConcurrentModification
}

func (r *queries) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := r.q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

func scanEmployee(row scanner) (vacation.Employee, error) {
	var (
		emp                 vacation.Employee
		hireDate, createdAt string
		active              int
		curAllow, curUsed   string
		prevAllow, prevUsed string
		lastCredit          sql.NullString
	)

	err := row.Scan(
		&emp.ID, &emp.Name, &emp.Email, &hireDate, &active,
		&curAllow, &curUsed, &prevAllow, &prevUsed,
		&lastCredit, &emp.Balance.LastTransitionYear, &emp.Balance.LastExpirationYear,
		&emp.Version, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return emp, err
		}
		return emp, fmt.Errorf("failed to scan employee: %w", err)
	}

	emp.Active = active != 0
	if emp.HireDate, err = generic.ParseDate(hireDate); err != nil {
		return emp, fmt.Errorf("employee %s: hire_date: %w", emp.ID, err)
	}
	emp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&emp.Balance.CurrentYearVacationDays, curAllow},
		{&emp.Balance.CurrentYearUsedDays, curUsed},
		{&emp.Balance.PreviousYearVacationDays, prevAllow},
		{&emp.Balance.PreviousYearUsedDays, prevUsed},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return emp, fmt.Errorf("employee %s: balance column %q: %w", emp.ID, f.src, err)
		}
	}

	if lastCredit.Valid {
		d, err := generic.ParseDate(lastCredit.String)
		if err != nil {
			return emp, fmt.Errorf("employee %s: last_vacation_credit_date: %w", emp.ID, err)
		}
		emp.Balance.LastVacationCreditDate = &d
	}
	return emp, nil
}

func nullDate(d *generic.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
