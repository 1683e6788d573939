/*
Package sqlite provides a SQLite-backed vacation.TxRepository.

PURPOSE:
  Persists employees with their inline vacation balance, leave requests and
  the vacation history log.

KEY TABLES:
  employees:        Employee record + the four balance counters + job guards
  leave_requests:   Requests and their single decision
  vacation_history: Append-only audit log (UPDATE/DELETE blocked by triggers)

CONCURRENCY:
  Balance writes are a compare-and-swap on employees.version:
      UPDATE employees SET ..., version = version + 1
      WHERE id = ? AND version = ?
  Zero rows affected means another writer got there first.
  Request decisions are guarded the same way on status = 'pending'.

  The pool is capped at one connection: SQLite has a single writer anyway,
  and ":memory:" databases are per-connection.

MIGRATION:
  Schema is versioned under migrations/ and applied with golang-migrate on
  New(). NewWithDB skips it for callers that bring their own schema.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - vacation/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/leave-ledger/vacation"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements vacation.TxRepository using SQLite.
type Store struct {
	queries
	db *sql.DB
}

var _ vacation.TxRepository = (*Store)(nil)

// New opens the database at dbPath and brings the schema up to date.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already migrated connection pool.
func NewWithDB(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies every pending up migration.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	defer src.Close()

	drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return err
	}
	// m.Close would close db as well; the source is closed above.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. fn must only use the
// repository it is handed: the pool has a single connection.
func (s *Store) WithTx(ctx context.Context, fn func(vacation.Repository) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; Store runs it on the pool, WithTx on a tx.
type queries struct {
	q querier
}

var _ vacation.Repository = (*queries)(nil)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Helper functions

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == code
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
