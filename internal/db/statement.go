package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Statement is a prepared statement cached by a ConnContext.
//
// It is bound to either the read-only or the read-write connection of the
// context that prepared it, and must not be used after that context is
// closed. The context resets the statement every time it hands it out, so
// callers can treat a returned statement as never executed.
type Statement struct {
	id    string
	query string
	write bool
	owner *ConnContext
	stmt  *sql.Stmt
	rows  *sql.Rows
	used  bool
}

// ID returns the cache key the statement was stored under.
func (s *Statement) ID() string {
	return s.id
}

// SQL returns the statement text.
func (s *Statement) SQL() string {
	return s.query
}

// Writes reports whether the statement is bound to the read-write connection.
func (s *Statement) Writes() bool {
	return s.write
}

// IsFresh reports whether the statement has not been executed since it was
// prepared or last reset.
func (s *Statement) IsFresh() bool {
	return !s.used
}

// Exec executes the statement with the given arguments.
func (s *Statement) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	if err := s.owner.checkOwner(ctx, "statement.exec"); err != nil {
		return nil, err
	}
	s.used = true
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, s.fault("execute", err)
	}
	s.owner.stats.addExec()
	return res, nil
}

// Query executes the statement and returns its rows. Rows returned by a
// previous Query are closed first.
func (s *Statement) Query(ctx context.Context, args ...any) (*sql.Rows, error) {
	if err := s.owner.checkOwner(ctx, "statement.query"); err != nil {
		return nil, err
	}
	s.closeRows()
	s.used = true
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, s.fault("query", err)
	}
	s.rows = rows
	s.owner.stats.addExec()
	return rows, nil
}

// Row is the result of QueryRow. Errors are deferred until Scan.
type Row struct {
	row *sql.Row
	err error
}

// Scan copies the columns of the row into dest.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}

// QueryRow executes the statement expecting at most one row.
func (s *Statement) QueryRow(ctx context.Context, args ...any) *Row {
	if err := s.owner.checkOwner(ctx, "statement.queryRow"); err != nil {
		return &Row{err: err}
	}
	s.closeRows()
	s.used = true
	s.owner.stats.addExec()
	return &Row{row: s.stmt.QueryRowContext(ctx, args...)}
}

func (s *Statement) fault(op string, err error) error {
	return fmt.Errorf("%w: failed to %s cached query %q: %w", ErrStatementFault, op, s.id, err)
}

func (s *Statement) closeRows() {
	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}
}

// reset returns the statement to its prepared, not yet stepped state.
func (s *Statement) reset() {
	s.closeRows()
	s.used = false
}

func (s *Statement) close() error {
	s.reset()
	if err := s.stmt.Close(); err != nil {
		return fmt.Errorf("failed to finalize cached query %q: %w", s.id, err)
	}
	return nil
}
