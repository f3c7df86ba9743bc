package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/nsqlite/nsqlitectx/internal/log"
	"github.com/orsinium-labs/enum"
)

// txState represents the state of a Transaction.
type txState enum.Member[string]

var (
	TxStateInactive   = txState{Value: "inactive"}
	TxStateActive     = txState{Value: "active"}
	TxStateJoined     = txState{Value: "joined"}
	TxStateCommitted  = txState{Value: "committed"}
	TxStateRolledBack = txState{Value: "rolledBack"}
)

// Transaction guards a transaction on one connection of a ConnContext.
//
// If a transaction was already active on the connection when the guard was
// created, the guard joins it: committing or releasing a joined guard ends
// the guard but leaves the enclosing transaction to its owner.
//
// Release must be called once the guard is no longer needed, usually with
// defer. A guard that owns an uncommitted transaction rolls it back.
type Transaction struct {
	owner *ConnContext
	conn  *sql.Conn
	state txState
}

func newTransaction(owner *ConnContext, conn *sql.Conn) *Transaction {
	return &Transaction{
		owner: owner,
		conn:  conn,
		state: TxStateInactive,
	}
}

// State returns the current state of the guard.
func (tx *Transaction) State() txState {
	return tx.state
}

// IsActive reports whether the guard still covers an open transaction,
// either its own or a joined one.
func (tx *Transaction) IsActive() bool {
	return tx.state == TxStateActive || tx.state == TxStateJoined
}

// IsJoined reports whether the guard joined an enclosing transaction.
func (tx *Transaction) IsJoined() bool {
	return tx.state == TxStateJoined
}

func (tx *Transaction) beginIfNoActiveTransaction(ctx context.Context) error {
	active, err := IsTransactionActive(ctx, tx.conn)
	if err != nil {
		return err
	}

	if active {
		tx.state = TxStateJoined
		tx.owner.stats.addJoin()
		return nil
	}

	if _, err := tx.conn.ExecContext(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrStatementFault, err)
	}
	tx.state = TxStateActive
	tx.owner.stats.addBegin()
	return nil
}

// Commit commits the transaction. A joined guard only ends itself.
func (tx *Transaction) Commit(ctx context.Context) error {
	switch tx.state {
	case TxStateJoined:
		tx.state = TxStateCommitted
		return nil
	case TxStateActive:
	default:
		return fmt.Errorf("%w: commit in state %s", ErrTransactionTerminated, tx.state.Value)
	}

	if _, err := tx.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", ErrStatementFault, err)
	}
	tx.state = TxStateCommitted
	tx.owner.stats.addCommit()
	return nil
}

// Rollback rolls back the transaction. A joined guard only ends itself.
func (tx *Transaction) Rollback(ctx context.Context) error {
	switch tx.state {
	case TxStateJoined:
		tx.state = TxStateRolledBack
		return nil
	case TxStateActive:
	default:
		return fmt.Errorf("%w: rollback in state %s", ErrTransactionTerminated, tx.state.Value)
	}

	return tx.rollback(ctx)
}

func (tx *Transaction) rollback(ctx context.Context) error {
	// The engine may have rolled back on its own after a failed statement.
	active, err := IsTransactionActive(ctx, tx.conn)
	if err == nil && !active {
		tx.state = TxStateRolledBack
		return nil
	}

	if _, err := tx.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		return fmt.Errorf("%w: failed to roll back transaction: %w", ErrStatementFault, err)
	}
	tx.state = TxStateRolledBack
	tx.owner.stats.addRollback()
	return nil
}

// Release ends the guard. If it owns a transaction that was not committed
// the transaction is rolled back, even if ctx is already cancelled. Calling
// Release on a terminated guard does nothing.
func (tx *Transaction) Release(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	switch tx.state {
	case TxStateJoined:
		tx.state = TxStateRolledBack
	case TxStateActive:
		if err := tx.rollback(ctx); err != nil {
			tx.owner.Logger.ErrorNs(log.NsDatabase, "failed to roll back abandoned transaction", log.KV{
				"path":  tx.owner.path,
				"error": err.Error(),
			})
		}
	}
}

// IsTransactionActive reports whether conn is inside a transaction.
func IsTransactionActive(ctx context.Context, conn *sql.Conn) (bool, error) {
	if conn == nil {
		return false, ErrContextClosed
	}

	active := false
	err := conn.Raw(func(driverConn any) error {
		sqliteConn, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return errors.New("connection is not a sqlite3 connection")
		}
		active = !sqliteConn.AutoCommit()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: failed to read transaction state: %w", ErrStatementFault, err)
	}
	return active, nil
}
