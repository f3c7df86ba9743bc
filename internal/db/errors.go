package db

import (
	"errors"
	"fmt"

	"github.com/orsinium-labs/enum"
)

var (
	// ErrOpenFailed is returned when one of the connections of a context
	// could not be opened.
	ErrOpenFailed = errors.New("failed to open database connections")
	// ErrCloseFailed is returned when releasing a connection or a cached
	// statement raised an engine fault. The context stays open.
	ErrCloseFailed = errors.New("failed to close database connections")
	// ErrStatementFault wraps engine faults raised while preparing or
	// executing a statement.
	ErrStatementFault = errors.New("statement fault")
	// ErrCallerContract marks a caller bug such as committing a finished
	// transaction.
	ErrCallerContract = errors.New("caller contract violation")

	// ErrContextClosed is returned by operations that need an open context.
	ErrContextClosed = fmt.Errorf("%w: connection context is closed", ErrCallerContract)
	// ErrWrongOwner is returned when owner assertions are enabled and a
	// context is used by a worker other than its owner.
	ErrWrongOwner = fmt.Errorf("%w: connection context used by a foreign worker", ErrCallerContract)
	// ErrTransactionTerminated is returned when a finished transaction is
	// committed or rolled back again.
	ErrTransactionTerminated = fmt.Errorf("%w: transaction is not active", ErrCallerContract)
)

// errorKind classifies errors returned by this package.
type errorKind enum.Member[string]

var (
	KindUnknown        = errorKind{Value: "unknown"}
	KindOpenFailed     = errorKind{Value: "open failed"}
	KindCloseFailed    = errorKind{Value: "close failed"}
	KindStatementFault = errorKind{Value: "statement fault"}
	KindCallerContract = errorKind{Value: "caller contract violation"}
)

// KindOf returns the kind of err by walking its chain.
func KindOf(err error) errorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrCallerContract):
		return KindCallerContract
	case errors.Is(err, ErrCloseFailed):
		return KindCloseFailed
	case errors.Is(err, ErrOpenFailed):
		return KindOpenFailed
	case errors.Is(err, ErrStatementFault):
		return KindStatementFault
	}
	return KindUnknown
}
