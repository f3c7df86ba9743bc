package db

import (
	"github.com/hashicorp/go-multierror"
)

// stmtCache maps caller chosen ids to prepared statements of one context.
type stmtCache struct {
	stmts map[string]*Statement
}

func newStmtCache() *stmtCache {
	return &stmtCache{
		stmts: make(map[string]*Statement),
	}
}

// get returns the statement stored under id, reset for reuse.
func (sc *stmtCache) get(id string) (*Statement, bool) {
	stmt, found := sc.stmts[id]
	if !found {
		return nil, false
	}
	stmt.reset()
	return stmt, true
}

func (sc *stmtCache) put(stmt *Statement) {
	sc.stmts[stmt.id] = stmt
}

func (sc *stmtCache) len() int {
	return len(sc.stmts)
}

// clear finalizes and forgets every cached statement.
func (sc *stmtCache) clear() error {
	var errs *multierror.Error
	for id, stmt := range sc.stmts {
		if err := stmt.close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		delete(sc.stmts, id)
	}
	return errs.ErrorOrNil()
}
