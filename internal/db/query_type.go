package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/orsinium-labs/enum"
)

// queryType represents the type of a given SQLite query.
type queryType enum.Member[string]

var (
	QueryTypeUnknown  = queryType{Value: "unknown"}
	QueryTypeRead     = queryType{Value: "read"}
	QueryTypeWrite    = queryType{Value: "write"}
	QueryTypeBegin    = queryType{Value: "begin"}
	QueryTypeCommit   = queryType{Value: "commit"}
	QueryTypeRollback = queryType{Value: "rollback"}
)

// DetectQueryType detects the type of query between read, write, begin,
// commit, and rollback. The query is compiled on the read-only connection
// without being executed.
func (c *ConnContext) DetectQueryType(ctx context.Context, query string) (queryType, error) {
	trimmed := strings.ToLower(stripLeadingComments(query))

	switch {
	case strings.HasPrefix(trimmed, "begin"):
		return QueryTypeBegin, nil
	case strings.HasPrefix(trimmed, "commit"), strings.HasPrefix(trimmed, "end"):
		return QueryTypeCommit, nil
	case strings.HasPrefix(trimmed, "rollback"):
		return QueryTypeRollback, nil
	}

	if err := c.checkOwner(ctx, "detectQueryType"); err != nil {
		return QueryTypeUnknown, err
	}
	if c.ro == nil {
		return QueryTypeUnknown, ErrContextClosed
	}

	isReadOnly := false
	err := c.ro.Raw(func(driverConn any) error {
		sqliteConn, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return errors.New("connection is not a sqlite3 connection")
		}
		drvStmt, err := sqliteConn.Prepare(query)
		if err != nil {
			return err
		}
		defer drvStmt.Close()
		isReadOnly = drvStmt.(*sqlite3.SQLiteStmt).Readonly()
		return nil
	})
	if err != nil {
		return QueryTypeUnknown, fmt.Errorf("%w: failed to prepare statement: %w", ErrStatementFault, err)
	}

	if isReadOnly {
		return QueryTypeRead, nil
	}
	return QueryTypeWrite, nil
}

// stripLeadingComments removes the whitespace and the "--" and "/* */"
// comments that precede the first keyword of query.
func stripLeadingComments(query string) string {
	for {
		query = strings.TrimSpace(query)
		switch {
		case strings.HasPrefix(query, "--"):
			_, rest, found := strings.Cut(query, "\n")
			if !found {
				return ""
			}
			query = rest
		case strings.HasPrefix(query, "/*"):
			_, rest, found := strings.Cut(query[2:], "*/")
			if !found {
				return ""
			}
			query = rest
		default:
			return query
		}
	}
}
