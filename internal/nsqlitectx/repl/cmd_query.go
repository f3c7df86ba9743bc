package repl

import (
	"database/sql"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nsqlite/nsqlitectx/internal/db"
	"github.com/nsqlite/nsqlitectx/internal/nsqlitectx/styled"
)

func cmdQuery(r *Repl, input string) {
	c := r.conn()

	typeOfQuery, err := c.DetectQueryType(r.ctx, input)
	if err != nil {
		r.printError("query", err)
		return
	}

	switch typeOfQuery {
	case db.QueryTypeBegin:
		queryBegin(r, c)
	case db.QueryTypeCommit:
		queryCommit(r)
	case db.QueryTypeRollback:
		queryRollback(r)
	case db.QueryTypeWrite:
		queryWrite(r, c, input)
	case db.QueryTypeRead:
		queryRead(r, c, input)
	}
}

func queryBegin(r *Repl, c *db.ConnContext) {
	if r.tx != nil {
		fmt.Fprintln(r.out, "A transaction is already active, COMMIT or ROLLBACK it first")
		return
	}

	tx, err := c.BeginTransaction(r.ctx, true)
	if err != nil {
		r.printError("begin", err)
		return
	}
	r.tx = tx
	styled.OkColor().Fprintln(r.out, "Transaction started")
}

func queryCommit(r *Repl) {
	if r.tx == nil {
		fmt.Fprintln(r.out, "No active transaction")
		return
	}

	err := r.tx.Commit(r.ctx)
	if err != nil {
		r.printError("commit", err)
		return
	}
	r.tx = nil
	styled.OkColor().Fprintln(r.out, "Transaction committed")
}

func queryRollback(r *Repl) {
	if r.tx == nil {
		fmt.Fprintln(r.out, "No active transaction")
		return
	}

	err := r.tx.Rollback(r.ctx)
	r.tx = nil
	if err != nil {
		r.printError("rollback", err)
		return
	}
	styled.OkColor().Fprintln(r.out, "Transaction rolled back")
}

func queryWrite(r *Repl, c *db.ConnContext, input string) {
	rowsAffected, err := c.Exec(r.ctx, input)
	if err != nil {
		r.printError("write", err)
		return
	}

	tw := styled.NewTableWriter()
	tw.AppendHeader(table.Row{"-", "Rows Affected"})
	tw.AppendRow(table.Row{"OK", rowsAffected})
	fmt.Fprintln(r.out, tw.Render())
}

// queryRead runs a read query on the read-only connection, or on the
// read-write one while a console transaction is active so its uncommitted
// writes are visible.
func queryRead(r *Repl, c *db.ConnContext, input string) {
	conn := c.ConnectionRO()
	if r.tx != nil {
		conn = c.ConnectionRW()
	}
	if conn == nil {
		r.printError("read", db.ErrContextClosed)
		return
	}

	rows, err := conn.QueryContext(r.ctx, input)
	if err != nil {
		r.printError("read", fmt.Errorf("%w: %w", db.ErrStatementFault, err))
		return
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		r.printError("read", err)
		return
	}

	tw := styled.NewTableWriter()
	header := table.Row{}
	for _, col := range columns {
		header = append(header, col)
	}
	tw.AppendHeader(header)

	count := 0
	for rows.Next() {
		values, err := scanRow(rows, len(columns))
		if err != nil {
			r.printError("read", err)
			return
		}
		tw.AppendRow(values)
		count++
	}
	if err := rows.Err(); err != nil {
		r.printError("read", err)
		return
	}

	fmt.Fprintln(r.out, tw.Render())
	styled.DimmedColor().Fprintf(r.out, "%d rows\n", count)
}

func scanRow(rows *sql.Rows, columns int) (table.Row, error) {
	values := make([]any, columns)
	scans := make([]any, columns)
	for i := range scans {
		scans[i] = &values[i]
	}
	if err := rows.Scan(scans...); err != nil {
		return nil, fmt.Errorf("%w: %w", db.ErrStatementFault, err)
	}

	row := make(table.Row, columns)
	for i, value := range values {
		switch v := value.(type) {
		case nil:
			row[i] = "NULL"
		case []byte:
			row[i] = string(v)
		default:
			row[i] = v
		}
	}
	return row, nil
}
