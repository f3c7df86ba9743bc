package repl

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nsqlite/nsqlitectx/internal/nsqlitectx/styled"
	"github.com/nsqlite/nsqlitectx/internal/schema"
	"github.com/nsqlite/nsqlitectx/internal/util/numutil"
)

const tablesQuery = "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name"

func cmdTables(r *Repl) {
	stmt, err := r.conn().CacheQuery(r.ctx, "cli.tables", tablesQuery, false)
	if err != nil {
		r.printError(".tables", err)
		return
	}
	if stmt == nil {
		fmt.Fprintln(r.out, "The database is not open")
		return
	}

	rows, err := stmt.Query(r.ctx)
	if err != nil {
		r.printError(".tables", err)
		return
	}
	defer rows.Close()

	tw := styled.NewTableWriter()
	tw.AppendHeader(table.Row{"Table"})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			r.printError(".tables", err)
			return
		}
		tw.AppendRow(table.Row{name})
	}
	if err := rows.Err(); err != nil {
		r.printError(".tables", err)
		return
	}

	fmt.Fprintln(r.out, tw.Render())
}

func cmdCount(r *Repl, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(r.out, "No table name given. Usage: .count <table_name>")
		return
	}

	conn := r.conn().ConnectionRO()
	if conn == nil {
		fmt.Fprintln(r.out, "The database is not open")
		return
	}

	var count int64
	err := conn.QueryRowContext(r.ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", args[0])).Scan(&count)
	if err != nil {
		r.printError(".count", err)
		return
	}

	fmt.Fprintf(r.out, "%s rows\n", numutil.IntWithCommas(count))
}

func cmdReset(r *Repl, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(r.out, "No table name given. Usage: .reset <table_name>")
		return
	}
	table := args[0]

	if _, err := schema.TableScript(schema.TablesFS, table); err != nil {
		fmt.Fprintf(r.out, "Can't find table sql script for %s\n", table)
		return
	}

	c := r.conn()
	tx, err := c.BeginTransaction(r.ctx, true)
	if err != nil {
		r.printError(".reset", err)
		return
	}
	defer tx.Release(r.ctx)

	if err := schema.ResetTable(r.ctx, c.ConnectionRW(), schema.TablesFS, table); err != nil {
		r.printError(".reset", err)
		return
	}
	if err := tx.Commit(r.ctx); err != nil {
		r.printError(".reset", err)
		return
	}

	styled.OkColor().Fprintf(r.out, "Table %s recreated and reset to default\n", table)
}

func cmdExists(r *Repl, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(r.out, "Usage: .exists <table_name> <id> [column]")
		return
	}

	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(r.out, "Invalid id %q, it must be an integer\n", args[1])
		return
	}
	column := "id"
	if len(args) > 2 {
		column = args[2]
	}

	exists, err := r.conn().RowIDExists(r.ctx, args[0], id, column)
	if err != nil {
		r.printError(".exists", err)
		return
	}

	if exists {
		fmt.Fprintf(r.out, "Row %d exists in %s\n", id, args[0])
		return
	}
	fmt.Fprintf(r.out, "Row %d does not exist in %s\n", id, args[0])
}

func cmdTemplate(r *Repl) {
	if r.Templates == nil {
		fmt.Fprintln(r.out, "No template database configured, use --template-path to set one")
		return
	}

	path, err := r.Templates.Path()
	if err != nil {
		r.printError(".template", err)
		return
	}
	fmt.Fprintln(r.out, path)
}
