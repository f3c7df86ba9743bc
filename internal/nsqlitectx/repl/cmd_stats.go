package repl

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nsqlite/nsqlitectx/internal/nsqlitectx/styled"
	"github.com/nsqlite/nsqlitectx/internal/util/numutil"
)

func cmdStats(r *Repl) {
	c := r.conn()
	stats := c.Stats()

	tw := styled.NewKeyValueWriter("Counter", "Value")
	tw.AppendRows([]table.Row{
		{"Cache hits", numutil.IntWithCommas(stats.CacheHits)},
		{"Cache misses", numutil.IntWithCommas(stats.CacheMisses)},
		{"Prepared statements", numutil.IntWithCommas(stats.Prepares)},
		{"Cached statements", numutil.IntWithCommas(stats.CachedStatements)},
		{"Executions", numutil.IntWithCommas(stats.Execs)},
		{"Begins", numutil.IntWithCommas(stats.Begins)},
		{"Joins", numutil.IntWithCommas(stats.Joins)},
		{"Commits", numutil.IntWithCommas(stats.Commits)},
		{"Rollbacks", numutil.IntWithCommas(stats.Rollbacks)},
	})
	tw.AppendFooter(table.Row{"Registered contexts", numutil.IntWithCommas(r.Registry.Len())})

	fmt.Fprintln(r.out, tw.Render())
	styled.DimmedColor().Fprintf(r.out, "Database: %s\n", c.Path())
	styled.DimmedColor().Fprintf(r.out, "Owner: %s\n", c.Owner())
	fmt.Fprintln(r.out)
}
