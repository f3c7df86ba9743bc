package repl

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nsqlite/nsqlitectx/internal/nsqlitectx/stress"
	"github.com/nsqlite/nsqlitectx/internal/nsqlitectx/styled"
	"github.com/nsqlite/nsqlitectx/internal/util/numutil"
)

func cmdStress(r *Repl, args []string) {
	workers, iterations := stress.DefaultWorkers, stress.DefaultIterations

	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(r.out, "Invalid workers %q, it must be a positive integer\n", args[0])
			return
		}
		workers = n
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			fmt.Fprintf(r.out, "Invalid iterations %q, it must be a positive integer\n", args[1])
			return
		}
		iterations = n
	}

	result, err := stress.Run(r.ctx, stress.Config{
		Logger:               r.Logger,
		Registry:             r.Registry,
		Path:                 r.Registry.Main().Path(),
		Workers:              workers,
		Iterations:           iterations,
		Out:                  r.out,
		ShowProgress:         true,
		DisableOptimizations: r.conf.DisableOptimizations,
	})
	if err != nil {
		r.printError(".stress", err)
		return
	}

	tw := styled.NewKeyValueWriter("Stress", "Result")
	tw.AppendRows([]table.Row{
		{"Workers", numutil.IntWithCommas(workers)},
		{"Tasks", numutil.IntWithCommas(result.Tasks)},
		{"Queries", numutil.IntWithCommas(result.Queries)},
		{"Contexts opened", numutil.IntWithCommas(result.ContextsCreated)},
		{"Duration", result.Duration.Round(time.Millisecond).String()},
		{"Queries/s", numutil.IntWithCommas(int64(result.QueriesPerSecond()))},
	})

	fmt.Fprintln(r.out, tw.Render())
	styled.OkColor().Fprintln(r.out, "No connection context or statement was shared between workers")
}
