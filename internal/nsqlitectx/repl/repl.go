package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nsqlite/nsqlitectx/internal/db"
	"github.com/nsqlite/nsqlitectx/internal/log"
	"github.com/nsqlite/nsqlitectx/internal/nsqlitectx/config"
	"github.com/nsqlite/nsqlitectx/internal/nsqlitectx/styled"
	"github.com/nsqlite/nsqlitectx/internal/registry"
	"github.com/nsqlite/nsqlitectx/internal/schema"
	"github.com/nsqlite/nsqlitectx/internal/util/sysutil"
	"github.com/peterh/liner"
)

// Deps are the services the REPL runs its commands against.
type Deps struct {
	Logger    log.Logger
	Registry  *registry.Registry
	Templates *schema.Templates
	// Out receives everything the REPL prints. Defaults to os.Stdout.
	Out io.Writer
}

type Repl struct {
	Deps
	conf        config.Config
	ctx         context.Context
	stop        context.CancelFunc
	out         io.Writer
	tx          *db.Transaction
	historyPath string

	// mu is held while a line runs so Shutdown waits for it.
	mu     sync.Mutex
	closed bool
}

func NewRepl(
	ctx context.Context,
	stop context.CancelFunc,
	conf config.Config,
	deps Deps,
) *Repl {
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}

	return &Repl{
		Deps:        deps,
		conf:        conf,
		ctx:         ctx,
		stop:        stop,
		out:         out,
		historyPath: filepath.Join(os.TempDir(), ".nsqlitectx_history"),
	}
}

// Start reads and runs commands until the user quits or the context is
// cancelled.
func (r *Repl) Start() error {
	main := r.Registry.Main()

	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "Connected to %s\n", main.Path())
	fmt.Fprintln(r.out, `Enter ".help" for usage hints and ".quit" or "CTRL+C" to quit`)
	fmt.Fprintln(r.out)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(cmdHelpCompleter)

	if file, err := os.Open(r.historyPath); err == nil {
		_, _ = line.ReadHistory(file)
		file.Close()
	}

	for {
		select {
		case <-r.ctx.Done():
			return nil
		default:
			input, ok := r.prompt(line)
			if !ok {
				r.Shutdown()
				return nil
			}

			if input == "" {
				continue
			}

			if quit := r.runLine(input); quit {
				r.Shutdown()
				return nil
			}
		}
	}
}

// Shutdown rolls back any transaction left open from the console and stops
// the REPL. It waits for a running command to finish and is safe to call
// more than once.
func (r *Repl) Shutdown() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		if r.tx != nil {
			r.tx.Release(r.ctx)
			r.tx = nil
		}
	}
	r.mu.Unlock()
	r.stop()
}

// runLine runs input unless the REPL has been shut down, and reports
// whether the REPL should quit.
func (r *Repl) runLine(input string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return true
	}
	return r.execute(input)
}

// execute runs a single line of input and reports whether the REPL should
// quit.
func (r *Repl) execute(input string) bool {
	fields := strings.Fields(input)
	command, args := fields[0], fields[1:]

	switch command {
	case "exit", ".exit", ".quit":
		return true
	case "clear", ".clear":
		sysutil.ClearTerminal(r.out)
	case "help", ".help":
		cmdHelp(r)
	case ".tables":
		cmdTables(r)
	case ".count":
		cmdCount(r, args)
	case ".reset":
		cmdReset(r, args)
	case ".exists":
		cmdExists(r, args)
	case ".stats":
		cmdStats(r)
	case ".stress":
		cmdStress(r, args)
	case ".template":
		cmdTemplate(r)
	default:
		if strings.HasPrefix(command, ".") {
			fmt.Fprintln(r.out, "Unknown command, type .help for usage hints")
			return false
		}
		cmdQuery(r, input)
	}

	return false
}

// conn returns the connection context of the console.
func (r *Repl) conn() *db.ConnContext {
	return r.Registry.Resolve(r.ctx)
}

// printError prints a failed command and logs it.
func (r *Repl) printError(command string, err error) {
	styled.ErrorColor().Fprintf(r.out, "Error: %s\n", r.cleanError(err.Error()))
	r.Logger.ErrorNs(log.NsCLI, "console command failed", log.KV{
		"command": command,
		"kind":    db.KindOf(err).Value,
		"error":   err.Error(),
	})
}

// cleanError removes the unwanted text from the error message. So, the error
// is more readable.
func (r *Repl) cleanError(errStr string) string {
	errStr = strings.ReplaceAll(errStr, db.ErrStatementFault.Error()+":", "")
	errStr = strings.ReplaceAll(errStr, "failed to prepare statement:", "")
	return strings.TrimSpace(errStr)
}

// prompt shows the prompt and reads the input from the user. It returns
// false when the input is closed or aborted.
func (r *Repl) prompt(line *liner.State) (string, bool) {
	label := "nsqlitectx> "
	if r.tx != nil {
		label = "nsqlitectx(tx)> "
	}

	input, err := line.Prompt(label)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(r.out, "CTRL+C pressed, exiting...")
			return "", false
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		return "", true
	}

	line.AppendHistory(input)
	if file, err := os.Create(r.historyPath); err == nil {
		_, _ = line.WriteHistory(file)
		file.Close()
	}

	return strings.TrimSpace(input), true
}
