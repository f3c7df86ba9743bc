package sysutil

import (
	"io"
	"os/exec"
	"runtime"
	"strings"
)

// ClearTerminal clears the terminal screen in supported operating systems,
// writing the control sequence to out.
func ClearTerminal(out io.Writer) {
	goos := runtime.GOOS

	var cmd *exec.Cmd
	switch {
	case strings.HasPrefix(goos, "windows"):
		cmd = exec.Command("cmd", "/c", "cls")
	case strings.HasPrefix(goos, "linux"), strings.HasPrefix(goos, "darwin"):
		cmd = exec.Command("clear")
	default:
		return
	}

	cmd.Stdout = out
	_ = cmd.Run()
}
