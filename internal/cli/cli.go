// Package cli implements the warden subcommands.
package cli

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
)

// Exit codes shared by the subcommands.
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitApproval = 3
	exitTimeout  = 124
)

// streams lets tests capture what a subcommand prints.
type streams struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

func osStreams() streams {
	return streams{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// parseFlags returns (false, code) when the caller should exit: code 0 for
// --help, exitUsage for bad flags.
func parseFlags(fs *pflag.FlagSet, args []string) (bool, int) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, exitOK
		}
		return false, exitUsage
	}
	return true, exitOK
}
