package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bpicori/warden/internal/cli"
	"github.com/bpicori/warden/internal/sandbox"
)

func main() {
	fs := pflag.NewFlagSet("warden", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.Usage = printUsage
	showHelp := fs.BoolP("help", "h", false, "Show help message")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if *showHelp {
		printUsage()
		return
	}

	args := fs.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "run":
		os.Exit(cli.RunCmd(args[1:]))
	case "classify":
		os.Exit(cli.ClassifyCmd(args[1:]))
	case "resolve":
		os.Exit(cli.ResolveCmd(args[1:]))
	case "profile":
		os.Exit(cli.ProfileCmd(args[1:]))
	case sandbox.LandlockHelperCommand:
		// Only returns on failure; success replaces this process.
		os.Exit(sandbox.LandlockHelperMain(args[1:], os.Stderr))
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `warden - Risk classification and OS sandboxing for agent shell commands

Usage:
  warden <command> [options]

Commands:
  run       Classify a command and run it inside the sandbox
  classify  Report the risk level of a command without running it
  resolve   Check paths against the workspace boundary
  profile   Print the sandbox profile a command would run under
  help      Show this help message

Supported platforms: macOS (Seatbelt), Linux (Landlock + seccomp)

Settings are read from --config or $WARDEN_CONFIG (YAML).
Run "warden <command> --help" for details on a command.
`)
}
