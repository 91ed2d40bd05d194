package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bpicori/warden/internal/config"
	"github.com/bpicori/warden/internal/toolerr"
	"github.com/bpicori/warden/pkg/warden"
)

type runFlags struct {
	settingsFlags
	dir           string
	approve       bool
	justification string
}

func newRunFlagSet(s streams) (*pflag.FlagSet, *runFlags) {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.SetOutput(s.stderr)
	fs.SetInterspersed(false)

	f := &runFlags{}
	f.register(fs)
	fs.StringVarP(&f.dir, "dir", "C", "", "Working directory, relative to the workspace (default: workspace root)")
	fs.BoolVar(&f.approve, "approve", false, "Confirm a command that requires approval")
	fs.StringVar(&f.justification, "justification", "", "Why the command needs to run, recorded in the log")

	fs.Usage = func() {
		fmt.Fprintf(s.stderr, "Usage: warden run [options] -- <command> [args...]\n\n")
		fmt.Fprintf(s.stderr, "Classify a command, then run it inside the OS sandbox.\n")
		fmt.Fprintf(s.stderr, "A single argument is run through sh -c.\n\n")
		fmt.Fprintf(s.stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(s.stderr, "\nExamples:\n")
		fmt.Fprintf(s.stderr, "  warden run -- 'go test ./...'\n")
		fmt.Fprintf(s.stderr, "  warden run --policy read-only -- ls -la\n")
		fmt.Fprintf(s.stderr, "  warden run --network --allow-domain proxy.golang.org -- go mod download\n")
		fmt.Fprintf(s.stderr, "  warden run --approve -- 'rm -rf build'\n")
	}
	return fs, f
}

// buildRequest constructs a warden run request from resolved settings.
func buildRequest(f *runFlags, settings config.Settings, command []string) warden.RunRequest {
	return warden.RunRequest{
		Command:       append([]string{}, command...),
		Workspace:     settings.Workspace,
		WorkDir:       f.dir,
		TrustMode:     settings.TrustMode,
		Policy:        settings.Policy,
		Timeout:       settings.Timeout,
		AllowDomains:  append([]string{}, settings.Network.Allow...),
		DenyDomains:   append([]string{}, settings.Network.Deny...),
		Backend:       settings.Backend,
		Approved:      f.approve,
		Justification: f.justification,
	}
}

// RunCmd executes the "run" subcommand.
func RunCmd(args []string) int {
	return runCmd(args, osStreams())
}

func runCmd(args []string, s streams) int {
	fs, f := newRunFlagSet(s)
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}

	command := fs.Args()
	if len(command) == 0 {
		fmt.Fprintf(s.stderr, "Error: no command specified (pass it after --)\n\n")
		fs.Usage()
		return exitUsage
	}

	settings, err := f.settings(s.getenv)
	if err != nil {
		fmt.Fprintf(s.stderr, "Error: %v\n", err)
		return exitUsage
	}
	logger := newLogger(s.stderr, settings.LogLevel)

	res, err := warden.Run(buildRequest(f, settings, command), warden.RunIO{
		Context:        context.Background(),
		Stdin:          s.stdin,
		Stdout:         s.stdout,
		Stderr:         s.stderr,
		ForwardSignals: true,
		Logger:         logger,
	})
	var approvalErr *warden.ApprovalRequiredError
	switch {
	case errors.As(err, &approvalErr):
		fmt.Fprintf(s.stderr, "warden: %v\n", approvalErr)
		for _, reason := range approvalErr.Analysis.Reasons {
			fmt.Fprintf(s.stderr, "  reason: %s\n", reason)
		}
		for _, suggestion := range approvalErr.Analysis.Suggestions {
			fmt.Fprintf(s.stderr, "  suggestion: %s\n", suggestion)
		}
		fmt.Fprintf(s.stderr, "Re-run with --approve to execute it anyway.\n")
		return exitApproval
	case errors.Is(err, toolerr.ErrTimeout):
		fmt.Fprintf(s.stderr, "Error: %v\n", err)
		return exitTimeout
	case err != nil:
		fmt.Fprintf(s.stderr, "Error: %v\n", err)
		return exitError
	}

	if res.SandboxDenied {
		fmt.Fprintf(s.stderr, "warden: %s\n", res.DenialMessage)
	}
	if res.ProxyBlocked > 0 {
		fmt.Fprintf(s.stderr, "warden: %d network request(s) blocked by domain policy\n", res.ProxyBlocked)
	}
	logger.Debug("command finished",
		"exit_code", res.ExitCode, "status", res.Status,
		"duration", res.Duration, "sandbox", res.SandboxType)
	return res.ExitCode
}
