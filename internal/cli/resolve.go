package cli

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bpicori/warden/internal/tool"
)

// ResolveCmd executes the "resolve" subcommand: it runs each path through
// the workspace containment check a file tool would apply.
func ResolveCmd(args []string) int {
	return resolveCmd(args, osStreams())
}

func resolveCmd(args []string, s streams) int {
	fs := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	fs.SetOutput(s.stderr)

	var f settingsFlags
	f.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(s.stderr, "Usage: warden resolve [options] <path>...\n\n")
		fmt.Fprintf(s.stderr, "Resolve paths against the workspace and reject escapes.\n\n")
		fs.PrintDefaults()
	}
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	settings, err := f.settings(s.getenv)
	if err != nil {
		fmt.Fprintf(s.stderr, "Error: %v\n", err)
		return exitUsage
	}
	ctx := tool.NewContext(settings.Workspace).
		WithTrustMode(settings.TrustMode).
		WithSandboxPolicy(settings.Policy)

	code := exitOK
	for _, raw := range fs.Args() {
		resolved, err := ctx.ResolvePath(raw)
		if err != nil {
			fmt.Fprintf(s.stderr, "%s: %v\n", raw, err)
			code = exitError
			continue
		}
		fmt.Fprintln(s.stdout, resolved)
	}
	return code
}
