package cli

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bpicori/warden/pkg/warden"
)

// ProfileCmd executes the "profile" subcommand, printing the sandbox
// artifact a command would run under without running anything.
func ProfileCmd(args []string) int {
	return profileCmd(args, osStreams())
}

func profileCmd(args []string, s streams) int {
	fs := pflag.NewFlagSet("profile", pflag.ContinueOnError)
	fs.SetOutput(s.stderr)

	var f settingsFlags
	f.register(fs)
	dir := fs.StringP("dir", "C", "", "Working directory, relative to the workspace (default: workspace root)")
	fs.Usage = func() {
		fmt.Fprintf(s.stderr, "Usage: warden profile [options]\n\n")
		fmt.Fprintf(s.stderr, "Print the Seatbelt profile and parameters, or the Landlock rules,\n")
		fmt.Fprintf(s.stderr, "that a command would run under.\n\n")
		fs.PrintDefaults()
		fmt.Fprintf(s.stderr, "\nExamples:\n")
		fmt.Fprintf(s.stderr, "  warden profile --backend seatbelt --network\n")
		fmt.Fprintf(s.stderr, "  warden profile --backend landlock --policy read-only\n")
	}
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}

	settings, err := f.settings(s.getenv)
	if err != nil {
		fmt.Fprintf(s.stderr, "Error: %v\n", err)
		return exitUsage
	}

	res, err := warden.Run(warden.RunRequest{
		Workspace:   settings.Workspace,
		WorkDir:     *dir,
		TrustMode:   settings.TrustMode,
		Policy:      settings.Policy,
		Backend:     settings.Backend,
		ShowProfile: true,
	}, warden.RunIO{Logger: newLogger(s.stderr, settings.LogLevel)})
	if err != nil {
		fmt.Fprintf(s.stderr, "Error: %v\n", err)
		return exitError
	}
	fmt.Fprint(s.stdout, res.GeneratedProfile)
	return exitOK
}
