package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bpicori/warden/internal/safety"
	"github.com/bpicori/warden/internal/tool"
)

type classifyOutput struct {
	Command     string   `json:"command"`
	Level       string   `json:"level"`
	Rule        string   `json:"rule"`
	Category    string   `json:"category"`
	Approval    string   `json:"approval"`
	Reasons     []string `json:"reasons"`
	Suggestions []string `json:"suggestions"`
}

// ClassifyCmd executes the "classify" subcommand.
func ClassifyCmd(args []string) int {
	return classifyCmd(args, osStreams())
}

func classifyCmd(args []string, s streams) int {
	fs := pflag.NewFlagSet("classify", pflag.ContinueOnError)
	fs.SetOutput(s.stderr)
	fs.SetInterspersed(false)
	asJSON := fs.Bool("json", false, "Print the analysis as JSON")
	fs.Usage = func() {
		fmt.Fprintf(s.stderr, "Usage: warden classify [--json] -- <command...>\n\n")
		fmt.Fprintf(s.stderr, "Report the risk level of a shell command without running it.\n\n")
		fs.PrintDefaults()
	}
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}

	command := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(command) == "" {
		fmt.Fprintf(s.stderr, "Error: no command specified\n\n")
		fs.Usage()
		return exitUsage
	}

	analysis := safety.Classify(command)
	out := classifyOutput{
		Command:     analysis.Command,
		Level:       analysis.Level.String(),
		Rule:        analysis.Rule,
		Category:    safety.Categorize(command).String(),
		Approval:    tool.ShellSpec.ApprovalFor(analysis.Level).String(),
		Reasons:     nonNil(analysis.Reasons),
		Suggestions: nonNil(analysis.Suggestions),
	}

	if *asJSON {
		enc := json.NewEncoder(s.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(s.stderr, "Error: %v\n", err)
			return exitError
		}
		return exitOK
	}

	fmt.Fprintf(s.stdout, "level: %s\n", out.Level)
	fmt.Fprintf(s.stdout, "rule: %s\n", out.Rule)
	fmt.Fprintf(s.stdout, "category: %s\n", out.Category)
	fmt.Fprintf(s.stdout, "approval: %s\n", out.Approval)
	for _, reason := range out.Reasons {
		fmt.Fprintf(s.stdout, "reason: %s\n", reason)
	}
	for _, suggestion := range out.Suggestions {
		fmt.Fprintf(s.stdout, "suggestion: %s\n", suggestion)
	}
	return exitOK
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
