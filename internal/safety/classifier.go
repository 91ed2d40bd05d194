// Package safety labels raw shell commands by risk before they run.
//
// Classification is a fixed, ordered list of string heuristics. The first
// rule that matches decides the level, and the more dangerous checks always
// run before the permissive allowlists.
package safety

import (
	"fmt"
	"strings"
)

// Level orders commands from harmless to destructive. Callers compare
// levels directly: anything above WorkspaceSafe needs a human.
type Level int

const (
	Safe Level = iota
	WorkspaceSafe
	RequiresApproval
	Dangerous
)

func (l Level) String() string {
	switch l {
	case Safe:
		return "safe"
	case WorkspaceSafe:
		return "workspace-safe"
	case RequiresApproval:
		return "requires-approval"
	case Dangerous:
		return "dangerous"
	default:
		return "unknown"
	}
}

// Analysis is the classifier output.
type Analysis struct {
	Level       Level
	Command     string
	Reasons     []string
	Suggestions []string
	// Rule names the check that decided the level.
	Rule string
}

// AutoExecutable reports whether the command may run without confirmation.
func (a Analysis) AutoExecutable() bool {
	return a.Level <= WorkspaceSafe
}

// command is the pre-normalized input every rule sees.
type command struct {
	raw   string
	lower string
	// primary is the lowercased command starting at its first
	// non-assignment word, e.g. "git status" for "FOO=1 git status".
	primary string
	// first is the first word of primary.
	first string
	// tokens are the lowercased whitespace-separated words of raw.
	tokens []string
}

func newCommand(raw string) command {
	lower := strings.ToLower(raw)
	c := command{
		raw:    raw,
		lower:  lower,
		tokens: strings.Fields(lower),
	}
	c.primary = primaryCommand(lower)
	c.first, _, _ = strings.Cut(c.primary, " ")
	return c
}

// primaryCommand drops a leading "env" and NAME=value assignments and
// returns the rest of the command with whitespace collapsed.
func primaryCommand(cmd string) string {
	fields := strings.Fields(cmd)
	i := 0
	if len(fields) > 0 && (fields[0] == "env" || strings.Contains(fields[0], "=")) {
		for i < len(fields) && (fields[i] == "env" || strings.Contains(fields[i], "=")) {
			i++
		}
		if i == len(fields) {
			// Bare "env" or only assignments: treat the command as-is.
			i = 0
		}
	}
	return strings.Join(fields[i:], " ")
}

// PrimaryCommand returns the program name a command line actually runs,
// skipping a leading env invocation and variable assignments. It returns ""
// for a blank command.
func PrimaryCommand(cmd string) string {
	first, _, _ := strings.Cut(primaryCommand(cmd), " ")
	return first
}

// rule is one ordered classification step.
type rule struct {
	name  string
	match func(c command) (Analysis, bool)
}

var rules = []rule{
	{"dangerous-pattern", matchDangerousPattern},
	{"privileged", matchPrivileged},
	{"pipe-to-shell", matchPipeToShell},
	{"safe-allowlist", matchSafe},
	{"workspace-allowlist", matchWorkspaceSafe},
	{"network-tool", matchNetwork},
	{"recursive-rm", matchRecursiveRemove},
	{"git-push", matchGitPush},
}

// Classify labels a shell command. It is pure: identical input always yields
// an identical Analysis.
func Classify(cmd string) Analysis {
	c := newCommand(cmd)
	for _, r := range rules {
		if a, ok := r.match(c); ok {
			a.Command = cmd
			a.Rule = r.name
			return a
		}
	}
	return Analysis{
		Level:   RequiresApproval,
		Command: cmd,
		Reasons: []string{"Unknown command - review before execution"},
		Rule:    "default",
	}
}

func matchDangerousPattern(c command) (Analysis, bool) {
	for _, p := range dangerousPatterns {
		if strings.Contains(c.lower, p.pattern) {
			return Analysis{
				Level:       Dangerous,
				Reasons:     []string{p.reason},
				Suggestions: []string{"Review the command carefully before execution"},
			}, true
		}
	}
	return Analysis{}, false
}

func matchPrivileged(c command) (Analysis, bool) {
	for _, tok := range c.tokens {
		if _, ok := privilegedCommands[tok]; ok {
			return Analysis{
				Level:   RequiresApproval,
				Reasons: []string{fmt.Sprintf("Command uses privileged execution (%s)", tok)},
			}, true
		}
	}
	return Analysis{}, false
}

func matchPipeToShell(c command) (Analysis, bool) {
	fetches := strings.Contains(c.lower, "curl") || strings.Contains(c.lower, "wget")
	if !fetches {
		return Analysis{}, false
	}
	for _, sh := range []string{"| sh", "| bash", "| zsh"} {
		if strings.Contains(c.lower, sh) {
			return Analysis{
				Level:       Dangerous,
				Reasons:     []string{"Piping remote content directly to shell is dangerous"},
				Suggestions: []string{"Download the script first and review it before execution"},
			}, true
		}
	}
	return Analysis{}, false
}

func matchSafe(c command) (Analysis, bool) {
	if !hasCommandPrefix(c.primary, safeCommands) {
		return Analysis{}, false
	}
	return Analysis{Level: Safe, Reasons: []string{"Command is read-only"}}, true
}

func matchWorkspaceSafe(c command) (Analysis, bool) {
	if !hasCommandPrefix(c.primary, workspaceSafeCommands) {
		return Analysis{}, false
	}
	return Analysis{Level: WorkspaceSafe, Reasons: []string{"Command modifies files within workspace"}}, true
}

func matchNetwork(c command) (Analysis, bool) {
	if _, ok := networkCommands[c.first]; !ok {
		return Analysis{}, false
	}
	return Analysis{Level: RequiresApproval, Reasons: []string{"Command may make network requests"}}, true
}

// matchRecursiveRemove looks for -r/-f anywhere in the line, not just in the
// flags, so a path containing "-r" also counts. The outside-workspace check
// is equally coarse.
func matchRecursiveRemove(c command) (Analysis, bool) {
	if c.first != "rm" || !(strings.Contains(c.lower, "-r") || strings.Contains(c.lower, "-f")) {
		return Analysis{}, false
	}
	a := Analysis{
		Level:   RequiresApproval,
		Reasons: []string{"Recursive or forced deletion"},
	}
	if strings.Contains(c.lower, "..") || strings.Contains(c.lower, "~/") || strings.Contains(c.lower, "$home") {
		a.Level = Dangerous
		a.Reasons = append(a.Reasons, "May delete files outside workspace")
		a.Suggestions = []string{"Use relative paths within the workspace"}
	}
	return a, true
}

func matchGitPush(c command) (Analysis, bool) {
	if !strings.Contains(c.lower, "git push") {
		return Analysis{}, false
	}
	reason := "Push will modify remote repository"
	if strings.Contains(c.lower, "--force") || strings.Contains(c.lower, "-f") {
		reason = "Force push can overwrite remote history"
	}
	return Analysis{Level: RequiresApproval, Reasons: []string{reason}}, true
}

// hasCommandPrefix reports whether cmd begins with one of the entries on a
// word boundary.
func hasCommandPrefix(cmd string, entries []string) bool {
	for _, e := range entries {
		if cmd == e || strings.HasPrefix(cmd, e+" ") {
			return true
		}
	}
	return false
}
