// Package sandbox turns a command request plus a sandbox policy into a
// concrete execution plan for the host's OS sandbox, runs it, and diagnoses
// failures caused by the sandbox itself.
package sandbox

import (
	"maps"
	"strings"
	"time"

	"github.com/bpicori/warden/internal/policy"
)

// Type identifies the OS sandbox an ExecEnv was prepared for.
type Type int

const (
	TypeNone Type = iota
	TypeSeatbelt
	TypeLandlock
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeSeatbelt:
		return "macos-seatbelt"
	case TypeLandlock:
		return "linux-landlock"
	default:
		return "unknown"
	}
}

// ParseType accepts the String form or the short names used in config
// files ("seatbelt", "landlock").
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off":
		return TypeNone, true
	case "seatbelt", "macos-seatbelt":
		return TypeSeatbelt, true
	case "landlock", "linux-landlock":
		return TypeLandlock, true
	}
	return TypeNone, false
}

// CommandSpec is what a caller asks to run. The With* methods return
// modified copies; a spec is never mutated after construction.
type CommandSpec struct {
	Program       string
	Args          []string
	Cwd           string
	Env           map[string]string
	Timeout       time.Duration
	Policy        policy.SandboxPolicy
	Justification string
}

// Shell runs script through "sh -c".
func Shell(script, cwd string, timeout time.Duration) CommandSpec {
	return CommandSpec{
		Program: "sh",
		Args:    []string{"-c", script},
		Cwd:     cwd,
		Timeout: timeout,
		Policy:  policy.Default(),
	}
}

// Program runs a binary directly without a shell.
func Program(program string, args []string, cwd string, timeout time.Duration) CommandSpec {
	return CommandSpec{
		Program: program,
		Args:    append([]string(nil), args...),
		Cwd:     cwd,
		Timeout: timeout,
		Policy:  policy.Default(),
	}
}

func (s CommandSpec) WithPolicy(p policy.SandboxPolicy) CommandSpec {
	s.Policy = p
	return s
}

// WithEnv replaces the environment overlay.
func (s CommandSpec) WithEnv(env map[string]string) CommandSpec {
	s.Env = maps.Clone(env)
	return s
}

func (s CommandSpec) WithEnvVar(key, value string) CommandSpec {
	env := make(map[string]string, len(s.Env)+1)
	maps.Copy(env, s.Env)
	env[key] = value
	s.Env = env
	return s
}

func (s CommandSpec) WithJustification(why string) CommandSpec {
	s.Justification = why
	return s
}

// DisplayCommand is the command as a user would have typed it: the script
// for "sh -c" specs, otherwise the joined argv.
func (s CommandSpec) DisplayCommand() string {
	if s.Program == "sh" && len(s.Args) >= 2 && s.Args[0] == "-c" {
		return s.Args[1]
	}
	return strings.Join(append([]string{s.Program}, s.Args...), " ")
}

func (s CommandSpec) argv() []string {
	return append([]string{s.Program}, s.Args...)
}

// ExecEnv is the resolved plan handed to the process spawner. It is built
// once per Prepare call and consumed immediately.
type ExecEnv struct {
	// Command is the final argv, possibly prefixed with sandbox wrapper
	// arguments.
	Command []string
	Cwd     string
	// Env is an overlay on top of the spawner's environment.
	Env         map[string]string
	Timeout     time.Duration
	SandboxType Type
	// Policy is the policy the env was derived from, kept for diagnostics.
	Policy policy.SandboxPolicy
}

// Program is the binary to execute. An empty command falls back to "sh".
func (e ExecEnv) Program() string {
	if len(e.Command) == 0 {
		return "sh"
	}
	return e.Command[0]
}

func (e ExecEnv) Args() []string {
	if len(e.Command) <= 1 {
		return nil
	}
	return e.Command[1:]
}

func (e ExecEnv) IsSandboxed() bool {
	return e.SandboxType != TypeNone
}
