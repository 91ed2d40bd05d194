// Package tool carries the per-invocation context handed to file and shell
// tools, and the small closed sets that describe what a tool may do.
package tool

import (
	"path/filepath"
	"slices"

	"github.com/bpicori/warden/internal/pathguard"
	"github.com/bpicori/warden/internal/policy"
	"github.com/bpicori/warden/internal/safety"
)

// Capability describes one kind of effect a tool can have.
type Capability int

const (
	CapReadOnly Capability = iota
	CapWritesFiles
	CapExecutesCode
	CapNetwork
	CapSandboxable
	CapRequiresApproval
)

func (c Capability) String() string {
	switch c {
	case CapReadOnly:
		return "read-only"
	case CapWritesFiles:
		return "writes-files"
	case CapExecutesCode:
		return "executes-code"
	case CapNetwork:
		return "network"
	case CapSandboxable:
		return "sandboxable"
	case CapRequiresApproval:
		return "requires-approval"
	default:
		return "unknown"
	}
}

// ApprovalLevel says how much confirmation a call needs. The zero value is
// Auto.
type ApprovalLevel int

const (
	ApprovalAuto ApprovalLevel = iota
	ApprovalSuggest
	ApprovalRequired
)

func (a ApprovalLevel) String() string {
	switch a {
	case ApprovalAuto:
		return "auto"
	case ApprovalSuggest:
		return "suggest"
	case ApprovalRequired:
		return "required"
	default:
		return "unknown"
	}
}

// Spec is the static description of a tool.
type Spec struct {
	Name         string
	Capabilities []Capability
	Approval     ApprovalLevel
}

// ShellSpec describes the shell command tool. Its approval depends
// entirely on the classified command.
var ShellSpec = Spec{
	Name:         "exec_shell",
	Capabilities: []Capability{CapExecutesCode, CapSandboxable},
}

func (s Spec) Has(c Capability) bool {
	return slices.Contains(s.Capabilities, c)
}

// ApprovalFor combines the tool's own approval level with the risk of the
// command it is about to run. The stricter of the two wins.
func (s Spec) ApprovalFor(level safety.Level) ApprovalLevel {
	approval := s.Approval
	if s.Has(CapRequiresApproval) {
		approval = ApprovalRequired
	}
	if level > safety.WorkspaceSafe {
		approval = ApprovalRequired
	}
	return approval
}

// Context is what every tool call receives from the agent loop.
type Context struct {
	Workspace string
	TrustMode bool
	Policy    policy.SandboxPolicy
	NotesPath string
}

// NewContext builds a Context rooted at workspace with the default policy.
func NewContext(workspace string) Context {
	return Context{
		Workspace: workspace,
		Policy:    policy.Default(),
		NotesPath: filepath.Join(workspace, ".minimax", "notes.md"),
	}
}

func (c Context) WithTrustMode(trust bool) Context {
	c.TrustMode = trust
	return c
}

func (c Context) WithSandboxPolicy(p policy.SandboxPolicy) Context {
	c.Policy = p
	return c
}

// ResolvePath is the containment check every file tool runs before I/O.
func (c Context) ResolvePath(raw string) (string, error) {
	return pathguard.Guard{Workspace: c.Workspace, TrustMode: c.TrustMode}.Resolve(raw)
}
