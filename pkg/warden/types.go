package warden

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bpicori/warden/internal/policy"
	"github.com/bpicori/warden/internal/safety"
	"github.com/bpicori/warden/internal/sandbox"
)

// Re-exported so callers outside this module can build requests.
type (
	Policy      = policy.SandboxPolicy
	Analysis    = safety.Analysis
	Level       = safety.Level
	SandboxType = sandbox.Type
	Status      = sandbox.Status
)

const (
	Safe             = safety.Safe
	WorkspaceSafe    = safety.WorkspaceSafe
	RequiresApproval = safety.RequiresApproval
	Dangerous        = safety.Dangerous
)

var (
	DefaultPolicy    = policy.Default
	ReadOnlyPolicy   = policy.ReadOnly
	FullAccessPolicy = policy.DangerFullAccess
	ParsePolicy      = policy.Parse
)

// RunRequest describes a command to classify and run.
type RunRequest struct {
	// Command is run through sh -c when it has a single element and
	// executed directly otherwise.
	Command []string

	Workspace string
	// WorkDir is resolved against Workspace and must stay inside it
	// unless TrustMode is set.
	WorkDir   string
	TrustMode bool

	Policy  Policy
	Timeout time.Duration
	Env     map[string]string

	AllowDomains []string
	DenyDomains  []string

	// Backend forces a sandbox backend; nil picks the platform default.
	Backend *SandboxType

	// Approved confirms a command whose classification requires approval.
	Approved      bool
	Justification string

	ShowProfile bool
}

// RunIO controls runtime IO and process behavior.
type RunIO struct {
	Context context.Context

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// HelperBinaryPath is the binary re-executed as the Landlock helper.
	// If empty, the running executable is used.
	HelperBinaryPath string

	ForwardSignals bool
	Logger         *slog.Logger
}

// RunResult contains execution metadata.
type RunResult struct {
	ExitCode int
	Status   Status
	Stdout   string
	Stderr   string
	Duration time.Duration

	Analysis Analysis

	Sandboxed     bool
	SandboxType   SandboxType
	SandboxDenied bool
	DenialMessage string
	ProxyBlocked  int64

	GeneratedProfile string
}

// ApprovalRequiredError is returned by Run when the command needs a human
// to confirm it and RunRequest.Approved is not set.
type ApprovalRequiredError struct {
	Analysis Analysis
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("%s command needs approval: %s", e.Analysis.Level, e.Analysis.Command)
}
