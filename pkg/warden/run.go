// Package warden classifies shell commands by risk and runs them inside
// the platform sandbox.
package warden

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/bpicori/warden/internal/pathguard"
	"github.com/bpicori/warden/internal/proxy"
	"github.com/bpicori/warden/internal/safety"
	"github.com/bpicori/warden/internal/sandbox"
	"github.com/bpicori/warden/internal/tool"
	"github.com/bpicori/warden/internal/toolerr"
)

// Classify labels a shell command without running it.
func Classify(command string) Analysis {
	return safety.Classify(command)
}

// Resolve applies the workspace containment check a file tool uses.
func Resolve(path, workspace string, trustMode bool) (string, error) {
	return pathguard.Resolve(path, workspace, trustMode)
}

// PathEscapesWorkspace is a string-only pre-check. Resolve gives the real
// answer.
func PathEscapesWorkspace(path, workspace string) bool {
	return safety.PathEscapesWorkspace(path, workspace)
}

// Run validates, classifies and executes a command request. With
// req.ShowProfile set it only renders the sandbox profile. A command that
// needs approval is refused with *ApprovalRequiredError unless
// req.Approved is set. A timeout returns the partial result together with
// an error matching toolerr.ErrTimeout.
func Run(req RunRequest, ioCfg RunIO) (RunResult, error) {
	if err := req.Policy.Validate(); err != nil {
		return RunResult{}, toolerr.InvalidInput(err.Error())
	}
	rules := proxy.Rules{
		Allow: append([]string{}, req.AllowDomains...),
		Deny:  append([]string{}, req.DenyDomains...),
	}
	if !rules.Empty() && !req.Policy.HasNetworkAccess() {
		return RunResult{}, toolerr.InvalidInput("domain rules require a sandbox policy with network access")
	}

	workspace := req.Workspace
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return RunResult{}, toolerr.ExecutionFailed("resolve workspace", err)
		}
		workspace = wd
	}
	cwd := workspace
	if req.WorkDir != "" {
		resolved, err := pathguard.Resolve(req.WorkDir, workspace, req.TrustMode)
		if err != nil {
			return RunResult{}, err
		}
		cwd = resolved
	}

	if req.ShowProfile {
		return RunResult{GeneratedProfile: describe(newManager(req, ioCfg), req.Policy, cwd)}, nil
	}
	if len(req.Command) == 0 || strings.TrimSpace(req.Command[0]) == "" {
		return RunResult{}, toolerr.MissingField("command")
	}

	var spec sandbox.CommandSpec
	if len(req.Command) == 1 {
		spec = sandbox.Shell(req.Command[0], cwd, req.Timeout)
	} else {
		spec = sandbox.Program(req.Command[0], req.Command[1:], cwd, req.Timeout)
	}
	spec = spec.WithPolicy(req.Policy).WithEnv(req.Env).WithJustification(req.Justification)

	analysis := safety.Classify(spec.DisplayCommand())
	if tool.ShellSpec.ApprovalFor(analysis.Level) == tool.ApprovalRequired && !req.Approved {
		return RunResult{Analysis: analysis}, &ApprovalRequiredError{Analysis: analysis}
	}
	logger := ioCfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("classified command",
		"level", analysis.Level, "rule", analysis.Rule, "justification", req.Justification)
	if analysis.Level == safety.Dangerous {
		logger.Warn("running dangerous command on explicit approval", "command", analysis.Command)
	}

	env, err := newManager(req, ioCfg).Prepare(spec)
	if err != nil {
		return RunResult{Analysis: analysis}, err
	}

	ctx := ioCfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := sandbox.Run(ctx, env, sandbox.RunOptions{
		Stdin:          ioCfg.Stdin,
		Stdout:         ioCfg.Stdout,
		Stderr:         ioCfg.Stderr,
		Network:        rules,
		ForwardSignals: ioCfg.ForwardSignals,
		Logger:         logger,
	})
	return RunResult{
		ExitCode:      res.ExitCode,
		Status:        res.Status,
		Stdout:        res.Stdout,
		Stderr:        res.Stderr,
		Duration:      res.Duration,
		Analysis:      analysis,
		Sandboxed:     res.Sandboxed,
		SandboxType:   res.SandboxType,
		SandboxDenied: res.SandboxDenied,
		DenialMessage: res.DenialMessage,
		ProxyBlocked:  res.ProxyBlocked,
	}, err
}

func newManager(req RunRequest, ioCfg RunIO) *sandbox.Manager {
	var opts []sandbox.Option
	if ioCfg.Logger != nil {
		opts = append(opts, sandbox.WithLogger(ioCfg.Logger))
	}
	if req.Backend != nil {
		opts = append(opts, sandbox.WithForcedSandbox(*req.Backend))
	}
	if ioCfg.HelperBinaryPath != "" {
		opts = append(opts, sandbox.WithHelperPath(ioCfg.HelperBinaryPath))
	}
	return sandbox.NewManager(opts...)
}

// describe renders the sandbox artifact for p without running anything.
func describe(mgr *sandbox.Manager, p Policy, cwd string) string {
	switch mgr.SelectSandbox(p) {
	case sandbox.TypeSeatbelt:
		var sb strings.Builder
		sb.WriteString(sandbox.GenerateSeatbeltProfile(p, cwd))
		sb.WriteString("\n; Parameters\n")
		for _, param := range sandbox.SeatbeltParams(p, cwd) {
			sb.WriteString("; " + param.Arg() + "\n")
		}
		return sb.String()
	case sandbox.TypeLandlock:
		return sandbox.LandlockRulesFor(p, cwd).Describe()
	default:
		return "sandbox: none (policy " + string(p.Kind) + " runs unrestricted)\n"
	}
}
