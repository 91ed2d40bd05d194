package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/bpicori/warden/internal/proxy"
	"github.com/bpicori/warden/internal/toolerr"
)

const (
	MinTimeout     = time.Second
	MaxTimeout     = 600 * time.Second
	DefaultTimeout = 120 * time.Second

	// MaxOutputSize caps each captured stream in a Result.
	MaxOutputSize = 30_000
)

// Status is how a run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Result describes a finished command.
type Result struct {
	Status   Status
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	Sandboxed   bool
	SandboxType Type
	// SandboxDenied is a stderr heuristic, not a guarantee.
	SandboxDenied bool
	DenialMessage string
	// ProxyBlocked counts requests refused by the domain filter.
	ProxyBlocked int64
}

// RunOptions tune a single Run call. The zero value captures output only.
type RunOptions struct {
	Stdin io.Reader
	// Stdout and Stderr receive a live copy of the output in addition to
	// the capture in Result.
	Stdout io.Writer
	Stderr io.Writer

	// Network filters outbound HTTP(S) by domain. It only applies when the
	// policy grants network access.
	Network proxy.Rules

	// ForwardSignals relays SIGINT and SIGTERM to the child's process
	// group.
	ForwardSignals bool

	Logger *slog.Logger
}

// ClampTimeout maps d into [MinTimeout, MaxTimeout]; zero means
// DefaultTimeout.
func ClampTimeout(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultTimeout
	}
	return min(max(d, MinTimeout), MaxTimeout)
}

// Run executes env and waits for it, killing the whole process group when
// the timeout or ctx expires. A timed-out run returns its partial Result
// together with a *toolerr.TimeoutError.
func Run(ctx context.Context, env ExecEnv, opts RunOptions) (res Result, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := ClampTimeout(env.Timeout)

	res = Result{
		Sandboxed:   env.IsSandboxed(),
		SandboxType: env.SandboxType,
	}

	overlay := env.Env
	if !opts.Network.Empty() && env.Policy.HasNetworkAccess() {
		prx := proxy.New(opts.Network, logger)
		if _, err = prx.Start(); err != nil {
			return res, toolerr.ExecutionFailed("failed to start network proxy", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = prx.Stop(stopCtx)
			res.ProxyBlocked = prx.Blocked()
		}()
		overlay = mergeOverlay(overlay, prx.Env())
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, env.Program(), env.Args()...)
	cmd.Dir = env.Cwd
	cmd.Env = mergeEnviron(os.Environ(), overlay)
	cmd.Stdin = opts.Stdin
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = teeWriter(&stdout, opts.Stdout)
	cmd.Stderr = teeWriter(&stderr, opts.Stderr)

	logger.Debug("starting command", "argv0", env.Program(), "cwd", env.Cwd,
		"sandbox", env.SandboxType, "timeout", timeout)

	started := time.Now()
	if err = cmd.Start(); err != nil {
		return res, toolerr.ExecutionFailed(fmt.Sprintf("failed to start %s", env.Program()), err)
	}

	if opts.ForwardSignals {
		stop := forwardSignals(cmd.Process.Pid)
		defer stop()
	}

	waitErr := cmd.Wait()
	res.Duration = time.Since(started)
	res.Stdout = truncateOutput(stdout.String())
	res.Stderr = truncateOutput(stderr.String())
	res.ExitCode = exitCode(cmd, waitErr)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.Status = StatusTimedOut
		logger.Warn("command timed out", "argv0", env.Program(), "timeout", timeout)
		return res, toolerr.Timeout(timeout)
	}
	if ctx.Err() != nil {
		res.Status = StatusFailed
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		res.Status = StatusFailed
		return res, toolerr.ExecutionFailed(fmt.Sprintf("failed to wait for %s", env.Program()), waitErr)
	}

	if res.ExitCode == 0 {
		res.Status = StatusCompleted
		return res, nil
	}
	res.Status = StatusFailed
	if env.SandboxType == TypeLandlock {
		if msg, ok := landlockHelperFailure(res.ExitCode, stderr.String()); ok {
			logger.Error("landlock helper failed", "argv0", env.Program(), "error", msg)
			return res, toolerr.ExecutionFailed("Landlock helper failed: "+msg, nil)
		}
	}
	res.SandboxDenied = WasDenied(env.SandboxType, res.ExitCode, stderr.String())
	if res.SandboxDenied {
		res.DenialMessage = DenialMessage(env.SandboxType, stderr.String())
		logger.Info("command blocked by sandbox", "sandbox", env.SandboxType, "exit_code", res.ExitCode)
	}
	return res, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		if status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

func forwardSignals(pid int) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				signalProcessGroup(pid, sig)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func teeWriter(capture *bytes.Buffer, live io.Writer) io.Writer {
	if live == nil {
		return capture
	}
	return io.MultiWriter(capture, live)
}

// mergeOverlay returns base with extra layered on top.
func mergeOverlay(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// mergeEnviron applies overlay to a KEY=VALUE environment. Overlay keys
// replace existing entries and are appended in sorted order.
func mergeEnviron(base []string, overlay map[string]string) []string {
	out := make([]string, 0, len(base)+len(overlay))
	for _, e := range base {
		name, _, _ := strings.Cut(e, "=")
		if _, ok := overlay[name]; ok {
			continue
		}
		out = append(out, e)
	}
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out = append(out, k+"="+overlay[k])
	}
	return out
}

func truncateOutput(s string) string {
	if len(s) <= MaxOutputSize {
		return s
	}
	return fmt.Sprintf("%s...\n\n[Output truncated at %d characters. %d characters omitted.]",
		s[:MaxOutputSize], MaxOutputSize, len(s)-MaxOutputSize)
}
