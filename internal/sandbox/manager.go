package sandbox

import (
	"log/slog"
	"maps"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/bpicori/warden/internal/policy"
	"github.com/bpicori/warden/internal/toolerr"
)

// SandboxEnvVar marks a prepared command with the backend it runs under.
const SandboxEnvVar = "WARDEN_SANDBOX"

// Manager picks the OS sandbox for each command and rewrites the command
// to run under it. The zero value is not usable; call NewManager.
type Manager struct {
	logger     *slog.Logger
	forced     *Type
	helperPath string

	detectOnce sync.Once
	detected   Type
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithForcedSandbox skips platform detection. Policies that do not need a
// sandbox still get TypeNone.
func WithForcedSandbox(t Type) Option {
	return func(m *Manager) { m.forced = &t }
}

// WithHelperPath sets the binary used as the Landlock exec shim. It
// defaults to the running executable.
func WithHelperPath(path string) Option {
	return func(m *Manager) { m.helperPath = path }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DetectPlatformSandbox reports the sandbox this host supports: Seatbelt
// when sandbox-exec exists on macOS, Landlock when the kernel answers the
// ABI check on Linux, otherwise none.
func DetectPlatformSandbox() Type {
	switch runtime.GOOS {
	case "darwin":
		if seatbeltAvailable() {
			return TypeSeatbelt
		}
	case "linux":
		if landlockAvailable() {
			return TypeLandlock
		}
	}
	return TypeNone
}

func (m *Manager) platformSandbox() Type {
	m.detectOnce.Do(func() {
		m.detected = DetectPlatformSandbox()
		m.logger.Debug("detected platform sandbox", "os", runtime.GOOS, "sandbox", m.detected)
	})
	return m.detected
}

// SelectSandbox returns the backend a command under p would run with.
func (m *Manager) SelectSandbox(p policy.SandboxPolicy) Type {
	if !p.ShouldSandbox() {
		return TypeNone
	}
	if m.forced != nil {
		return *m.forced
	}
	return m.platformSandbox()
}

// Prepare resolves spec into the argv, working directory and environment
// overlay to spawn. Sandbox setup failures are returned, never downgraded
// to an unsandboxed run.
func (m *Manager) Prepare(spec CommandSpec) (ExecEnv, error) {
	if strings.TrimSpace(spec.Program) == "" {
		return ExecEnv{}, toolerr.MissingField("program")
	}
	if err := spec.Policy.Validate(); err != nil {
		return ExecEnv{}, toolerr.InvalidInput(err.Error())
	}

	env := ExecEnv{
		Command:     spec.argv(),
		Cwd:         spec.Cwd,
		Env:         maps.Clone(spec.Env),
		Timeout:     spec.Timeout,
		SandboxType: m.SelectSandbox(spec.Policy),
		Policy:      spec.Policy,
	}
	if env.Env == nil {
		env.Env = make(map[string]string)
	}

	switch env.SandboxType {
	case TypeSeatbelt:
		args := SeatbeltArgs(spec.Policy, spec.Cwd)
		command := make([]string, 0, 2+len(args)+len(env.Command))
		command = append(command, SandboxExecPath)
		command = append(command, args...)
		command = append(command, "--")
		env.Command = append(command, env.Command...)
		env.Env[SandboxEnvVar] = "seatbelt"

	case TypeLandlock:
		helper, err := m.landlockHelper()
		if err != nil {
			return ExecEnv{}, err
		}
		rules := LandlockRulesFor(spec.Policy, spec.Cwd)
		if len(rules.Unprotected) > 0 {
			m.logger.Warn("landlock cannot keep subpaths read-only, they stay writable",
				"paths", rules.Unprotected)
		}
		payload, err := encodeLandlockRules(rules)
		if err != nil {
			return ExecEnv{}, toolerr.ExecutionFailed("failed to encode Landlock rules", err)
		}
		command := make([]string, 0, 3+len(env.Command))
		command = append(command, helper, LandlockHelperCommand, "--")
		env.Command = append(command, env.Command...)
		env.Env[SandboxEnvVar] = "landlock"
		env.Env[LandlockPayloadEnv] = payload
	}

	m.logger.Debug("prepared command",
		"program", spec.Program,
		"sandbox", env.SandboxType,
		"policy", string(spec.Policy.Kind),
		"network", spec.Policy.HasNetworkAccess(),
	)
	return env, nil
}

func (m *Manager) landlockHelper() (string, error) {
	if m.helperPath != "" {
		return m.helperPath, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", toolerr.ExecutionFailed("failed to locate Landlock helper", err)
	}
	return exe, nil
}

// WasDenied reports whether a finished command looks like it was blocked
// by the sandbox it ran under.
func WasDenied(t Type, exitCode int, stderr string) bool {
	switch t {
	case TypeSeatbelt:
		return DetectSeatbeltDenial(exitCode, stderr)
	case TypeLandlock:
		return DetectLandlockDenial(exitCode, stderr)
	}
	return false
}

// DenialMessage explains a sandbox denial to the user.
func DenialMessage(t Type, stderr string) string {
	switch t {
	case TypeSeatbelt:
		switch {
		case strings.Contains(stderr, "file-write"):
			return "Sandbox blocked write access. The command tried to write to a protected location."
		case strings.Contains(stderr, "network"):
			return "Sandbox blocked network access. Enable network_access in sandbox policy if needed."
		}
		return "Sandbox blocked operation: " + firstLine(stderr)
	case TypeLandlock:
		if strings.Contains(stderr, "Permission denied") {
			return "Landlock blocked access. The command tried to access a restricted path."
		}
		return "Landlock blocked operation: " + firstLine(stderr)
	}
	return "Command failed (no sandbox)"
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return "unknown"
}
