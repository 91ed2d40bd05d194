package sandbox

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpicori/warden/internal/policy"
	"github.com/bpicori/warden/internal/toolerr"
)

func TestSelectSandbox_UnsandboxedPolicies(t *testing.T) {
	m := NewManager(WithForcedSandbox(TypeSeatbelt))

	assert.Equal(t, TypeNone, m.SelectSandbox(policy.DangerFullAccess()))
	assert.Equal(t, TypeNone, m.SelectSandbox(policy.ExternalSandbox(true)))
	assert.Equal(t, TypeSeatbelt, m.SelectSandbox(policy.ReadOnly()))
	assert.Equal(t, TypeSeatbelt, m.SelectSandbox(policy.Default()))
}

func TestSelectSandbox_Detected(t *testing.T) {
	m := NewManager()
	assert.Equal(t, DetectPlatformSandbox(), m.SelectSandbox(policy.Default()))
}

func TestPrepare_NoSandboxPassesThrough(t *testing.T) {
	m := NewManager(WithForcedSandbox(TypeNone))
	spec := Program("ls", []string{"-la"}, "/work", 5*time.Second).WithEnvVar("FOO", "bar")

	env, err := m.Prepare(spec)
	require.NoError(t, err)

	assert.Equal(t, []string{"ls", "-la"}, env.Command)
	assert.Equal(t, "/work", env.Cwd)
	assert.Equal(t, map[string]string{"FOO": "bar"}, env.Env)
	assert.Equal(t, 5*time.Second, env.Timeout)
	assert.Equal(t, TypeNone, env.SandboxType)
	assert.False(t, env.IsSandboxed())
}

func TestPrepare_DangerFullAccessIgnoresForcedBackend(t *testing.T) {
	m := NewManager(WithForcedSandbox(TypeLandlock))
	spec := Shell("echo hi", t.TempDir(), time.Second).WithPolicy(policy.DangerFullAccess())

	env, err := m.Prepare(spec)
	require.NoError(t, err)

	assert.Equal(t, []string{"sh", "-c", "echo hi"}, env.Command)
	assert.NotContains(t, env.Env, SandboxEnvVar)
}

func TestPrepare_Seatbelt(t *testing.T) {
	cwd := t.TempDir()
	m := NewManager(WithForcedSandbox(TypeSeatbelt))
	spec := Shell("echo hi", cwd, time.Second)

	env, err := m.Prepare(spec)
	require.NoError(t, err)

	args := SeatbeltArgs(spec.Policy, cwd)
	require.Len(t, env.Command, 1+len(args)+1+3)
	assert.Equal(t, SandboxExecPath, env.Command[0])
	assert.Equal(t, "-p", env.Command[1])
	assert.Equal(t, args, env.Command[1:1+len(args)])
	assert.Equal(t, []string{"--", "sh", "-c", "echo hi"}, env.Command[1+len(args):])
	assert.Equal(t, "seatbelt", env.Env[SandboxEnvVar])
	assert.Equal(t, TypeSeatbelt, env.SandboxType)
	assert.Equal(t, SandboxExecPath, env.Program())
}

func TestPrepare_LandlockUsesHelper(t *testing.T) {
	cwd := t.TempDir()
	m := NewManager(WithForcedSandbox(TypeLandlock), WithHelperPath("/opt/warden"))
	spec := Program("git", []string{"status"}, cwd, time.Second)

	env, err := m.Prepare(spec)
	require.NoError(t, err)

	assert.Equal(t, []string{"/opt/warden", LandlockHelperCommand, "--", "git", "status"}, env.Command)
	assert.Equal(t, "landlock", env.Env[SandboxEnvVar])

	rules, err := decodeLandlockRules(env.Env[LandlockPayloadEnv])
	require.NoError(t, err)
	assert.Equal(t, LandlockRulesFor(spec.Policy, cwd), rules)
}

func TestPrepare_LandlockWarnsAboutUnprotectedSubpaths(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(cwd, ".git"), 0o755))
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	m := NewManager(WithForcedSandbox(TypeLandlock), WithHelperPath("/opt/warden"), WithLogger(logger))

	_, err := m.Prepare(Shell("git commit -m x", cwd, time.Second))
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), filepath.Join(canonical(t, cwd), ".git"))
}

func TestPrepare_DoesNotMutateSpecEnv(t *testing.T) {
	m := NewManager(WithForcedSandbox(TypeSeatbelt))
	spec := Shell("true", t.TempDir(), time.Second).WithEnvVar("A", "1")

	_, err := m.Prepare(spec)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1"}, spec.Env)
}

func TestPrepare_RejectsInvalidInput(t *testing.T) {
	m := NewManager(WithForcedSandbox(TypeNone))

	_, err := m.Prepare(CommandSpec{Program: "  "})
	assert.ErrorIs(t, err, toolerr.ErrInvalidInput)

	bad := Shell("true", "/", time.Second).WithPolicy(policy.WorkspaceWithRoots([]string{"relative/dir"}, false))
	_, err = m.Prepare(bad)
	assert.ErrorIs(t, err, toolerr.ErrInvalidInput)
	assert.ErrorContains(t, err, "must be absolute")
}

func TestWasDenied(t *testing.T) {
	assert.False(t, WasDenied(TypeNone, 1, "Operation not permitted"))
	assert.True(t, WasDenied(TypeSeatbelt, 1, "Sandbox: deny"))
	assert.False(t, WasDenied(TypeSeatbelt, 0, "Sandbox: deny"))
	assert.True(t, WasDenied(TypeLandlock, 1, "open: EACCES"))
	assert.False(t, WasDenied(TypeLandlock, 2, "syntax error"))
}

func TestDenialMessage(t *testing.T) {
	tests := []struct {
		name   string
		typ    Type
		stderr string
		want   string
	}{
		{"none", TypeNone, "anything", "Command failed (no sandbox)"},
		{"seatbelt write", TypeSeatbelt, "deny(1) file-write-create /etc/x", "Sandbox blocked write access. The command tried to write to a protected location."},
		{"seatbelt network", TypeSeatbelt, "deny(1) network-outbound 1.2.3.4:443", "Sandbox blocked network access. Enable network_access in sandbox policy if needed."},
		{"seatbelt other", TypeSeatbelt, "Operation not permitted\nmore", "Sandbox blocked operation: Operation not permitted"},
		{"seatbelt empty", TypeSeatbelt, "", "Sandbox blocked operation: unknown"},
		{"landlock access", TypeLandlock, "touch: /etc/x: Permission denied", "Landlock blocked access. The command tried to access a restricted path."},
		{"landlock other", TypeLandlock, "connect: EPERM\n", "Landlock blocked operation: connect: EPERM"},
		{"landlock empty", TypeLandlock, "", "Landlock blocked operation: unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DenialMessage(tt.typ, tt.stderr))
		})
	}
}
