//go:build unix

package sandbox

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpicori/warden/internal/policy"
	"github.com/bpicori/warden/internal/proxy"
	"github.com/bpicori/warden/internal/toolerr"
)

func shellEnv(t *testing.T, script string) ExecEnv {
	t.Helper()
	env, err := NewManager(WithForcedSandbox(TypeNone)).Prepare(Shell(script, t.TempDir(), 10*time.Second))
	require.NoError(t, err)
	return env
}

func TestClampTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, ClampTimeout(0))
	assert.Equal(t, MinTimeout, ClampTimeout(10*time.Millisecond))
	assert.Equal(t, MinTimeout, ClampTimeout(-time.Second))
	assert.Equal(t, 30*time.Second, ClampTimeout(30*time.Second))
	assert.Equal(t, MaxTimeout, ClampTimeout(time.Hour))
}

func TestRun_CapturesOutput(t *testing.T) {
	res, err := Run(context.Background(), shellEnv(t, "echo out; echo err >&2"), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.False(t, res.Sandboxed)
	assert.False(t, res.SandboxDenied)
}

func TestRun_NonZeroExit(t *testing.T) {
	res, err := Run(context.Background(), shellEnv(t, "exit 3"), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.SandboxDenied)
}

func TestRun_UsesCwdAndOverlay(t *testing.T) {
	env := shellEnv(t, `pwd; echo "$WARDEN_TEST_VAR"`)
	env.Env["WARDEN_TEST_VAR"] = "from-overlay"

	res, err := Run(context.Background(), env, RunOptions{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, canonical(t, env.Cwd), canonical(t, lines[0]))
	assert.Equal(t, "from-overlay", lines[1])
}

func TestRun_TeesOutput(t *testing.T) {
	var live bytes.Buffer
	res, err := Run(context.Background(), shellEnv(t, "echo hello"), RunOptions{Stdout: &live})
	require.NoError(t, err)

	assert.Equal(t, "hello\n", live.String())
	assert.Equal(t, "hello\n", res.Stdout)
}

func TestRun_Stdin(t *testing.T) {
	res, err := Run(context.Background(), shellEnv(t, "cat"), RunOptions{Stdin: strings.NewReader("piped")})
	require.NoError(t, err)
	assert.Equal(t, "piped", res.Stdout)
}

func TestRun_Timeout(t *testing.T) {
	env := shellEnv(t, "echo started; sleep 30")
	env.Timeout = time.Second

	started := time.Now()
	res, err := Run(context.Background(), env, RunOptions{})

	assert.ErrorIs(t, err, toolerr.ErrTimeout)
	assert.EqualError(t, err, "Failed to execute tool: operation timed out after 1s")
	assert.Equal(t, StatusTimedOut, res.Status)
	assert.Equal(t, "started\n", res.Stdout)
	assert.Less(t, time.Since(started), 10*time.Second)
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	_, err := Run(ctx, shellEnv(t, "sleep 30"), RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_MissingProgram(t *testing.T) {
	env := ExecEnv{Command: []string{"/nonexistent/warden-test-binary"}, Cwd: t.TempDir()}

	_, err := Run(context.Background(), env, RunOptions{})
	assert.ErrorIs(t, err, toolerr.ErrExecutionFailed)
}

func TestRun_ReportsSandboxDenial(t *testing.T) {
	env := shellEnv(t, "echo 'touch: /etc/x: Operation not permitted' >&2; exit 1")
	env.SandboxType = TypeSeatbelt

	res, err := Run(context.Background(), env, RunOptions{})
	require.NoError(t, err)

	assert.True(t, res.Sandboxed)
	assert.True(t, res.SandboxDenied)
	assert.Equal(t, "Sandbox blocked operation: touch: /etc/x: Operation not permitted", res.DenialMessage)
}

func TestRun_LandlockHelperFailureIsAnError(t *testing.T) {
	env := shellEnv(t, "printf 'warden: landlock helper: Failed to validate input: Invalid path\\n' >&2; exit 126")
	env.SandboxType = TypeLandlock

	res, err := Run(context.Background(), env, RunOptions{})
	require.ErrorIs(t, err, toolerr.ErrExecutionFailed)

	assert.Contains(t, err.Error(), "Invalid path")
	assert.Equal(t, ExitHelperFailed, res.ExitCode)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestRun_CommandExit126UnderLandlockIsAResult(t *testing.T) {
	env := shellEnv(t, "echo 'sh: ./x: cannot execute' >&2; exit 126")
	env.SandboxType = TypeLandlock

	res, err := Run(context.Background(), env, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 126, res.ExitCode)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestRun_NetworkProxyEnv(t *testing.T) {
	spec := Shell(`echo "$HTTPS_PROXY"`, t.TempDir(), 10*time.Second).WithPolicy(policy.WorkspaceWithNetwork())
	env, err := NewManager(WithForcedSandbox(TypeNone)).Prepare(spec)
	require.NoError(t, err)

	res, err := Run(context.Background(), env, RunOptions{Network: proxy.Rules{Allow: []string{"example.com"}}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Stdout, "http://127.0.0.1:"), res.Stdout)
}

func TestRun_NoProxyWithoutNetwork(t *testing.T) {
	t.Setenv("HTTPS_PROXY", "")
	res, err := Run(context.Background(), shellEnv(t, `echo "[$HTTPS_PROXY]"`),
		RunOptions{Network: proxy.Rules{Allow: []string{"example.com"}}})
	require.NoError(t, err)
	assert.Equal(t, "[]\n", res.Stdout)
}

func TestMergeEnviron(t *testing.T) {
	base := []string{"A=1", "B=2", "PATH=/bin"}
	got := mergeEnviron(base, map[string]string{"B": "two", "Z": "26", "C": "3"})

	assert.Equal(t, []string{"A=1", "PATH=/bin", "B=two", "C=3", "Z=26"}, got)
}

func TestTruncateOutput(t *testing.T) {
	short := strings.Repeat("a", MaxOutputSize)
	assert.Equal(t, short, truncateOutput(short))

	long := strings.Repeat("b", MaxOutputSize+5)
	got := truncateOutput(long)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("b", MaxOutputSize)+"...\n\n"))
	assert.True(t, strings.HasSuffix(got, "[Output truncated at 30000 characters. 5 characters omitted.]"))
}
