package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bpicori/warden/internal/policy"
)

func TestTypeString(t *testing.T) {
	assert.Equal(t, "none", TypeNone.String())
	assert.Equal(t, "macos-seatbelt", TypeSeatbelt.String())
	assert.Equal(t, "linux-landlock", TypeLandlock.String())
	assert.Equal(t, "unknown", Type(42).String())
}

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{
		"none":           TypeNone,
		"Seatbelt":       TypeSeatbelt,
		"macos-seatbelt": TypeSeatbelt,
		" landlock ":     TypeLandlock,
		"linux-landlock": TypeLandlock,
	} {
		got, ok := ParseType(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseType("auto")
	assert.False(t, ok)
}

func TestShellSpec(t *testing.T) {
	spec := Shell("ls -la | wc -l", "/work", time.Minute)

	assert.Equal(t, "sh", spec.Program)
	assert.Equal(t, []string{"-c", "ls -la | wc -l"}, spec.Args)
	assert.Equal(t, policy.Default(), spec.Policy)
	assert.Equal(t, "ls -la | wc -l", spec.DisplayCommand())
}

func TestProgramSpecCopiesArgs(t *testing.T) {
	args := []string{"status"}
	spec := Program("git", args, "/work", time.Minute)
	args[0] = "push"

	assert.Equal(t, []string{"status"}, spec.Args)
	assert.Equal(t, "git status", spec.DisplayCommand())
}

func TestSpecBuildersReturnCopies(t *testing.T) {
	base := Shell("true", "/work", time.Second)
	withEnv := base.WithEnvVar("A", "1")
	withMore := withEnv.WithEnvVar("B", "2")

	assert.Nil(t, base.Env)
	assert.Equal(t, map[string]string{"A": "1"}, withEnv.Env)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, withMore.Env)

	src := map[string]string{"X": "1"}
	replaced := base.WithEnv(src)
	src["X"] = "2"
	assert.Equal(t, "1", replaced.Env["X"])

	justified := base.WithJustification("run tests").WithPolicy(policy.ReadOnly())
	assert.Equal(t, "run tests", justified.Justification)
	assert.Equal(t, policy.KindReadOnly, justified.Policy.Kind)
	assert.Equal(t, policy.KindWorkspaceWrite, base.Policy.Kind)
}

func TestExecEnvAccessors(t *testing.T) {
	var empty ExecEnv
	assert.Equal(t, "sh", empty.Program())
	assert.Nil(t, empty.Args())

	env := ExecEnv{Command: []string{"git", "log", "-1"}, SandboxType: TypeLandlock}
	assert.Equal(t, "git", env.Program())
	assert.Equal(t, []string{"log", "-1"}, env.Args())
	assert.True(t, env.IsSandboxed())
}
