package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpicori/warden/internal/policy"
)

func canonical(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}

func TestSeatbeltProfile_DefaultWorkspaceHasNoNetwork(t *testing.T) {
	profile := GenerateSeatbeltProfile(policy.Default(), t.TempDir())

	assert.True(t, strings.HasPrefix(profile, "(version 1)\n(deny default)\n"))
	assert.Contains(t, profile, "(allow file-read*)")
	assert.Contains(t, profile, `(subpath (param "WRITABLE_ROOT_0"))`)
	assert.NotContains(t, profile, "network-outbound")
	assert.NotContains(t, profile, `(regex #"^/"))`)
}

func TestSeatbeltProfile_NetworkBlock(t *testing.T) {
	profile := GenerateSeatbeltProfile(policy.WorkspaceWithNetwork(), t.TempDir())

	assert.Contains(t, profile, "; Network access\n(allow network-outbound)\n(allow network-inbound)\n(allow system-socket)\n(allow network-bind)\n")
}

func TestSeatbeltProfile_ReadOnlyHasNoWriteClause(t *testing.T) {
	profile := GenerateSeatbeltProfile(policy.ReadOnly(), t.TempDir())

	assert.NotContains(t, profile, "(allow file-write*")
	assert.NotContains(t, profile, "WRITABLE_ROOT_")
	assert.NotContains(t, profile, "network-outbound")
	// /dev/null stays writable through the base profile.
	assert.Contains(t, profile, `(path "/dev/null")`)
}

func TestSeatbeltProfile_FullWrite(t *testing.T) {
	profile := GenerateSeatbeltProfile(policy.DangerFullAccess(), t.TempDir())

	assert.Contains(t, profile, "; Write access policy\n(allow file-write* (regex #\"^/\"))\n")
	assert.Contains(t, profile, "(allow network-outbound)")
}

func TestSeatbeltProfile_ProtectsGitDirectory(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(cwd, ".git"), 0o755))
	p := policy.SandboxPolicy{Kind: policy.KindWorkspaceWrite, ExcludeSlashTmp: true, ExcludeTmpdir: true}

	profile := GenerateSeatbeltProfile(p, cwd)

	assert.Contains(t, profile,
		`(allow file-write*
  (require-all (subpath (param "WRITABLE_ROOT_0")) (require-not (subpath (param "WRITABLE_ROOT_0_RO_0")))))`)
}

func TestSeatbeltProfile_OneClausePerRoot(t *testing.T) {
	extra := t.TempDir()
	cwd := t.TempDir()
	p := policy.SandboxPolicy{
		Kind:            policy.KindWorkspaceWrite,
		WritableRoots:   []string{extra},
		ExcludeSlashTmp: true,
		ExcludeTmpdir:   true,
	}

	profile := GenerateSeatbeltProfile(p, cwd)

	assert.Contains(t, profile,
		"(allow file-write*\n  (subpath (param \"WRITABLE_ROOT_0\"))\n  (subpath (param \"WRITABLE_ROOT_1\")))")
	assert.NotContains(t, profile, "WRITABLE_ROOT_2")
}

func TestSeatbeltProfile_SectionOrder(t *testing.T) {
	profile := GenerateSeatbeltProfile(policy.WorkspaceWithNetwork(), t.TempDir())

	sections := []string{
		"; Core process operations",
		"; Full filesystem read access",
		"; Write access policy",
		"; Network access",
		"; Darwin user cache directory",
		"; Common macOS directories",
	}
	last := -1
	for _, section := range sections {
		idx := strings.Index(profile, section)
		require.GreaterOrEqual(t, idx, 0, section)
		assert.Greater(t, idx, last, section)
		last = idx
	}
	for _, dir := range []string{"/usr/lib", "/usr/share", "/System/Library", "/Library/Preferences", "/private/var/db"} {
		assert.Contains(t, profile, `(allow file-read* (subpath "`+dir+`"))`)
	}
}

func TestSeatbeltParams(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(cwd, ".git"), 0o755))
	p := policy.SandboxPolicy{Kind: policy.KindWorkspaceWrite, ExcludeSlashTmp: true, ExcludeTmpdir: true}

	params := SeatbeltParams(p, cwd)

	require.Len(t, params, 3)
	assert.Equal(t, SeatbeltParam{"WRITABLE_ROOT_0", canonical(t, cwd)}, params[0])
	assert.Equal(t, SeatbeltParam{"WRITABLE_ROOT_0_RO_0", canonical(t, filepath.Join(cwd, ".git"))}, params[1])
	assert.Equal(t, "DARWIN_USER_CACHE_DIR", params[2].Key)
	assert.NotEmpty(t, params[2].Value)
}

func TestSeatbeltParams_ReadOnlyOnlyBindsCacheDir(t *testing.T) {
	params := SeatbeltParams(policy.ReadOnly(), t.TempDir())

	require.Len(t, params, 1)
	assert.Equal(t, "DARWIN_USER_CACHE_DIR", params[0].Key)
}

func TestSeatbeltArgs(t *testing.T) {
	cwd := t.TempDir()
	p := policy.SandboxPolicy{Kind: policy.KindWorkspaceWrite, ExcludeSlashTmp: true, ExcludeTmpdir: true}

	args := SeatbeltArgs(p, cwd)

	require.Len(t, args, 4)
	assert.Equal(t, "-p", args[0])
	assert.Equal(t, GenerateSeatbeltProfile(p, cwd), args[1])
	assert.Equal(t, "-DWRITABLE_ROOT_0="+canonical(t, cwd), args[2])
	assert.True(t, strings.HasPrefix(args[3], "-DDARWIN_USER_CACHE_DIR="))
	assert.NotContains(t, args, "--")
}

func TestUserCacheDirFallback(t *testing.T) {
	t.Setenv("HOME", "/Users/someone")
	assert.Equal(t, "/Users/someone/Library/Caches", userCacheDirFallback())

	t.Setenv("HOME", "")
	assert.Equal(t, "/var/empty", userCacheDirFallback())
}

func TestDetectSeatbeltDenial(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		stderr string
		want   bool
	}{
		{"success never denied", 0, "Operation not permitted", false},
		{"operation not permitted", 1, "touch: /etc/x: Operation not permitted", true},
		{"sandbox-exec message", 71, "sandbox-exec: profile error", true},
		{"deny rule", 1, "deny(1) file-write-create /etc/x", true},
		{"sandbox prefix", 1, "Sandbox: touch(123) deny", true},
		{"ordinary failure", 1, "No such file or directory", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectSeatbeltDenial(tt.code, tt.stderr))
		})
	}
}
