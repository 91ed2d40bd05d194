package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("/project/src", "/project"))
	assert.True(t, HasPrefix("/project", "/project/"))
	assert.False(t, HasPrefix("/project2", "/project"))
	assert.True(t, HasPrefix("/anything", "/"))
	assert.False(t, HasPrefix("/a", "/a/b"))
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps("/etc", "/etc/shadow"))
	assert.True(t, Overlaps("/etc/shadow", "/etc"))
	assert.False(t, Overlaps("/etc2", "/etc"))
}

func TestNearestExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a"), 0o755))

	ancestor, missing := NearestExisting(filepath.Join(dir, "a", "b", "c.txt"))
	assert.Equal(t, filepath.Join(dir, "a"), ancestor)
	assert.Equal(t, []string{"b", "c.txt"}, missing)

	ancestor, missing = NearestExisting(dir)
	assert.Equal(t, dir, ancestor)
	assert.Empty(t, missing)
}

func TestNearestExisting_KeepsDotDot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))

	ancestor, missing := NearestExisting(dir + "/a/b/../new/file.txt")
	assert.Equal(t, dir+"/a/b/..", ancestor)
	assert.Equal(t, []string{"new", "file.txt"}, missing)

	ancestor, missing = NearestExisting(dir + "/gone/../x/")
	assert.Equal(t, dir, ancestor)
	assert.Equal(t, []string{"gone", "..", "x"}, missing)
}

func TestCanonicalOr(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(dir, link))

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, CanonicalOr(link))

	missing := filepath.Join(dir, "missing")
	assert.Equal(t, missing, CanonicalOr(missing))
}
