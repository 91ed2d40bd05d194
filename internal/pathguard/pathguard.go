// Package pathguard is the single choke point that keeps tool file access
// inside the workspace.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bpicori/warden/internal/pathutil"
	"github.com/bpicori/warden/internal/toolerr"
)

// Resolve turns raw into an absolute path and checks it lies under
// workspace. Relative paths are taken relative to workspace. Paths that do
// not exist yet are checked through their nearest existing ancestor, so a
// file about to be created resolves as long as its parent chain stays
// inside.
//
// Symlinks are resolved before ".." is applied, so "link/../x" is judged
// where the filesystem would find it. Callers must use the returned path,
// not raw.
//
// With trustMode set the containment check is skipped and the path is only
// canonicalized where possible.
//
// The returned error wraps toolerr.ErrPathEscape and carries the resolved
// path that failed the check.
func Resolve(raw, workspace string, trustMode bool) (string, error) {
	if raw == "" {
		return "", toolerr.MissingField("path")
	}

	candidate := raw
	if !filepath.IsAbs(raw) {
		candidate = workspace + string(filepath.Separator) + raw
	}

	if trustMode {
		return filepath.Clean(pathutil.CanonicalOr(candidate)), nil
	}

	root := pathutil.CanonicalOr(workspace)

	resolved, err := pathutil.Canonical(candidate)
	if err != nil {
		// Not there yet, or a dangling symlink somewhere along the way.
		resolved, err = resolveMissing(candidate, 0)
		if err != nil {
			return "", toolerr.ExecutionFailed(fmt.Sprintf("Failed to canonicalize %s: %v", candidate, err), err)
		}
	}
	if !pathutil.HasPrefix(resolved, root) {
		return "", toolerr.PathEscape(resolved)
	}
	return resolved, nil
}

const maxLinkDepth = 40

// resolveMissing canonicalizes the nearest existing ancestor of path and
// walks the missing components on top of it. A component that turns out to
// exist after a ".." is canonicalized again, so links are always followed
// before anything is stripped.
func resolveMissing(path string, depth int) (string, error) {
	ancestor, missing := pathutil.NearestExisting(path)

	base, err := canonicalExisting(ancestor, depth)
	if err != nil {
		return "", err
	}
	for _, name := range missing {
		if name == ".." {
			base = filepath.Dir(base)
			continue
		}
		next := filepath.Join(base, name)
		if _, err := os.Lstat(next); err == nil {
			if next, err = canonicalExisting(next, depth); err != nil {
				return "", err
			}
		}
		base = next
	}
	return base, nil
}

// canonicalExisting canonicalizes a path that exists. A dangling symlink is
// judged by where it points, so a link to a not-yet-created directory
// outside the workspace cannot be used to escape it.
func canonicalExisting(path string, depth int) (string, error) {
	resolved, err := pathutil.Canonical(path)
	if err == nil {
		return resolved, nil
	}
	if depth >= maxLinkDepth {
		return "", err
	}
	target, lerr := os.Readlink(path)
	if lerr != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Dir(path) + string(filepath.Separator) + target
	}
	return resolveMissing(target, depth+1)
}

// Guard binds Resolve to one workspace.
type Guard struct {
	Workspace string
	TrustMode bool
}

func (g Guard) Resolve(raw string) (string, error) {
	return Resolve(raw, g.Workspace, g.TrustMode)
}
