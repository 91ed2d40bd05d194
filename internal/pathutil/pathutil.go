// Package pathutil holds the path helpers shared by the policy, path guard
// and sandbox backends.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Canonical resolves symlinks and returns an absolute, cleaned path. It fails
// when path does not exist.
func Canonical(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}

// CanonicalOr falls back to path when it cannot be canonicalized, e.g. a
// directory that has not been created yet.
func CanonicalOr(path string) string {
	if resolved, err := Canonical(path); err == nil {
		return resolved
	}
	return path
}

// HasPrefix reports whether path equals prefix or lies below it, comparing
// whole components: /project2 is not under /project.
func HasPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)
	if path == prefix {
		return true
	}
	if prefix == string(filepath.Separator) {
		return strings.HasPrefix(path, prefix)
	}
	return strings.HasPrefix(path, prefix+string(filepath.Separator))
}

// Overlaps reports whether a and b are equal or one contains the other.
func Overlaps(a, b string) bool {
	return HasPrefix(a, b) || HasPrefix(b, a)
}

// NearestExisting walks up from path until it finds something that exists.
// It returns that ancestor and the trailing components that were missing,
// in order. "/" is returned when nothing exists.
//
// path is not cleaned first: "link/.." names the parent of the link's
// target, not the directory holding link, so ".." components are left for
// the filesystem (or the caller) to resolve.
func NearestExisting(path string) (ancestor string, missing []string) {
	current := path
	for {
		if _, err := os.Lstat(current); err == nil {
			break
		}
		parent, name := splitLast(current)
		if parent == current {
			break
		}
		if name != "" && name != "." {
			missing = append(missing, name)
		}
		current = parent
	}
	for i, j := 0, len(missing)-1; i < j; i, j = i+1, j-1 {
		missing[i], missing[j] = missing[j], missing[i]
	}
	return current, missing
}

// splitLast splits off the final component without cleaning the rest.
func splitLast(path string) (dir, name string) {
	sep := string(filepath.Separator)
	for len(path) > 1 && strings.HasSuffix(path, sep) {
		path = path[:len(path)-1]
	}
	i := strings.LastIndex(path, sep)
	switch {
	case i < 0:
		return ".", path
	case i == 0:
		return sep, path[1:]
	}
	return path[:i], path[i+1:]
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
