package safety

import "strings"

// PathEscapesWorkspace is a string-only pre-check run before a path is
// canonicalized. It flags absolute paths outside workspace, home-relative
// paths, and paths with more ".." segments than workspace has separators.
//
// It is a heuristic with known false results both ways: "../a/../b" counts
// two ".." even though it climbs only one level, and a relative path with a
// single ".." under a deep workspace is never flagged. Callers that need a
// real answer use pathguard.Resolve.
func PathEscapesWorkspace(path, workspace string) bool {
	lower := strings.ToLower(path)

	if strings.HasPrefix(lower, "/") && !strings.HasPrefix(lower, workspace) {
		return true
	}
	if strings.HasPrefix(lower, "~/") || strings.HasPrefix(lower, "$home") {
		return true
	}
	if strings.Contains(path, "..") {
		depth := strings.Count(workspace, "/")
		if strings.Count(path, "..") > depth {
			return true
		}
	}
	return false
}
