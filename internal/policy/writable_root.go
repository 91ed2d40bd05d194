package policy

import "github.com/bpicori/warden/internal/pathutil"

// WritableRoot is a directory subtree open for writing, minus nested
// read-only exceptions.
type WritableRoot struct {
	Root             string
	ReadOnlySubpaths []string
}

func NewWritableRoot(root string) WritableRoot {
	return WritableRoot{Root: root}
}

// WithExceptions returns a copy of r with the given read-only subpaths added.
func (r WritableRoot) WithExceptions(subpaths ...string) WritableRoot {
	out := WritableRoot{Root: r.Root}
	out.ReadOnlySubpaths = append(append(out.ReadOnlySubpaths, r.ReadOnlySubpaths...), subpaths...)
	return out
}

// IsPathWritable reports whether path lies under Root and under none of the
// read-only subpaths. Comparison is by whole path components, so /project2
// is not under /project.
func (r WritableRoot) IsPathWritable(path string) bool {
	if !pathutil.HasPrefix(path, r.Root) {
		return false
	}
	for _, sub := range r.ReadOnlySubpaths {
		if pathutil.HasPrefix(path, sub) {
			return false
		}
	}
	return true
}
