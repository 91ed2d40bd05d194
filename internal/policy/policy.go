// Package policy models the declarative sandbox policy attached to every
// command execution and derives the writable roots a backend must honour.
package policy

import (
	"os"
	"path/filepath"

	"github.com/bpicori/warden/internal/pathutil"
)

// Kind names the active SandboxPolicy variant. The string values are the
// serialized "type" tags.
type Kind string

const (
	KindDangerFullAccess Kind = "danger-full-access"
	KindReadOnly         Kind = "read-only"
	KindExternalSandbox  Kind = "external-sandbox"
	KindWorkspaceWrite   Kind = "workspace-write"
)

func (k Kind) valid() bool {
	switch k {
	case KindDangerFullAccess, KindReadOnly, KindExternalSandbox, KindWorkspaceWrite:
		return true
	}
	return false
}

// Directories under a writable root that stay read-only when present.
var protectedSubdirs = []string{".git", ".minimax"}

// SandboxPolicy is a tagged union. Kind selects the variant; the remaining
// fields are only meaningful for the variants that carry them:
//
//	danger-full-access  (none)
//	read-only           (none)
//	external-sandbox    NetworkAccess
//	workspace-write     WritableRoots, NetworkAccess, ExcludeTmpdir, ExcludeSlashTmp
//
// Values are treated as immutable; the constructors below are the intended
// way to build one.
type SandboxPolicy struct {
	Kind            Kind
	WritableRoots   []string
	NetworkAccess   bool
	ExcludeTmpdir   bool
	ExcludeSlashTmp bool
}

// Default is workspace-write with no extra roots and no network.
func Default() SandboxPolicy {
	return SandboxPolicy{Kind: KindWorkspaceWrite}
}

func DangerFullAccess() SandboxPolicy { return SandboxPolicy{Kind: KindDangerFullAccess} }

func ReadOnly() SandboxPolicy { return SandboxPolicy{Kind: KindReadOnly} }

func ExternalSandbox(networkAccess bool) SandboxPolicy {
	return SandboxPolicy{Kind: KindExternalSandbox, NetworkAccess: networkAccess}
}

func WorkspaceWithNetwork() SandboxPolicy {
	return SandboxPolicy{Kind: KindWorkspaceWrite, NetworkAccess: true}
}

func WorkspaceWithRoots(roots []string, networkAccess bool) SandboxPolicy {
	return SandboxPolicy{
		Kind:          KindWorkspaceWrite,
		WritableRoots: append([]string(nil), roots...),
		NetworkAccess: networkAccess,
	}
}

// normalized treats the zero value as the default policy.
func (p SandboxPolicy) normalized() SandboxPolicy {
	if p.Kind == "" {
		p.Kind = KindWorkspaceWrite
	}
	return p
}

// ShouldSandbox is false when the policy asks for no restriction or when an
// outer sandbox already applies.
func (p SandboxPolicy) ShouldSandbox() bool {
	switch p.normalized().Kind {
	case KindDangerFullAccess, KindExternalSandbox:
		return false
	}
	return true
}

func (p SandboxPolicy) HasNetworkAccess() bool {
	switch p.normalized().Kind {
	case KindDangerFullAccess:
		return true
	case KindReadOnly:
		return false
	}
	return p.NetworkAccess
}

// HasFullDiskReadAccess is true for every variant.
func (p SandboxPolicy) HasFullDiskReadAccess() bool { return true }

func (p SandboxPolicy) HasFullDiskWriteAccess() bool {
	switch p.normalized().Kind {
	case KindDangerFullAccess, KindExternalSandbox:
		return true
	}
	return false
}

// WritableRootsFor enumerates the roots a workspace-write policy may write
// to when running in cwd. The order is: configured roots, cwd, /tmp, then
// $TMPDIR. Every other variant returns nil; callers must use
// HasFullDiskWriteAccess to tell "write everywhere" from "write nowhere".
func (p SandboxPolicy) WritableRootsFor(cwd string) []WritableRoot {
	p = p.normalized()
	if p.Kind != KindWorkspaceWrite {
		return nil
	}

	roots := make([]string, 0, len(p.WritableRoots)+3)
	for _, r := range p.WritableRoots {
		roots = append(roots, pathutil.CanonicalOr(r))
	}
	roots = append(roots, pathutil.CanonicalOr(cwd))

	if !p.ExcludeSlashTmp {
		if tmp, err := pathutil.Canonical("/tmp"); err == nil {
			roots = append(roots, tmp)
		}
	}
	if !p.ExcludeTmpdir {
		if dir := os.Getenv("TMPDIR"); dir != "" {
			if tmp, err := pathutil.Canonical(dir); err == nil {
				roots = append(roots, tmp)
			}
		}
	}

	out := make([]WritableRoot, 0, len(roots))
	for _, root := range roots {
		var readOnly []string
		for _, name := range protectedSubdirs {
			sub := filepath.Join(root, name)
			if pathutil.IsDir(sub) {
				readOnly = append(readOnly, sub)
			}
		}
		out = append(out, WritableRoot{Root: root, ReadOnlySubpaths: readOnly})
	}
	return out
}
