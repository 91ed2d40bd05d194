package policy

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bpicori/warden/internal/pathutil"
)

// Root validation errors. Use errors.Is to check for them.
var (
	ErrRootEmpty       = errors.New("writable root must not be empty")
	ErrRootControlChar = errors.New("writable root contains control character")
	ErrRootNotAbsolute = errors.New("writable root must be absolute")
	ErrRootDotDot      = errors.New("writable root must not contain '..' components")
	ErrRootSensitive   = errors.New("writable root overlaps with sensitive path")
)

// SensitivePaths must never become writable, no matter what the policy
// file says. Platform-specific additions come from the sandbox backends.
var SensitivePaths = []string{
	"/etc/shadow",
	"/etc/passwd",
	"/etc/sudoers",
	"/private/etc/shadow",
	"/private/etc/passwd",
	"/private/etc/sudoers",
	"/var/run/secrets",
	"/boot",
	"/proc/kcore",
	"/System/Library",
	"/Library/Keychains",
}

// Validate checks the user-supplied parts of the policy. It returns every
// problem joined into one error.
func (p SandboxPolicy) Validate() error {
	p = p.normalized()
	if !p.Kind.valid() {
		return fmt.Errorf("sandbox policy: unknown type %q", p.Kind)
	}

	var errs []error
	for _, root := range p.WritableRoots {
		if err := validateRoot(root); err != nil {
			errs = append(errs, fmt.Errorf("writable root %q: %w", root, err))
		}
	}
	return errors.Join(errs...)
}

func validateRoot(raw string) error {
	if raw == "" {
		return ErrRootEmpty
	}
	for _, c := range raw {
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("%w (0x%02x)", ErrRootControlChar, c)
		}
	}
	if !filepath.IsAbs(raw) {
		return ErrRootNotAbsolute
	}
	if slices.Contains(strings.Split(raw, string(filepath.Separator)), "..") {
		return ErrRootDotDot
	}

	resolved := pathutil.CanonicalOr(filepath.Clean(raw))
	for _, sensitive := range SensitivePaths {
		if pathutil.Overlaps(resolved, sensitive) {
			return fmt.Errorf("%w %q", ErrRootSensitive, sensitive)
		}
	}
	return nil
}
