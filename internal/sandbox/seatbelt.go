package sandbox

import (
	"fmt"
	"os"
	"strings"

	"github.com/bpicori/warden/internal/pathutil"
	"github.com/bpicori/warden/internal/policy"
)

// SandboxExecPath is where macOS ships sandbox-exec. A var so tests can
// point availability checks elsewhere.
var SandboxExecPath = "/usr/bin/sandbox-exec"

const seatbeltCacheDirParam = "DARWIN_USER_CACHE_DIR"

var seatbeltDenialMarkers = []string{
	"Operation not permitted",
	"sandbox-exec",
	"deny(",
	"Sandbox: ",
}

func seatbeltAvailable() bool {
	_, err := os.Stat(SandboxExecPath)
	return err == nil
}

// profileBuilder accumulates SBPL text line by line.
type profileBuilder struct {
	buf strings.Builder
}

func (b *profileBuilder) line(s string) {
	b.buf.WriteString(s)
	b.buf.WriteByte('\n')
}

func (b *profileBuilder) linef(format string, args ...any) {
	b.line(fmt.Sprintf(format, args...))
}

func (b *profileBuilder) comment(s string) {
	b.line("; " + s)
}

func (b *profileBuilder) blank() {
	b.buf.WriteByte('\n')
}

func (b *profileBuilder) writeBase() {
	b.line("(version 1)")
	b.line("(deny default)")
	b.blank()
	b.comment("Core process operations")
	b.line("(allow process-exec)")
	b.line("(allow process-fork)")
	b.line("(allow signal (target same-sandbox))")
	b.line("(allow process-info* (target same-sandbox))")
	b.blank()
	b.comment("User preferences (needed by many CLI tools)")
	b.line("(allow user-preference-read)")
	b.blank()
	b.comment("Basic I/O to /dev/null")
	b.line("(allow file-write-data")
	b.line("  (require-all")
	b.line(`    (path "/dev/null")`)
	b.line("    (vnode-type CHARACTER-DEVICE)))")
	b.blank()
	b.comment("System information")
	b.line("(allow sysctl-read)")
	b.blank()
	b.comment("IPC primitives")
	b.line("(allow ipc-posix-sem)")
	b.line("(allow ipc-posix-shm-read*)")
	b.line("(allow ipc-posix-shm-write-create)")
	b.line("(allow ipc-posix-shm-write-data)")
	b.line("(allow ipc-posix-shm-write-unlink)")
	b.blank()
	b.comment("Terminal support")
	b.line("(allow pseudo-tty)")
	b.line(`(allow file-read* file-write* file-ioctl (literal "/dev/ptmx"))`)
	b.line(`(allow file-read* file-write* file-ioctl (regex #"^/dev/ttys[0-9]+$"))`)
	b.blank()
	b.comment("Device access")
	b.line(`(allow file-read* (literal "/dev/urandom"))`)
	b.line(`(allow file-read* (literal "/dev/random"))`)
	b.line(`(allow file-ioctl (literal "/dev/dtracehelper"))`)
	b.blank()
	b.comment("Mach IPC")
	b.line("(allow mach-lookup)")
}

func (b *profileBuilder) writeRead(p policy.SandboxPolicy) {
	if !p.HasFullDiskReadAccess() {
		return
	}
	b.blank()
	b.comment("Full filesystem read access")
	b.line("(allow file-read*)")
}

// writeWrite emits one clause per writable root, referenced through
// (param ...) so paths never need SBPL escaping.
func (b *profileBuilder) writeWrite(p policy.SandboxPolicy, roots []policy.WritableRoot) {
	var clause string
	switch {
	case p.HasFullDiskWriteAccess():
		clause = `(allow file-write* (regex #"^/"))`
	case p.Kind == policy.KindReadOnly || len(roots) == 0:
		return
	default:
		parts := make([]string, 0, len(roots))
		for i, root := range roots {
			rootParam := fmt.Sprintf(`(subpath (param "%s"))`, rootParamName(i))
			if len(root.ReadOnlySubpaths) == 0 {
				parts = append(parts, rootParam)
				continue
			}
			terms := []string{rootParam}
			for j := range root.ReadOnlySubpaths {
				terms = append(terms, fmt.Sprintf(`(require-not (subpath (param "%s")))`, readOnlyParamName(i, j)))
			}
			parts = append(parts, "(require-all "+strings.Join(terms, " ")+")")
		}
		clause = "(allow file-write*\n  " + strings.Join(parts, "\n  ") + ")"
	}
	b.blank()
	b.comment("Write access policy")
	b.line(clause)
}

func (b *profileBuilder) writeNetwork(p policy.SandboxPolicy) {
	if !p.HasNetworkAccess() {
		return
	}
	b.blank()
	b.comment("Network access")
	b.line("(allow network-outbound)")
	b.line("(allow network-inbound)")
	b.line("(allow system-socket)")
	b.line("(allow network-bind)")
}

func (b *profileBuilder) writeSystemPaths() {
	b.blank()
	b.comment("Darwin user cache directory")
	b.linef(`(allow file-read* file-write* (subpath (param "%s")))`, seatbeltCacheDirParam)
	b.blank()
	b.comment("Common macOS directories")
	for _, dir := range []string{"/usr/lib", "/usr/share", "/System/Library", "/Library/Preferences", "/private/var/db"} {
		b.linef(`(allow file-read* (subpath "%s"))`, dir)
	}
}

func rootParamName(i int) string { return fmt.Sprintf("WRITABLE_ROOT_%d", i) }

func readOnlyParamName(i, j int) string { return fmt.Sprintf("WRITABLE_ROOT_%d_RO_%d", i, j) }

// SeatbeltParam is one -DKEY=VALUE binding for a (param "KEY") reference.
type SeatbeltParam struct {
	Key   string
	Value string
}

func (p SeatbeltParam) Arg() string { return "-D" + p.Key + "=" + p.Value }

func seatbeltProfile(p policy.SandboxPolicy, roots []policy.WritableRoot) string {
	var b profileBuilder
	b.writeBase()
	b.writeRead(p)
	b.writeWrite(p, roots)
	b.writeNetwork(p)
	b.writeSystemPaths()
	return b.buf.String()
}

func seatbeltParams(roots []policy.WritableRoot) []SeatbeltParam {
	var params []SeatbeltParam
	for i, root := range roots {
		params = append(params, SeatbeltParam{rootParamName(i), pathutil.CanonicalOr(root.Root)})
		for j, sub := range root.ReadOnlySubpaths {
			params = append(params, SeatbeltParam{readOnlyParamName(i, j), pathutil.CanonicalOr(sub)})
		}
	}
	return append(params, SeatbeltParam{seatbeltCacheDirParam, pathutil.CanonicalOr(userCacheDir())})
}

// GenerateSeatbeltProfile renders the SBPL profile for running under p in
// cwd.
func GenerateSeatbeltProfile(p policy.SandboxPolicy, cwd string) string {
	return seatbeltProfile(p, p.WritableRootsFor(cwd))
}

// SeatbeltParams returns the bindings every (param ...) in the profile
// needs.
func SeatbeltParams(p policy.SandboxPolicy, cwd string) []SeatbeltParam {
	return seatbeltParams(p.WritableRootsFor(cwd))
}

// SeatbeltArgs returns the sandbox-exec arguments that precede "--": the
// inline profile followed by its parameter bindings. The writable roots
// are enumerated once so the profile and the params always agree.
func SeatbeltArgs(p policy.SandboxPolicy, cwd string) []string {
	roots := p.WritableRootsFor(cwd)
	params := seatbeltParams(roots)

	args := make([]string, 0, 2+len(params))
	args = append(args, "-p", seatbeltProfile(p, roots))
	for _, param := range params {
		args = append(args, param.Arg())
	}
	return args
}

// DetectSeatbeltDenial guesses whether a failed command was stopped by the
// sandbox rather than failing on its own.
func DetectSeatbeltDenial(exitCode int, stderr string) bool {
	if exitCode == 0 {
		return false
	}
	for _, marker := range seatbeltDenialMarkers {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

// userCacheDirFallback is $HOME/Library/Caches, or /var/empty when HOME is
// unset so the profile parameter is always bound.
func userCacheDirFallback() string {
	if home := os.Getenv("HOME"); home != "" {
		return home + "/Library/Caches"
	}
	return "/var/empty"
}
