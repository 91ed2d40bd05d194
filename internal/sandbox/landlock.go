package sandbox

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bpicori/warden/internal/pathutil"
	"github.com/bpicori/warden/internal/policy"
)

const (
	// LandlockHelperCommand is the hidden argv[1] that makes the warden
	// binary act as the Landlock exec shim.
	LandlockHelperCommand = "__warden_internal_landlock_exec"

	// LandlockPayloadEnv carries the encoded rules from the parent to the
	// shim. The shim removes it before exec.
	LandlockPayloadEnv = "WARDEN_LANDLOCK_PAYLOAD"

	// ExitHelperFailed is the helper's exit code when it could not set up
	// the sandbox or exec the command. ExitHelperNotFound is used when the
	// command does not exist. Both mirror the shell.
	ExitHelperFailed   = 126
	ExitHelperNotFound = 127

	landlockHelperErrPrefix = "warden: landlock helper: "
)

var errHelperCommandNotFound = errors.New("command not found")

// Device nodes that stay writable under every Landlock policy so shells and
// tty-aware tools keep working.
var landlockDevicePaths = []string{"/dev/null", "/dev/tty", "/dev/ptmx", "/dev/pts"}

var landlockDenialMarkers = []string{
	"Permission denied",
	"Operation not permitted",
	"EACCES",
	"EPERM",
}

// LandlockRules is the resolved path set a Landlock shim enforces.
type LandlockRules struct {
	Read    []string `json:"read"`
	Write   []string `json:"write"`
	Network bool     `json:"network"`
	Cwd     string   `json:"cwd"`
	// Unprotected lists read-only subpaths of writable roots that stay
	// writable, since Landlock rules can only grant access.
	Unprotected []string `json:"unprotected,omitempty"`
}

// LandlockRulesFor resolves p against cwd. Reads are granted everywhere;
// writes only beneath the writable roots and the shared device nodes.
//
// Landlock rules only grant access, so the read-only .git and .minimax
// carve-outs inside a writable root cannot be expressed. They are reported
// in Unprotected instead.
func LandlockRulesFor(p policy.SandboxPolicy, cwd string) LandlockRules {
	rules := LandlockRules{
		Read:    []string{"/"},
		Network: p.HasNetworkAccess(),
		Cwd:     pathutil.CanonicalOr(cwd),
	}
	if p.HasFullDiskWriteAccess() {
		rules.Write = []string{"/"}
		return rules
	}
	for _, root := range p.WritableRootsFor(cwd) {
		rules.Write = append(rules.Write, pathutil.CanonicalOr(root.Root))
		for _, sub := range root.ReadOnlySubpaths {
			rules.Unprotected = append(rules.Unprotected, pathutil.CanonicalOr(sub))
		}
	}
	rules.Write = append(rules.Write, landlockDevicePaths...)
	return rules
}

// Describe renders the rules one per line for display.
func (r LandlockRules) Describe() string {
	var sb strings.Builder
	sb.WriteString("engine=landlock\n")
	for _, path := range r.Read {
		sb.WriteString("allow.read=" + path + "\n")
	}
	for _, path := range r.Write {
		sb.WriteString("allow.write=" + path + "\n")
	}
	if r.Network {
		sb.WriteString("network=allow\n")
	} else {
		sb.WriteString("network=deny\n")
	}
	if r.Cwd != "" {
		sb.WriteString("workdir=" + r.Cwd + "\n")
	}
	for _, path := range r.Unprotected {
		sb.WriteString("unprotected=" + path + "\n")
	}
	return sb.String()
}

func encodeLandlockRules(rules LandlockRules) (string, error) {
	raw, err := json.Marshal(rules)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeLandlockRules(encoded string) (LandlockRules, error) {
	var rules LandlockRules

	if encoded == "" {
		return rules, errors.New("missing " + LandlockPayloadEnv)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return rules, fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(raw, &rules); err != nil {
		return rules, fmt.Errorf("unmarshal payload: %w", err)
	}
	return rules, nil
}

// DetectLandlockDenial guesses whether a failed command hit a Landlock
// restriction.
func DetectLandlockDenial(exitCode int, stderr string) bool {
	if exitCode == 0 {
		return false
	}
	for _, marker := range landlockDenialMarkers {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

// helperArgv splits the shim's arguments into the target argv.
func helperArgv(args []string) ([]string, error) {
	if len(args) > 0 && args[0] == LandlockHelperCommand {
		args = args[1:]
	}
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, errors.New("no command given")
	}
	return args, nil
}

// environWithout returns env minus any entries for key.
func environWithout(env []string, key string) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		name, _, _ := strings.Cut(e, "=")
		if name == key {
			continue
		}
		out = append(out, e)
	}
	return out
}

// LandlockHelperMain runs the helper subcommand and returns the exit code
// for the caller to exit with. It only returns on failure, after writing
// the error to stderr behind a fixed prefix so the runner can tell a setup
// failure from the command's own exit status.
func LandlockHelperMain(args []string, stderr io.Writer) int {
	err := RunLandlockHelper(args)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "%s%v\n", landlockHelperErrPrefix, err)
	if errors.Is(err, errHelperCommandNotFound) {
		return ExitHelperNotFound
	}
	return ExitHelperFailed
}

// landlockHelperFailure returns the helper's error message when a run
// ended because the helper itself failed.
func landlockHelperFailure(exitCode int, stderr string) (string, bool) {
	if exitCode != ExitHelperFailed {
		return "", false
	}
	msg, ok := strings.CutPrefix(stderr, landlockHelperErrPrefix)
	if !ok {
		return "", false
	}
	line, _, _ := strings.Cut(msg, "\n")
	return line, true
}
