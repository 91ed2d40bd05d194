//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"

	seccomp "github.com/elastic/go-seccomp-bpf"
	"github.com/landlock-lsm/go-landlock/landlock"
	landlocksys "github.com/landlock-lsm/go-landlock/landlock/syscall"
	"golang.org/x/sys/unix"

	"github.com/bpicori/warden/internal/toolerr"
)

const (
	accessFSRead  = landlocksys.AccessFSReadFile | landlocksys.AccessFSReadDir
	accessFSWrite = landlocksys.AccessFSWriteFile | landlocksys.AccessFSRemoveDir | landlocksys.AccessFSRemoveFile |
		landlocksys.AccessFSMakeDir | landlocksys.AccessFSMakeReg | landlocksys.AccessFSMakeSym |
		landlocksys.AccessFSRefer | landlocksys.AccessFSTruncate

	// Rights every ABI handles. REFER (v2) and TRUNCATE (v3) are added
	// when the kernel knows them.
	accessFSBase = landlocksys.AccessFSExecute | accessFSRead | landlocksys.AccessFSWriteFile |
		landlocksys.AccessFSRemoveDir | landlocksys.AccessFSRemoveFile | landlocksys.AccessFSMakeDir |
		landlocksys.AccessFSMakeReg | landlocksys.AccessFSMakeSym

	// Rights the kernel accepts on a rule whose target is not a directory.
	accessFSFileOnly = landlocksys.AccessFSExecute | landlocksys.AccessFSWriteFile |
		landlocksys.AccessFSReadFile | landlocksys.AccessFSTruncate
)

// Syscall entry points, replaced in tests.
var (
	landlockABIFn = landlocksys.LandlockGetABIVersion

	landlockCreateRulesetFn = func(attr *landlocksys.RulesetAttr) (int, error) {
		return landlocksys.LandlockCreateRuleset(attr, 0)
	}

	landlockAddRuleFn = func(rulesetFd int, attr *landlocksys.PathBeneathAttr) error {
		return landlocksys.LandlockAddPathBeneathRule(rulesetFd, attr, 0)
	}

	landlockRestrictSelfFn = func(rulesetFd int) error {
		return landlocksys.AllThreadsLandlockRestrictSelf(rulesetFd, 0)
	}

	setNoNewPrivsFn = func() error {
		return landlocksys.AllThreadsPrctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0)
	}

	openPathFn  = func(path string) (int, error) { return unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0) }
	closePathFn = unix.Close
	statPathFn  = os.Stat
)

// LandlockABIVersion reports the kernel's Landlock ABI, or an error when
// Landlock is unsupported or disabled.
func LandlockABIVersion() (int, error) {
	return landlockABIFn()
}

func landlockAvailable() bool {
	abi, err := landlockABIFn()
	return err == nil && abi >= 1
}

// LandlockSandbox owns a Landlock ruleset under construction. Rules are
// added with AllowRead and AllowWrite and take effect on Apply, which
// restricts the whole process for the rest of its life. Only call Apply in
// a process that is about to exec the sandboxed command.
type LandlockSandbox struct {
	rulesetFd int
	handled   uint64
}

// NewLandlockSandbox creates an empty ruleset that handles execute, read
// and write rights, plus refer and truncate when the kernel knows them.
func NewLandlockSandbox() (*LandlockSandbox, error) {
	abi, err := landlockABIFn()
	if err != nil {
		return nil, toolerr.ExecutionFailed("landlock unavailable on this kernel", err)
	}

	handled := uint64(accessFSBase)
	if abi >= 2 {
		handled |= landlocksys.AccessFSRefer
	}
	if abi >= 3 {
		handled |= landlocksys.AccessFSTruncate
	}

	fd, err := landlockCreateRulesetFn(&landlocksys.RulesetAttr{HandledAccessFS: handled})
	if err != nil {
		return nil, toolerr.ExecutionFailed("failed to create Landlock ruleset", err)
	}
	return &LandlockSandbox{rulesetFd: fd, handled: handled}, nil
}

// NewLandlockSandboxFromRules builds a ruleset granting rules.Read and
// rules.Write.
func NewLandlockSandboxFromRules(rules LandlockRules) (*LandlockSandbox, error) {
	s, err := NewLandlockSandbox()
	if err != nil {
		return nil, err
	}
	for _, path := range rules.Read {
		if err := s.AllowRead(path); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	for _, path := range rules.Write {
		if err := s.AllowWrite(path); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// AllowRead grants read and execute beneath path.
func (s *LandlockSandbox) AllowRead(path string) error {
	return s.addRule(path, accessFSRead|landlocksys.AccessFSExecute)
}

// AllowWrite grants read, write and execute beneath path.
func (s *LandlockSandbox) AllowWrite(path string) error {
	return s.addRule(path, accessFSRead|accessFSWrite|landlocksys.AccessFSExecute)
}

// addRule skips paths that cannot be opened; a missing path needs no rule.
func (s *LandlockSandbox) addRule(path string, access uint64) error {
	if strings.IndexByte(path, 0) >= 0 {
		return toolerr.InvalidInput("Invalid path")
	}
	info, err := statPathFn(path)
	if err != nil {
		return nil
	}
	access &= s.handled
	if !info.IsDir() {
		access &= accessFSFileOnly
	}

	fd, err := openPathFn(path)
	if err != nil {
		return nil
	}
	defer func() { _ = closePathFn(fd) }()

	attr := landlocksys.PathBeneathAttr{AllowedAccess: access, ParentFd: fd}
	if err := landlockAddRuleFn(s.rulesetFd, &attr); err != nil {
		return toolerr.ExecutionFailed(fmt.Sprintf("failed to add Landlock rule for %s", path), err)
	}
	return nil
}

// Apply sets no_new_privs and restricts every thread of the process to the
// ruleset. There is no way back.
func (s *LandlockSandbox) Apply() error {
	if err := setNoNewPrivsFn(); err != nil {
		return toolerr.ExecutionFailed("failed to set no_new_privs", err)
	}
	if err := landlockRestrictSelfFn(s.rulesetFd); err != nil {
		return toolerr.ExecutionFailed("failed to apply Landlock ruleset", err)
	}
	return nil
}

// Close releases the ruleset descriptor. Applied restrictions stay in
// force.
func (s *LandlockSandbox) Close() error {
	if s.rulesetFd < 0 {
		return nil
	}
	err := closePathFn(s.rulesetFd)
	s.rulesetFd = -1
	return err
}

// RunLandlockHelper is the body of the hidden helper subcommand. It reads
// the rules from the environment, restricts itself, then replaces its own
// image with the target command. It only returns on failure.
func RunLandlockHelper(args []string) error {
	argv, err := helperArgv(args)
	if err != nil {
		return err
	}
	rules, err := decodeLandlockRules(os.Getenv(LandlockPayloadEnv))
	if err != nil {
		return err
	}
	env := environWithout(os.Environ(), LandlockPayloadEnv)

	// Restrictions are applied to all threads, but the seccomp filter and
	// exec still run on one pinned thread.
	runtime.LockOSThread()

	sb, err := NewLandlockSandboxFromRules(rules)
	if err != nil {
		return err
	}
	err = sb.Apply()
	_ = sb.Close()
	if err != nil {
		return err
	}

	if !rules.Network {
		if err := denyNetwork(); err != nil {
			return err
		}
	}

	if rules.Cwd != "" {
		if err := os.Chdir(rules.Cwd); err != nil {
			return fmt.Errorf("chdir %q: %w", rules.Cwd, err)
		}
	}

	path, err := resolveCommandPath(argv[0])
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", errHelperCommandNotFound, argv[0])
		}
		return fmt.Errorf("resolve command %q: %w", argv[0], err)
	}
	if err := syscall.Exec(path, argv, env); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", errHelperCommandNotFound, argv[0])
		}
		return fmt.Errorf("exec %q: %w", path, err)
	}
	return nil
}

func resolveCommandPath(command string) (string, error) {
	if strings.Contains(command, "/") {
		return command, nil
	}
	return exec.LookPath(command)
}

// Syscalls refused with EPERM when the policy grants no network.
var networkSyscalls = []string{"socket", "connect", "bind", "listen", "accept", "accept4"}

// denyNetwork layers a Landlock TCP restriction (ABI v4+) and a seccomp
// filter over the socket syscalls, since older kernels cannot restrict
// network through Landlock at all.
func denyNetwork() error {
	if err := landlock.V4.BestEffort().RestrictNet(); err != nil {
		return toolerr.ExecutionFailed("failed to apply Landlock network restriction", err)
	}

	filter := seccomp.Filter{
		NoNewPrivs: false,
		Flag:       seccomp.FilterFlagTSync,
		Policy: seccomp.Policy{
			DefaultAction: seccomp.ActionAllow,
			Syscalls: []seccomp.SyscallGroup{{
				Names:  networkSyscalls,
				Action: seccomp.Action(uint32(seccomp.ActionErrno) | uint32(syscall.EPERM)),
			}},
		},
	}
	if err := seccomp.LoadFilter(filter); err != nil {
		if errors.Is(err, syscall.ENOSYS) || errors.Is(err, syscall.EINVAL) {
			return toolerr.ExecutionFailed("seccomp unavailable on this kernel", err)
		}
		return toolerr.ExecutionFailed("failed to install seccomp filter", err)
	}
	return nil
}
