package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bpicori/warden/internal/config"
	"github.com/bpicori/warden/internal/policy"
)

// multiFlag accumulates every occurrence of a repeatable flag.
type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ", ")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func (*multiFlag) Type() string { return "strings" }

// boolFlag tracks whether it was explicitly set so it only overrides the
// config file when given.
type boolFlag struct {
	value bool
	set   bool
}

func (b *boolFlag) String() string {
	if b == nil {
		return "false"
	}
	return fmt.Sprintf("%t", b.value)
}

func (b *boolFlag) Set(value string) error {
	parsed, err := parseBool(value)
	if err != nil {
		return err
	}
	b.value = parsed
	b.set = true
	return nil
}

func (*boolFlag) Type() string { return "bool" }

// stringFlag tracks whether it was explicitly set.
type stringFlag struct {
	value string
	set   bool
}

func (s *stringFlag) String() string {
	if s == nil {
		return ""
	}
	return s.value
}

func (s *stringFlag) Set(value string) error {
	s.value = value
	s.set = true
	return nil
}

func (*stringFlag) Type() string { return "string" }

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", value)
	}
}

func boolVar(fs *pflag.FlagSet, b *boolFlag, name, usage string) {
	fs.VarPF(b, name, "", usage).NoOptDefVal = "true"
}

// settingsFlags are the options shared by every subcommand that needs a
// workspace and a sandbox policy.
type settingsFlags struct {
	configPath    string
	workspace     stringFlag
	trust         boolFlag
	logLevel      stringFlag
	policy        stringFlag
	writableRoots multiFlag
	network       boolFlag
	backend       stringFlag
	allowDomains  multiFlag
	denyDomains   multiFlag
	timeout       stringFlag
}

func (f *settingsFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Load settings from YAML file (default $"+config.EnvPath+")")
	fs.VarP(&f.workspace, "workspace", "w", "Workspace root (default: current directory)")
	boolVar(fs, &f.trust, "trust", "Trust mode: allow paths outside the workspace")
	fs.Var(&f.logLevel, "log-level", "Log level: debug, info, warn, error")
	fs.Var(&f.policy, "policy", "Sandbox policy: danger-full-access, read-only, external-sandbox, workspace-write, or a JSON object")
	fs.Var(&f.writableRoots, "writable-root", "Extra writable root for workspace-write (can repeat)")
	boolVar(fs, &f.network, "network", "Allow network access under workspace-write")
	fs.Var(&f.backend, "backend", "Sandbox backend: auto, none, seatbelt, landlock")
	fs.Var(&f.allowDomains, "allow-domain", "Only allow network access to domain (can repeat, supports *.example.com)")
	fs.Var(&f.denyDomains, "deny-domain", "Deny network access to domain (can repeat, supports *.example.com)")
	fs.Var(&f.timeout, "timeout", "Command timeout, e.g. 30s or 2m (clamped to 1s..10m)")
}

// overrides turns the explicitly set flags into a config layer.
func (f *settingsFlags) overrides(base *config.Config) (*config.Config, error) {
	cfg := &config.Config{
		Sandbox: config.Sandbox{
			AllowDomains: append([]string{}, f.allowDomains...),
			DenyDomains:  append([]string{}, f.denyDomains...),
		},
	}
	if f.workspace.set {
		cfg.Workspace = stringPtr(f.workspace.value)
	}
	if f.trust.set {
		cfg.TrustMode = boolPtr(f.trust.value)
	}
	if f.logLevel.set {
		cfg.LogLevel = stringPtr(f.logLevel.value)
	}
	if f.backend.set {
		cfg.Sandbox.Backend = stringPtr(f.backend.value)
	}
	if f.timeout.set {
		d, err := time.ParseDuration(f.timeout.value)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout %q: %w", f.timeout.value, err)
		}
		cfg.Sandbox.Timeout = &d
	}

	// --writable-root and --network refine whatever policy is in effect.
	if f.policy.set || len(f.writableRoots) > 0 || f.network.set {
		p := policy.Default()
		if base != nil && base.Sandbox.Policy != nil {
			p = *base.Sandbox.Policy
		}
		if f.policy.set {
			parsed, err := policy.Parse(f.policy.value)
			if err != nil {
				return nil, err
			}
			p = parsed
		}
		if len(f.writableRoots) > 0 {
			if p.Kind != policy.KindWorkspaceWrite {
				return nil, fmt.Errorf("--writable-root requires the %s policy, got %s", policy.KindWorkspaceWrite, p.Kind)
			}
			p.WritableRoots = append(append([]string{}, p.WritableRoots...), f.writableRoots...)
		}
		if f.network.set {
			p.NetworkAccess = f.network.value
		}
		cfg.Sandbox.Policy = &p
	}
	return cfg, nil
}

// settings loads the config file (flag, then $WARDEN_CONFIG) and applies
// the flag overrides.
func (f *settingsFlags) settings(getenv func(string) string) (config.Settings, error) {
	effective := &config.Config{}

	path := f.configPath
	if path == "" {
		path = getenv(config.EnvPath)
	}
	if path != "" {
		fromFile, err := config.Load(path)
		if err != nil {
			return config.Settings{}, err
		}
		config.Merge(effective, fromFile)
	}

	over, err := f.overrides(effective)
	if err != nil {
		return config.Settings{}, err
	}
	config.Merge(effective, over)
	return effective.Resolve()
}

func boolPtr(v bool) *bool {
	return &v
}

func stringPtr(v string) *string {
	return &v
}
