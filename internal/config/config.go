// Package config loads the warden YAML file and layers command-line
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bpicori/warden/internal/policy"
	"github.com/bpicori/warden/internal/proxy"
	"github.com/bpicori/warden/internal/sandbox"
)

// EnvPath names the config file when --config is not given.
const EnvPath = "WARDEN_CONFIG"

// Config mirrors the file layout. Pointer fields distinguish "not set"
// from the zero value so a later layer only overrides what it mentions.
type Config struct {
	Workspace *string `yaml:"workspace"`
	TrustMode *bool   `yaml:"trust_mode"`
	LogLevel  *string `yaml:"log_level"`
	Sandbox   Sandbox `yaml:"sandbox"`
}

type Sandbox struct {
	Policy       *policy.SandboxPolicy `yaml:"policy"`
	Backend      *string               `yaml:"backend"`
	AllowDomains []string              `yaml:"allow_domains"`
	DenyDomains  []string              `yaml:"deny_domains"`
	Timeout      *time.Duration        `yaml:"timeout"`
}

// Load reads a config file. Unknown keys are rejected so typos surface.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return &cfg, nil
}

// Merge copies every field set in src onto dst. Domain lists accumulate.
func Merge(dst, src *Config) {
	if dst == nil || src == nil {
		return
	}
	if src.Workspace != nil {
		dst.Workspace = ptr(*src.Workspace)
	}
	if src.TrustMode != nil {
		dst.TrustMode = ptr(*src.TrustMode)
	}
	if src.LogLevel != nil {
		dst.LogLevel = ptr(*src.LogLevel)
	}
	if src.Sandbox.Policy != nil {
		p := *src.Sandbox.Policy
		p.WritableRoots = append([]string(nil), p.WritableRoots...)
		dst.Sandbox.Policy = &p
	}
	if src.Sandbox.Backend != nil {
		dst.Sandbox.Backend = ptr(*src.Sandbox.Backend)
	}
	if src.Sandbox.Timeout != nil {
		dst.Sandbox.Timeout = ptr(*src.Sandbox.Timeout)
	}
	dst.Sandbox.AllowDomains = append(dst.Sandbox.AllowDomains, src.Sandbox.AllowDomains...)
	dst.Sandbox.DenyDomains = append(dst.Sandbox.DenyDomains, src.Sandbox.DenyDomains...)
}

func ptr[T any](v T) *T {
	return &v
}

// Settings is a fully defaulted, validated Config.
type Settings struct {
	Workspace string
	TrustMode bool
	LogLevel  slog.Level
	Policy    policy.SandboxPolicy
	// Backend is nil for automatic detection.
	Backend *sandbox.Type
	Network proxy.Rules
	Timeout time.Duration
}

// Resolve fills defaults and validates c. The workspace defaults to the
// current directory and is made absolute.
func (c *Config) Resolve() (Settings, error) {
	s := Settings{
		Policy:  policy.Default(),
		Timeout: sandbox.DefaultTimeout,
	}
	var errs []error

	ws := ""
	if c.Workspace != nil {
		ws = *c.Workspace
	}
	if ws == "" {
		wd, err := os.Getwd()
		if err != nil {
			return s, fmt.Errorf("resolve workspace: %w", err)
		}
		ws = wd
	}
	abs, err := filepath.Abs(ws)
	if err != nil {
		return s, fmt.Errorf("resolve workspace %q: %w", ws, err)
	}
	s.Workspace = abs

	if c.TrustMode != nil {
		s.TrustMode = *c.TrustMode
	}

	if c.LogLevel != nil {
		level, err := ParseLogLevel(*c.LogLevel)
		if err != nil {
			errs = append(errs, err)
		}
		s.LogLevel = level
	}

	if c.Sandbox.Policy != nil {
		s.Policy = *c.Sandbox.Policy
	}
	if err := s.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Sandbox.Backend != nil {
		backend := strings.ToLower(strings.TrimSpace(*c.Sandbox.Backend))
		if backend != "" && backend != "auto" {
			t, ok := sandbox.ParseType(backend)
			if !ok {
				errs = append(errs, fmt.Errorf("unknown sandbox backend %q (want auto, none, seatbelt or landlock)", *c.Sandbox.Backend))
			} else {
				s.Backend = &t
			}
		}
	}

	if c.Sandbox.Timeout != nil {
		s.Timeout = sandbox.ClampTimeout(*c.Sandbox.Timeout)
	}

	s.Network = proxy.Rules{
		Allow: append([]string(nil), c.Sandbox.AllowDomains...),
		Deny:  append([]string(nil), c.Sandbox.DenyDomains...),
	}
	if !s.Network.Empty() && !s.Policy.HasNetworkAccess() {
		errs = append(errs, errors.New("allow_domains/deny_domains require a sandbox policy with network access"))
	}

	return s, errors.Join(errs...)
}

// ParseLogLevel accepts debug, info, warn/warning and error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
