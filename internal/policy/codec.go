package policy

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// wirePolicy is the serialized shape: a "type" tag followed by the fields of
// the active variant only. Pointer fields distinguish "carried and false"
// from "not part of this variant".
type wirePolicy struct {
	Type            Kind     `json:"type" yaml:"type"`
	WritableRoots   []string `json:"writable_roots,omitempty" yaml:"writable_roots,omitempty"`
	NetworkAccess   *bool    `json:"network_access,omitempty" yaml:"network_access,omitempty"`
	ExcludeTmpdir   *bool    `json:"exclude_tmpdir,omitempty" yaml:"exclude_tmpdir,omitempty"`
	ExcludeSlashTmp *bool    `json:"exclude_slash_tmp,omitempty" yaml:"exclude_slash_tmp,omitempty"`
}

func (p SandboxPolicy) toWire() wirePolicy {
	p = p.normalized()
	w := wirePolicy{Type: p.Kind}
	switch p.Kind {
	case KindExternalSandbox:
		w.NetworkAccess = &p.NetworkAccess
	case KindWorkspaceWrite:
		if len(p.WritableRoots) > 0 {
			w.WritableRoots = append([]string(nil), p.WritableRoots...)
		}
		w.NetworkAccess = &p.NetworkAccess
		w.ExcludeTmpdir = &p.ExcludeTmpdir
		w.ExcludeSlashTmp = &p.ExcludeSlashTmp
	}
	return w
}

func (w wirePolicy) toPolicy() (SandboxPolicy, error) {
	if w.Type == "" {
		return SandboxPolicy{}, fmt.Errorf("sandbox policy: missing field \"type\"")
	}
	if !w.Type.valid() {
		return SandboxPolicy{}, fmt.Errorf("sandbox policy: unknown type %q", w.Type)
	}

	p := SandboxPolicy{Kind: w.Type}
	switch w.Type {
	case KindExternalSandbox:
		p.NetworkAccess = deref(w.NetworkAccess)
	case KindWorkspaceWrite:
		p.WritableRoots = w.WritableRoots
		p.NetworkAccess = deref(w.NetworkAccess)
		p.ExcludeTmpdir = deref(w.ExcludeTmpdir)
		p.ExcludeSlashTmp = deref(w.ExcludeSlashTmp)
	}
	return p, nil
}

func deref(b *bool) bool {
	return b != nil && *b
}

func (p SandboxPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toWire())
}

func (p *SandboxPolicy) UnmarshalJSON(data []byte) error {
	var w wirePolicy
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := w.toPolicy()
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p SandboxPolicy) MarshalYAML() (any, error) {
	return p.toWire(), nil
}

func (p *SandboxPolicy) UnmarshalYAML(node *yaml.Node) error {
	var w wirePolicy
	if err := node.Decode(&w); err != nil {
		return err
	}
	parsed, err := w.toPolicy()
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Parse accepts either a bare variant name ("read-only") or a JSON object
// with a "type" tag, the two forms a CLI flag is likely to carry.
func Parse(s string) (SandboxPolicy, error) {
	if k := Kind(s); k.valid() {
		return SandboxPolicy{Kind: k}, nil
	}
	var p SandboxPolicy
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return SandboxPolicy{}, fmt.Errorf("parse sandbox policy %q: %w", s, err)
	}
	return p, nil
}
