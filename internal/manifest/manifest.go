// Package manifest parses and validates the per-node manifest file
// (node.yaml) that lives in every registered node's directory.
package manifest

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bubbaloop/bubbaloopd/internal/errs"
	"gopkg.in/yaml.v3"
)

// file name every node directory is expected to carry.
const FileName = "node.yaml"

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type NodeType string

const (
	TypeRust   NodeType = "rust"
	TypePython NodeType = "python"
)

// Manifest is the read-only, on-disk description of a node.
type Manifest struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Type        NodeType `yaml:"type"`
	Description string   `yaml:"description"`
	Author      string   `yaml:"author,omitempty"`
	Build       string   `yaml:"build,omitempty"`
	Command     string   `yaml:"command,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
}

// Read loads and validates the manifest inside nodePath.
func Read(nodePath string) (*Manifest, error) {
	p := filepath.Join(nodePath, FileName)
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.InvalidInput("missing %s in %s", FileName, nodePath)
		}
		return nil, errs.Wrap(errs.KindInvalidInput, err, "reading %s", p)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, err, "parsing %s", p)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate enforces §3's manifest rules: a name matching the identity
// regex, a version containing at least one digit, a known type, a
// description of at most 500 chars, and no null bytes anywhere.
func Validate(m *Manifest) error {
	if !nameRE.MatchString(m.Name) {
		return errs.InvalidInput("invalid node name %q: must match %s", m.Name, nameRE.String())
	}
	if !hasDigit(m.Version) {
		return errs.InvalidInput("invalid version %q: must contain at least one digit", m.Version)
	}
	switch m.Type {
	case TypeRust, TypePython:
	default:
		return errs.InvalidInput("invalid node type %q: must be rust or python", m.Type)
	}
	if len(m.Description) > 500 {
		return errs.InvalidInput("description too long: %d > 500", len(m.Description))
	}
	for _, s := range []string{m.Name, m.Version, string(m.Type), m.Description, m.Author, m.Build, m.Command} {
		if strings.IndexByte(s, 0) >= 0 {
			return errs.InvalidInput("manifest field contains a null byte")
		}
	}
	for _, dep := range m.DependsOn {
		if strings.IndexByte(dep, 0) >= 0 || !nameRE.MatchString(dep) {
			return errs.InvalidInput("invalid depends_on entry %q", dep)
		}
	}
	return nil
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// ResolveCommand returns the absolute path (or bare token, for "cargo "
// prefixed commands) the service manager should exec for this node,
// mirroring the decision table used for unit-file synthesis.
func ResolveCommand(nodePath string, m *Manifest) string {
	if m.Command != "" {
		if strings.HasPrefix(m.Command, "cargo ") {
			return m.Command
		}
		if filepath.IsAbs(m.Command) {
			return m.Command
		}
		return filepath.Join(nodePath, m.Command)
	}
	if m.Type == TypeRust {
		return "cargo run --release"
	}
	return filepath.Join(nodePath, "venv/bin/python") + " main.py"
}

// IsBuilt reports whether the manifest's declared build artifact exists on
// disk. When the manifest names an explicit command, that file's presence
// is the signal; otherwise rust nodes are checked against both the release
// and debug cargo target directories, and python nodes require both the
// node's venv interpreter and its entry point to exist.
func IsBuilt(nodePath string, m *Manifest) bool {
	if m.Command != "" {
		return fileExists(filepath.Join(nodePath, m.Command))
	}
	if m.Type == TypeRust {
		release := filepath.Join(nodePath, "target/release", m.Name)
		debug := filepath.Join(nodePath, "target/debug", m.Name)
		return fileExists(release) || fileExists(debug)
	}
	venv := filepath.Join(nodePath, "venv/bin/python")
	main := filepath.Join(nodePath, "main.py")
	return fileExists(venv) && fileExists(main)
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// ValidateName checks a bare node name against the identity regex used
// throughout the external surfaces (§3, B1/B2).
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return errs.InvalidInput("invalid node name: %q must match %s", name, nameRE.String())
	}
	return nil
}

// ParseVersionDigit is exported for tests that want to probe the version
// rule in isolation.
func ParseVersionDigit(v string) bool { return hasDigit(v) }
