package manifest

import (
	"strings"
	"testing"
)

// TestValidateNameBoundaries covers B1/B2: names of length 0 or 65 are
// rejected, as are names containing '/', '.', ' ', or ';'.
func TestValidateNameBoundaries(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"", false},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
		{"a/b", false},
		{"a.b", false},
		{"a b", false},
		{"a;b", false},
		{"valid-name_1", true},
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if c.ok && err != nil {
			t.Errorf("ValidateName(%q): unexpected error %v", c.name, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ValidateName(%q): expected error, got nil", c.name)
		}
	}
}

func validManifest() *Manifest {
	return &Manifest{
		Name:        "cam0",
		Version:     "0.1.0",
		Type:        TypeRust,
		Description: "a camera node",
	}
}

func TestValidateRejectsBadVersion(t *testing.T) {
	m := validManifest()
	m.Version = "no-digits"
	if err := Validate(m); err == nil {
		t.Fatal("expected version without a digit to be rejected")
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	m := validManifest()
	m.Type = "go"
	if err := Validate(m); err == nil {
		t.Fatal("expected unknown type to be rejected")
	}
}

func TestValidateRejectsLongDescription(t *testing.T) {
	m := validManifest()
	m.Description = strings.Repeat("x", 501)
	if err := Validate(m); err == nil {
		t.Fatal("expected description over 500 chars to be rejected")
	}
}

func TestValidateRejectsNullByte(t *testing.T) {
	m := validManifest()
	m.Description = "bad\x00description"
	if err := Validate(m); err == nil {
		t.Fatal("expected null byte in field to be rejected")
	}
}

func TestValidateRejectsInvalidDependsOn(t *testing.T) {
	m := validManifest()
	m.DependsOn = []string{"bad name"}
	if err := Validate(m); err == nil {
		t.Fatal("expected invalid depends_on entry to be rejected")
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := Validate(validManifest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveCommandDefaults(t *testing.T) {
	rust := &Manifest{Name: "a", Type: TypeRust}
	if got := ResolveCommand("/node", rust); got != "cargo run --release" {
		t.Errorf("rust default: got %q", got)
	}
	py := &Manifest{Name: "a", Type: TypePython}
	if got := ResolveCommand("/node", py); got != "/node/venv/bin/python main.py" {
		t.Errorf("python default: got %q", got)
	}
}

func TestResolveCommandCargoPrefixKeptVerbatim(t *testing.T) {
	m := &Manifest{Name: "a", Type: TypeRust, Command: "cargo run --bin x"}
	if got := ResolveCommand("/node", m); got != "cargo run --bin x" {
		t.Errorf("got %q", got)
	}
}

func TestResolveCommandRelativeResolvedAgainstNodeDir(t *testing.T) {
	m := &Manifest{Name: "a", Type: TypePython, Command: "bin/run.sh"}
	if got := ResolveCommand("/node", m); got != "/node/bin/run.sh" {
		t.Errorf("got %q", got)
	}
}
