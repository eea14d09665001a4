package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "name: " + name + "\nversion: \"0.1\"\ntype: rust\ndescription: test node\n"
	if err := os.WriteFile(filepath.Join(dir, "node.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestRegisterUnregisterRoundTrip covers R1: Register then Unregister
// restores the registry to its prior contents.
func TestRegisterUnregisterRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	nodeDir := filepath.Join(tmp, "nodeA")
	writeManifest(t, nodeDir, "a")

	s := OpenAt(filepath.Join(tmp, "nodes.json"))

	before, err := s.List()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Register(nodeDir); err != nil {
		t.Fatalf("register: %v", err)
	}
	mid, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(mid) != len(before)+1 {
		t.Fatalf("expected one more entry, got %d vs %d", len(mid), len(before))
	}

	if err := s.Unregister(nodeDir); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	after, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("expected registry to return to prior size %d, got %d", len(before), len(after))
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	tmp := t.TempDir()
	nodeDir := filepath.Join(tmp, "nodeA")
	writeManifest(t, nodeDir, "a")

	s := OpenAt(filepath.Join(tmp, "nodes.json"))
	if _, err := s.Register(nodeDir); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := s.Register(nodeDir); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegisterRejectsMissingDirectory(t *testing.T) {
	tmp := t.TempDir()
	s := OpenAt(filepath.Join(tmp, "nodes.json"))
	if _, err := s.Register(filepath.Join(tmp, "does-not-exist")); err == nil {
		t.Fatal("expected missing directory to fail registration")
	}
}

func TestRegisterRejectsUnknownDependsOn(t *testing.T) {
	tmp := t.TempDir()
	nodeDir := filepath.Join(tmp, "nodeB")
	if err := os.MkdirAll(nodeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "name: b\nversion: \"0.1\"\ntype: rust\ndescription: test\ndepends_on: [\"missing\"]\n"
	if err := os.WriteFile(filepath.Join(nodeDir, "node.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s := OpenAt(filepath.Join(tmp, "nodes.json"))
	if _, err := s.Register(nodeDir); err == nil {
		t.Fatal("expected unknown depends_on to fail registration")
	}
}

func TestListToleratesMissingRegistryFile(t *testing.T) {
	tmp := t.TempDir()
	s := OpenAt(filepath.Join(tmp, "does-not-exist.json"))
	refs, err := s.List()
	if err != nil {
		t.Fatalf("List on missing file should not error, got %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("expected empty list, got %d", len(refs))
	}
}

func TestListToleratesCorruptRegistryFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nodes.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := OpenAt(path)
	refs, err := s.List()
	if err != nil {
		t.Fatalf("List on corrupt file should not error, got %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("expected empty list, got %d", len(refs))
	}
}

func TestUnregisterMissingFails(t *testing.T) {
	tmp := t.TempDir()
	s := OpenAt(filepath.Join(tmp, "nodes.json"))
	if err := s.Unregister(filepath.Join(tmp, "nope")); err == nil {
		t.Fatal("expected unregistering an unknown path to fail")
	}
}
