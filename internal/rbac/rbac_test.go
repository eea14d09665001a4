package rbac

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRequiredTier(t *testing.T) {
	cases := map[string]Tier{
		"list_nodes":        Viewer,
		"get_node_health":   Viewer,
		"start_node":        Operator,
		"send_command":      Operator,
		"install_node":      Admin,
		"query_zenoh":       Admin,
		"totally_made_up":   Admin,
	}
	for tool, want := range cases {
		if got := RequiredTier(tool); got != want {
			t.Errorf("RequiredTier(%q) = %v, want %v", tool, got, want)
		}
	}
}

func TestHasPermission(t *testing.T) {
	if !Admin.HasPermission(Viewer) {
		t.Error("admin should satisfy viewer requirement")
	}
	if Viewer.HasPermission(Admin) {
		t.Error("viewer should not satisfy admin requirement")
	}
	if !Operator.HasPermission(Operator) {
		t.Error("operator should satisfy its own tier requirement")
	}
}

func TestLoadTokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens")
	content := "abc123:admin:alice\ndef456:viewer\n# a comment\nnodefault\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	ts, err := LoadTokenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := ts.Authenticate("abc123")
	if !ok || p.Tier != Admin || p.Name != "alice" {
		t.Errorf("got %+v, %v", p, ok)
	}
	p2, ok := ts.Authenticate("def456")
	if !ok || p2.Tier != Viewer {
		t.Errorf("got %+v, %v", p2, ok)
	}
	p3, ok := ts.Authenticate("nodefault")
	if !ok || p3.Tier != defaultTier {
		t.Errorf("expected fallback to default tier, got %+v, %v", p3, ok)
	}
	if _, ok := ts.Authenticate("missing"); ok {
		t.Error("unknown token should not authenticate")
	}
}

func TestLoadTokenFileMissing(t *testing.T) {
	ts, err := LoadTokenFile(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ts.Authenticate("anything"); ok {
		t.Error("empty store should never authenticate")
	}
}

func TestLoadJSONTokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp_tokens.json")
	content := `{"tok-admin": {"tier": "admin", "label": "ops"}, "tok-bare": {}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	ts, err := LoadJSONTokenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := ts.Authenticate("tok-admin")
	if !ok || p.Tier != Admin || p.Name != "ops" {
		t.Errorf("got %+v, %v", p, ok)
	}
	p2, ok := ts.Authenticate("tok-bare")
	if !ok || p2.Tier != defaultTier || p2.Name != "tok-bare" {
		t.Errorf("expected fallback defaults, got %+v, %v", p2, ok)
	}
}

func TestLoadJSONTokenFileMissing(t *testing.T) {
	ts, err := LoadJSONTokenFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ts.Authenticate("anything"); ok {
		t.Error("empty store should never authenticate")
	}
}

func TestTokenStoreMerge(t *testing.T) {
	a := &TokenStore{byToken: map[string]Principal{"x": {Name: "x", Tier: Viewer}}}
	b := &TokenStore{byToken: map[string]Principal{"x": {Name: "x2", Tier: Admin}, "y": {Name: "y", Tier: Operator}}}
	a.Merge(b)
	p, ok := a.Authenticate("x")
	if !ok || p.Tier != Admin {
		t.Errorf("merge should overwrite existing token, got %+v", p)
	}
	if _, ok := a.Authenticate("y"); !ok {
		t.Error("merge should add new tokens from other")
	}
}
