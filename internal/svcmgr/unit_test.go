package svcmgr

import (
	"strings"
	"testing"
)

func TestGenerateUnitRustDefault(t *testing.T) {
	content := GenerateUnit("/nodes/cam0", "cam0", "rust", "")
	if !strings.Contains(content, "run --release") {
		t.Errorf("expected cargo default ExecStart, got:\n%s", content)
	}
	if !strings.Contains(content, "RUST_LOG=info") {
		t.Errorf("expected RUST_LOG environment, got:\n%s", content)
	}
}

func TestGenerateUnitPythonDefault(t *testing.T) {
	content := GenerateUnit("/nodes/cam0", "cam0", "python", "")
	if !strings.Contains(content, "venv/bin/python") || !strings.Contains(content, "main.py") {
		t.Errorf("expected python default ExecStart, got:\n%s", content)
	}
	if !strings.Contains(content, "PYTHONUNBUFFERED=1") {
		t.Errorf("expected PYTHONUNBUFFERED environment, got:\n%s", content)
	}
}

func TestGenerateUnitExplicitCommandResolvedAgainstNodeDir(t *testing.T) {
	content := GenerateUnit("/nodes/cam0", "cam0", "python", "run.sh")
	if !strings.Contains(content, "/nodes/cam0/run.sh") {
		t.Errorf("expected relative command resolved against node dir, got:\n%s", content)
	}
}

func TestGenerateUnitCargoPrefixedCommand(t *testing.T) {
	content := GenerateUnit("/nodes/cam0", "cam0", "rust", "cargo run --bin cam0")
	if !strings.Contains(content, "cargo/bin/cargo run --bin cam0") {
		t.Errorf("expected cargo binary path substitution, got:\n%s", content)
	}
}
