package svcmgr

import (
	"context"
	"testing"
)

// TestInstallUninstallRoundTrip covers R2: Install(name) then
// Uninstall(name) restores installed=false.
func TestInstallUninstallRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	if f.IsInstalled("cam0") {
		t.Fatal("expected cam0 to start uninstalled")
	}
	if err := f.Install(ctx, "/nodes/cam0", "cam0", "rust", ""); err != nil {
		t.Fatalf("install: %v", err)
	}
	if !f.IsInstalled("cam0") {
		t.Fatal("expected cam0 to be installed")
	}

	if err := f.Uninstall(ctx, "cam0"); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if f.IsInstalled("cam0") {
		t.Fatal("expected cam0 to be uninstalled")
	}
}

func TestUninstallIdempotentOnHalfInstalled(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	if err := f.Uninstall(ctx, "never-installed"); err != nil {
		t.Fatalf("uninstall of a never-installed unit should not fail, got %v", err)
	}
}

func TestActiveStateUnknownForUnknownUnit(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	s, err := f.ActiveState(ctx, f.ServiceName("ghost"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != ActiveUnknown {
		t.Errorf("got %v, want ActiveUnknown", s)
	}
}
