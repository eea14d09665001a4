package nodemanager_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bubbaloop/bubbaloopd/internal/node"
	"github.com/bubbaloop/bubbaloopd/internal/nodemanager"
	"github.com/bubbaloop/bubbaloopd/internal/registry"
	"github.com/bubbaloop/bubbaloopd/internal/svcmgr"
)

func newTestManager(t *testing.T) (*nodemanager.Manager, *svcmgr.Fake, string) {
	t.Helper()
	dir := t.TempDir()
	reg := registry.OpenAt(filepath.Join(dir, "nodes.json"))
	fake := svcmgr.NewFake()
	return nodemanager.New(reg, fake), fake, dir
}

func writeNodeA(t *testing.T, dir string) string {
	t.Helper()
	nodeDir := filepath.Join(dir, "nodeA")
	if err := os.MkdirAll(nodeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifestYAML := "name: a\nversion: \"0.1\"\ntype: rust\n"
	if err := os.WriteFile(filepath.Join(nodeDir, "node.yaml"), []byte(manifestYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return nodeDir
}

// S1: register a minimal manifest, list shows NotInstalled/not-built.
func TestScenarioS1Register(t *testing.T) {
	mgr, _, dir := newTestManager(t)
	nodeDir := writeNodeA(t, dir)
	ctx := context.Background()

	res := mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdAddNode, Source: nodeDir})
	if !res.Success {
		t.Fatalf("AddNode failed: %s", res.Message)
	}

	list := mgr.GetNodeList()
	if len(list) != 1 {
		t.Fatalf("expected 1 node, got %d", len(list))
	}
	n := list[0]
	if n.Name() != "a" {
		t.Fatalf("expected name 'a', got %q", n.Name())
	}
	if n.Status != node.StatusNotInstalled || n.Installed || n.IsBuilt {
		t.Fatalf("unexpected entry: %+v", n)
	}
}

// S2: Install -> unit file exists, status becomes Stopped.
func TestScenarioS2Install(t *testing.T) {
	mgr, fake, dir := newTestManager(t)
	nodeDir := writeNodeA(t, dir)
	ctx := context.Background()

	mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdAddNode, Source: nodeDir})
	res := mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdInstall, NodeName: "a"})
	if !res.Success || res.Message != "Installed a" {
		t.Fatalf("unexpected install result: %+v", res)
	}
	if !fake.IsInstalled("a") {
		t.Fatal("expected unit file to exist")
	}
	n, ok := mgr.GetNode("a")
	if !ok || n.Status != node.StatusStopped {
		t.Fatalf("expected Stopped after install, got %+v", n)
	}
}

// S3: Start -> Running, and an event is delivered.
func TestScenarioS3Start(t *testing.T) {
	mgr, _, dir := newTestManager(t)
	nodeDir := writeNodeA(t, dir)
	ctx := context.Background()

	mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdAddNode, Source: nodeDir})
	mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdInstall, NodeName: "a"})

	events, unsub := mgr.Subscribe()
	defer unsub()

	res := mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdStart, NodeName: "a"})
	if !res.Success {
		t.Fatalf("start failed: %s", res.Message)
	}

	n, ok := mgr.GetNode("a")
	if !ok || n.Status != node.StatusRunning {
		t.Fatalf("expected Running, got %+v", n)
	}

	select {
	case ev := <-events:
		if ev.Verb != "started" || ev.NodeName != "a" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a started event")
	}
}

// S4: Build with a trivial command populates the output deque; is_built stays
// true because the release artifact exists on disk.
func TestScenarioS4Build(t *testing.T) {
	dir := t.TempDir()
	reg := registry.OpenAt(filepath.Join(dir, "nodes.json"))
	fake := svcmgr.NewFake()
	mgr := nodemanager.New(reg, fake)
	ctx := context.Background()

	nodeDir := filepath.Join(dir, "nodeA")
	os.MkdirAll(nodeDir, 0o755)
	manifestYAML := "name: a\nversion: \"0.1\"\ntype: rust\nbuild: \"echo hello && exit 0\"\n"
	os.WriteFile(filepath.Join(nodeDir, "node.yaml"), []byte(manifestYAML), 0o644)
	os.MkdirAll(filepath.Join(nodeDir, "target/release"), 0o755)
	os.WriteFile(filepath.Join(nodeDir, "target/release/a"), []byte("x"), 0o755)

	mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdAddNode, Source: nodeDir})

	events, unsub := mgr.Subscribe()
	defer unsub()

	res := mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdBuild, NodeName: "a"})
	if !res.Success || res.Message != "Building a (background)" {
		t.Fatalf("unexpected build result: %+v", res)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Verb == "build_complete" {
				goto done
			}
		case <-deadline:
			t.Fatal("timed out waiting for build_complete")
		}
	}
done:
	n, ok := mgr.GetNode("a")
	if !ok {
		t.Fatal("node vanished")
	}
	if !n.IsBuilt {
		t.Fatalf("expected is_built=true, got %+v", n)
	}
	found := false
	for _, line := range n.BuildOutput {
		if line == "hello" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'hello' in build output, got %v", n.BuildOutput)
	}
}

// B3: a command against a missing name fails, does not panic.
func TestMissingNodeFails(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	res := mgr.ExecuteCommand(context.Background(), node.Command{Type: node.CmdStart, NodeName: "nope"})
	if res.Success {
		t.Fatal("expected failure for missing node")
	}
}

// P4: the build output deque never exceeds 100 lines.
func TestBuildOutputCap(t *testing.T) {
	n := &node.CachedNode{}
	for i := 0; i < 250; i++ {
		n.AppendOutput("line")
	}
	if len(n.BuildOutput) != 100 {
		t.Fatalf("expected cap of 100, got %d", len(n.BuildOutput))
	}
}
