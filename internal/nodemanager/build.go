package nodemanager

import (
	"context"

	buildrunner "github.com/bubbaloop/bubbaloopd/internal/build"
	"github.com/bubbaloop/bubbaloopd/internal/errs"
	"github.com/bubbaloop/bubbaloopd/internal/node"
)

const cleanCommand = "cargo clean || rm -rf target"

// doBuild and doClean are the only commands that don't complete
// synchronously (§4.3). They flip the build substate under the write
// lock, spawn a detached goroutine that streams output back into the
// cache, and return immediately with a "queued" message.
func (m *Manager) doBuild(ctx context.Context, path string, cached *node.CachedNode, name string) node.Result {
	if cached.Manifest == nil || cached.Manifest.Build == "" {
		return failure(errs.InvalidInput("node %s has no build command", name))
	}
	return m.startBuildTask(ctx, path, name, node.BuildBuilding, cached.Manifest.Build, "building", "build_complete")
}

func (m *Manager) doClean(ctx context.Context, path string, cached *node.CachedNode, name string) node.Result {
	_ = cached
	return m.startBuildTask(ctx, path, name, node.BuildCleaning, cleanCommand, "cleaning", "clean_complete")
}

func (m *Manager) startBuildTask(ctx context.Context, path, name string, substate node.BuildSubstate, shellCmd, startVerb, doneVerb string) node.Result {
	m.buildMu.Lock()
	if _, busy := m.cancels[path]; busy {
		m.buildMu.Unlock()
		return failure(errs.Busy("a build/clean is already in flight for %s", name))
	}
	taskCtx, cancel := context.WithCancel(context.Background())
	m.cancels[path] = cancel
	m.buildMu.Unlock()

	m.mu.Lock()
	if n, ok := m.cache[path]; ok {
		n.BuildSubstate = substate
		n.BuildOutput = nil
		n.Status = node.StatusBuilding
	}
	m.mu.Unlock()

	if n, ok := m.GetNode(name); ok {
		m.emit(startVerb, n)
	}

	go m.runBuildTask(taskCtx, cancel, path, name, shellCmd, doneVerb)

	verb := "Building"
	if substate == node.BuildCleaning {
		verb = "Cleaning"
	}
	return node.Result{Success: true, Message: verb + " " + name + " (background)"}
}

func (m *Manager) runBuildTask(ctx context.Context, cancel context.CancelFunc, path, name, shellCmd, doneVerb string) {
	defer func() {
		m.buildMu.Lock()
		delete(m.cancels, path)
		m.buildMu.Unlock()
		cancel()
	}()

	onLine := func(line string) {
		m.mu.Lock()
		if n, ok := m.cache[path]; ok {
			n.AppendOutput(line)
		}
		m.mu.Unlock()
	}

	err := buildrunner.Run(ctx, path, shellCmd, onLine)

	m.mu.Lock()
	if n, ok := m.cache[path]; ok {
		n.BuildSubstate = node.BuildIdle
		n.IsBuilt = err == nil
		if err == nil {
			n.AppendOutput("--- build succeeded ---")
		} else {
			n.AppendOutput("--- build failed: " + err.Error() + " ---")
		}
	}
	m.mu.Unlock()

	if rerr := m.RefreshAll(ctx); rerr != nil {
		// ctx may already be done; reconcile on next periodic tick instead.
		_ = rerr
	}

	if n, ok := m.GetNode(name); ok {
		m.emit(doneVerb, n)
	}
}
