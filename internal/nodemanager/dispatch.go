package nodemanager

import (
	"context"
	"strconv"
	"time"

	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
	"github.com/bubbaloop/bubbaloopd/internal/errs"
	"github.com/bubbaloop/bubbaloopd/internal/node"
	"github.com/bubbaloop/bubbaloopd/internal/stats"
)

// ExecuteCommand is the single entry point for mutation (§4.3). Every
// kind is converted into the uniform node.Result so callers on every
// transport see a homogeneous shape (§7 propagation policy). Latency and
// outcome are recorded for every call regardless of transport.
func (m *Manager) ExecuteCommand(ctx context.Context, cmd node.Command) node.Result {
	start := time.Now()
	res := m.dispatch(ctx, cmd)
	stats.CommandLatency.WithLabelValues(cmd.Type.String()).Observe(time.Since(start).Seconds())
	stats.CommandsTotal.WithLabelValues(cmd.Type.String(), strconv.FormatBool(res.Success)).Inc()
	return res
}

func (m *Manager) dispatch(ctx context.Context, cmd node.Command) node.Result {
	switch cmd.Type {
	case node.CmdAddNode:
		return m.doAddNode(ctx, cmd)
	case node.CmdRefresh:
		if err := m.RefreshAll(ctx); err != nil {
			return failure(err)
		}
		return node.Result{Success: true, Message: "Refreshed"}
	case node.CmdGetLogs:
		return m.doGetLogs(ctx, cmd)
	}

	path, cached, ok := m.findPathByName(cmd.NodeName)
	if !ok {
		return failure(errs.NotFound("node not found: %s", cmd.NodeName))
	}

	switch cmd.Type {
	case node.CmdStart:
		m.startDependencies(ctx, cached)
		return m.simple(ctx, cmd.NodeName, "started", "Started", func() error {
			return m.svc.Start(ctx, m.svc.ServiceName(cmd.NodeName))
		})
	case node.CmdStop:
		return m.simple(ctx, cmd.NodeName, "stopped", "Stopped", func() error {
			return m.svc.Stop(ctx, m.svc.ServiceName(cmd.NodeName))
		})
	case node.CmdRestart:
		return m.simple(ctx, cmd.NodeName, "restarted", "Restarted", func() error {
			return m.svc.Restart(ctx, m.svc.ServiceName(cmd.NodeName))
		})
	case node.CmdEnableAutostart:
		return m.simple(ctx, cmd.NodeName, "autostart_enabled", "Enabled autostart for", func() error {
			return m.svc.Enable(ctx, m.svc.ServiceName(cmd.NodeName))
		})
	case node.CmdDisableAutostart:
		return m.simple(ctx, cmd.NodeName, "autostart_disabled", "Disabled autostart for", func() error {
			return m.svc.Disable(ctx, m.svc.ServiceName(cmd.NodeName))
		})
	case node.CmdInstall:
		return m.doInstall(ctx, path, cached, cmd.NodeName)
	case node.CmdUninstall:
		return m.simple(ctx, cmd.NodeName, "uninstalled", "Uninstalled", func() error {
			return m.svc.Uninstall(ctx, cmd.NodeName)
		})
	case node.CmdRemoveNode:
		return m.doRemoveNode(ctx, path, cmd.NodeName)
	case node.CmdBuild:
		return m.doBuild(ctx, path, cached, cmd.NodeName)
	case node.CmdClean:
		return m.doClean(ctx, path, cached, cmd.NodeName)
	default:
		return failure(errs.InvalidInput("unrecognized command"))
	}
}

// startDependencies starts a node's direct depends_on targets, in the order
// listed, before the node itself; dependencies of those dependencies are not
// started (supplemental feature, SPEC_FULL.md §4.3, grounded on
// original_source's node_manager.rs). A dependency that isn't installed is
// logged and skipped rather than failing the whole Start — dependencies are
// a best-effort ordering hint, not a hard precondition.
func (m *Manager) startDependencies(ctx context.Context, cached *node.CachedNode) {
	if cached == nil || cached.Manifest == nil {
		return
	}
	for _, dep := range cached.Manifest.DependsOn {
		depPath, depCached, ok := m.findPathByName(dep)
		if !ok {
			nlog.Warningf("nodemanager: dependency %s not registered, skipping", dep)
			continue
		}
		_ = depPath
		if !depCached.Installed {
			nlog.Warningf("nodemanager: dependency %s is not installed, skipping", dep)
			continue
		}
		if depCached.Status == node.StatusRunning {
			continue
		}
		if err := m.svc.Start(ctx, m.svc.ServiceName(dep)); err != nil {
			nlog.Warningf("nodemanager: starting dependency %s: %v", dep, err)
		}
	}
}

func (m *Manager) simple(ctx context.Context, name, verb, verbTitle string, op func() error) node.Result {
	if err := op(); err != nil {
		return failure(err)
	}
	if err := m.RefreshAll(ctx); err != nil {
		return failure(err)
	}
	n, ok := m.GetNode(name)
	if ok {
		m.emit(verb, n)
	}
	return node.Result{Success: true, Message: verbTitle + " " + name, State: n}
}

func (m *Manager) doAddNode(ctx context.Context, cmd node.Command) node.Result {
	mf, err := m.reg.Register(cmd.Source)
	if err != nil {
		return failure(err)
	}
	if err := m.RefreshAll(ctx); err != nil {
		return failure(err)
	}
	n, _ := m.GetNode(mf.Name)
	if n != nil {
		m.emit("added", n)
	}
	return node.Result{Success: true, Message: "Added " + mf.Name, State: n}
}

func (m *Manager) doRemoveNode(ctx context.Context, path, name string) node.Result {
	if err := m.reg.Unregister(path); err != nil {
		return failure(err)
	}
	// I5: registry removal synchronously removes the cache entry.
	m.mu.Lock()
	delete(m.cache, path)
	m.mu.Unlock()

	if err := m.RefreshAll(ctx); err != nil {
		return failure(err)
	}
	m.emit("removed", &node.CachedNode{Path: path})
	return node.Result{Success: true, Message: "Removed " + name}
}

func (m *Manager) doInstall(ctx context.Context, path string, cached *node.CachedNode, name string) node.Result {
	if cached.Manifest == nil {
		return failure(errs.InvalidInput("node %s has no readable manifest", name))
	}
	cmdStr := ""
	if cached.Manifest.Command != "" {
		cmdStr = cached.Manifest.Command
	}
	if err := m.svc.Install(ctx, path, name, string(cached.Manifest.Type), cmdStr); err != nil {
		return failure(err)
	}
	if err := m.RefreshAll(ctx); err != nil {
		return failure(err)
	}
	n, _ := m.GetNode(name)
	if n != nil {
		m.emit("installed", n)
	}
	return node.Result{Success: true, Message: "Installed " + name, State: n}
}

func failure(err error) node.Result {
	return node.Result{Success: false, Message: err.Error()}
}
