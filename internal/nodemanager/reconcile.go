package nodemanager

import (
	"context"
	"time"

	"github.com/bubbaloop/bubbaloopd/internal/manifest"
	"github.com/bubbaloop/bubbaloopd/internal/node"
	"github.com/bubbaloop/bubbaloopd/internal/registry"
	"github.com/bubbaloop/bubbaloopd/internal/stats"
	"github.com/bubbaloop/bubbaloopd/internal/svcmgr"
)

// RefreshAll is the reconciliation routine (§4.3): idempotent, safe to
// call at any time, and the only place that creates cache entries; it
// drops entries whose paths have left the registry (RemoveNode also
// deletes its own entry directly). External calls (service-manager queries, filesystem stats)
// happen with no lock held; the result is folded back under one short
// write-lock acquisition (§5).
func (m *Manager) RefreshAll(ctx context.Context) error {
	refs, err := m.reg.List()
	if err != nil {
		return err
	}

	m.mu.RLock()
	existing := make(map[string]*node.CachedNode, len(m.cache))
	for path, n := range m.cache {
		existing[path] = n
	}
	m.mu.RUnlock()

	fresh := make(map[string]*node.CachedNode, len(refs))
	for _, ref := range refs {
		fresh[ref.Path] = m.buildEntry(ctx, ref, existing[ref.Path])
	}

	m.mu.Lock()
	m.cache = fresh
	m.mu.Unlock()

	var running int
	for _, n := range fresh {
		if n.Status == node.StatusRunning {
			running++
		}
	}
	stats.NodesTotal.Set(float64(len(fresh)))
	stats.NodesRunning.Set(float64(running))
	return nil
}

func (m *Manager) buildEntry(ctx context.Context, ref registry.NodeRef, prev *node.CachedNode) *node.CachedNode {
	n := &node.CachedNode{
		Path:          ref.Path,
		Manifest:      ref.Manifest,
		LastUpdatedMs: time.Now().UnixMilli(),
	}

	// preserve cross-reconciliation state the source of truth here
	// (service manager, filesystem) doesn't know about.
	if prev != nil {
		n.Health = prev.Health
		n.LastHeartbeatMs = prev.LastHeartbeatMs
		n.BuildSubstate = prev.BuildSubstate
		n.BuildOutput = append([]string(nil), prev.BuildOutput...)
	}

	if ref.Manifest == nil {
		n.Status = node.StatusUnknown
		return n
	}

	unit := m.svc.ServiceName(ref.Manifest.Name)
	n.Installed = m.svc.IsInstalled(ref.Manifest.Name)
	n.IsBuilt = manifest.IsBuilt(ref.Path, ref.Manifest)

	if n.Installed {
		active, _ := m.svc.ActiveState(ctx, unit)
		n.Status = mapActiveState(active)
		fs, _ := m.svc.UnitFileState(ctx, unit)
		n.AutostartEnabled = fs == svcmgr.Enabled
	} else {
		n.Status = node.StatusNotInstalled
	}

	if n.BuildSubstate != node.BuildIdle {
		n.Status = node.StatusBuilding
	}

	return n
}

// mapActiveState is the service-state -> lifecycle mapping of §4.3.
func mapActiveState(a svcmgr.ActiveState) node.Status {
	switch a {
	case svcmgr.Active:
		return node.StatusRunning
	case svcmgr.Failed:
		return node.StatusFailed
	case svcmgr.Inactive:
		return node.StatusStopped
	case svcmgr.Activating:
		return node.StatusRunning // optimistic
	case svcmgr.Deactivating:
		return node.StatusStopped
	default:
		return node.StatusStopped
	}
}
