// Package nodemanager is the state core (C3): the authoritative
// in-memory cache of every node's state, the single entry point for
// mutation, and the source of the broadcast event stream. No other
// component is permitted to write into the cache (design note, §9).
package nodemanager

import (
	"context"
	"sync"
	"time"

	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
	"github.com/bubbaloop/bubbaloopd/internal/manifest"
	"github.com/bubbaloop/bubbaloopd/internal/node"
	"github.com/bubbaloop/bubbaloopd/internal/registry"
	"github.com/bubbaloop/bubbaloopd/internal/svcmgr"
)

// ReconcileInterval is the periodic refresh_all cadence (§4.3).
const ReconcileInterval = 5 * time.Second

// Manager owns the node cache. Every exported method is safe for
// concurrent use; the cache lock is never held across a call into
// svcmgr or the filesystem (§5).
type Manager struct {
	mu    sync.RWMutex
	cache map[string]*node.CachedNode // keyed by canonical path

	reg *registry.Store
	svc svcmgr.Manager

	buildMu sync.Mutex
	cancels map[string]context.CancelFunc // path -> build/clean cancel, in-flight only

	events *broadcaster
}

func New(reg *registry.Store, svc svcmgr.Manager) *Manager {
	return &Manager{
		cache:   make(map[string]*node.CachedNode),
		reg:     reg,
		svc:     svc,
		cancels: make(map[string]context.CancelFunc),
		events:  newBroadcaster(64),
	}
}

// Run starts the periodic reconciliation loop; it blocks until ctx is
// cancelled, at which point every in-flight build/clean is cancelled too.
func (m *Manager) Run(ctx context.Context) {
	if err := m.RefreshAll(ctx); err != nil {
		nlog.Warningf("nodemanager: initial refresh_all: %v", err)
	}
	t := time.NewTicker(ReconcileInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.cancelAllBuilds()
			return
		case <-t.C:
			if err := m.RefreshAll(ctx); err != nil {
				nlog.Warningf("nodemanager: periodic refresh_all: %v", err)
			}
		}
	}
}

func (m *Manager) cancelAllBuilds() {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	for path, cancel := range m.cancels {
		cancel()
		delete(m.cancels, path)
	}
}

// GetNodeList returns a defensive clone of every cached node.
func (m *Manager) GetNodeList() []*node.CachedNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*node.CachedNode, 0, len(m.cache))
	for _, n := range m.cache {
		out = append(out, n.Clone())
	}
	return out
}

// GetNode looks a node up by manifest name (linear scan, matching the
// source: the cache is keyed by path, names are resolved on the fly).
func (m *Manager) GetNode(name string) (*node.CachedNode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.cache {
		if n.Name() == name {
			return n.Clone(), true
		}
	}
	return nil, false
}

// findPathByName returns defensive clones, same as GetNode, so callers
// never hold a pointer into the live cache outside the lock (§5).
func (m *Manager) findPathByName(name string) (string, *node.CachedNode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for path, n := range m.cache {
		if n.Name() == name {
			return path, n.Clone(), true
		}
	}
	return "", nil, false
}

// PeekUnreconciled returns a best-effort view of registered nodes that
// have not yet had a reconciliation pass run against them — reported with
// StatusUnknown rather than omitted (SPEC_FULL.md §4.7 discover_nodes).
func (m *Manager) PeekUnreconciled() []*node.CachedNode {
	refs, err := m.reg.List()
	if err != nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*node.CachedNode
	for _, ref := range refs {
		if _, ok := m.cache[ref.Path]; ok {
			continue
		}
		n := &node.CachedNode{Path: ref.Path, Manifest: ref.Manifest, Status: node.StatusUnknown}
		out = append(out, n)
	}
	return out
}

// Doctor cross-checks cached invariants (I1/I3/I4) against live ground
// truth and reports any mismatch as a diagnostic line; it never mutates
// the cache (SPEC_FULL.md §4.7 doctor tool).
func (m *Manager) Doctor(ctx context.Context) []string {
	var diags []string
	for _, n := range m.GetNodeList() {
		name := n.Name()
		if name == "" {
			continue
		}
		unit := m.svc.ServiceName(name)
		actuallyInstalled := m.svc.IsInstalled(name)
		if actuallyInstalled != n.Installed {
			diags = append(diags, fmtDiag(name, "installed", n.Installed, actuallyInstalled))
		}
		if n.Manifest != nil {
			actuallyBuilt := manifest.IsBuilt(n.Path, n.Manifest)
			if actuallyBuilt != n.IsBuilt {
				diags = append(diags, fmtDiag(name, "is_built", n.IsBuilt, actuallyBuilt))
			}
		}
		if n.Health == node.HealthHealthy && n.Status != node.StatusRunning {
			diags = append(diags, name+": reports healthy but status is "+n.Status.String())
		}
		_ = unit
	}
	if len(diags) == 0 {
		diags = append(diags, "no inconsistencies found")
	}
	return diags
}

func fmtDiag(name, field string, cached, actual bool) string {
	return name + ": cached " + field + "=" + boolStr(cached) + " but actual is " + boolStr(actual)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Subscribe returns a channel of state-change events and an unsubscribe
// function. The channel is bounded; a slow consumer sees gaps, never
// backpressure on the producer (§5).
func (m *Manager) Subscribe() (<-chan node.Event, func()) {
	return m.events.subscribe()
}

func (m *Manager) emit(verb string, n *node.CachedNode) {
	ev := node.Event{
		Verb:        verb,
		NodeName:    n.Name(),
		State:       n.Clone(),
		TimestampMs: time.Now().UnixMilli(),
	}
	m.events.publish(ev)
}
