package nodemanager

import (
	"time"

	"github.com/bubbaloop/bubbaloopd/internal/node"
)

// MarkHeartbeat records a heartbeat for name, flipping its health to
// Healthy (§4.4). It satisfies health.Manager.
func (m *Manager) MarkHeartbeat(name string, atMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.cache {
		if n.Name() == name {
			n.Health = node.HealthHealthy
			n.LastHeartbeatMs = atMs
			return
		}
	}
}

// SweepUnhealthy flips health to Unhealthy for every cached node, whatever
// its status, whose last heartbeat is older than olderThan; nodes that
// have never heartbeated keep their current health.
func (m *Manager) SweepUnhealthy(olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.cache {
		if n.LastHeartbeatMs == 0 {
			continue
		}
		if n.LastHeartbeatMs < cutoff {
			n.Health = node.HealthUnhealthy
		}
	}
}
