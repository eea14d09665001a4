// Package health implements the health monitor (C4): it subscribes to
// heartbeat topics published by running nodes over MQTT and flips a
// node's health substate to Unhealthy after a silence window.
package health

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
)

// Manager is the subset of nodemanager.Manager the health monitor needs:
// it only ever ingests heartbeats, never performs lifecycle mutation.
type Manager interface {
	MarkHeartbeat(name string, atMs int64)
	SweepUnhealthy(olderThan time.Duration)
}

// Monitor owns the heartbeat subscription and the silence-window timer.
type Monitor struct {
	client       mqtt.Client
	topicPattern string // e.g. "bubbaloop/+/<machine_id>/+/health"
	manager      Manager

	tickInterval time.Duration // T, §4.4 (~15s)

	mu      sync.Mutex
	running bool
}

func New(client mqtt.Client, topicPattern string, manager Manager, tickInterval time.Duration) *Monitor {
	if tickInterval <= 0 {
		tickInterval = 15 * time.Second
	}
	return &Monitor{client: client, topicPattern: topicPattern, manager: manager, tickInterval: tickInterval}
}

// Run subscribes to the heartbeat topic and runs the silence-window
// sweep until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	token := m.client.Subscribe(m.topicPattern, 0, m.onMessage)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	nlog.Infof("health: subscribed to %s", m.topicPattern)

	t := time.NewTicker(m.tickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.client.Unsubscribe(m.topicPattern)
			return nil
		case <-t.C:
			// Unhealthy after 2*T of silence (§4.4).
			m.manager.SweepUnhealthy(2 * m.tickInterval)
		}
	}
}

// onMessage ingests one heartbeat. The payload, per the node SDK contract
// (SPEC_FULL.md §4.4), is a bare 8-byte big-endian unix-millis timestamp —
// no JSON round trip on this hot path. A payload of any other shape falls
// back to local receive time rather than dropping the heartbeat.
func (m *Monitor) onMessage(_ mqtt.Client, msg mqtt.Message) {
	name := nodeNameFromTopic(msg.Topic())
	if name == "" {
		return
	}
	m.manager.MarkHeartbeat(name, heartbeatTimestamp(msg.Payload()))
}

func heartbeatTimestamp(payload []byte) int64 {
	if len(payload) == 8 {
		return int64(binary.BigEndian.Uint64(payload))
	}
	return time.Now().UnixMilli()
}

// nodeNameFromTopic pulls the node-name segment out of a heartbeat
// topic of the scoped form <prefix>/<scope>/<machine_id>/<name>/health.
func nodeNameFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	for i, p := range parts {
		if p == "health" && i > 0 {
			return parts[i-1]
		}
	}
	return ""
}
