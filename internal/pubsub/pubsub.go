// Package pubsub implements the broker surface (C6): it publishes node
// state over MQTT topics standing in for the pub/sub bus, answers the
// command "queryable" by request/reply topics, and republishes the
// fleet list on every C3 event. Every key is published in both a
// machine-scoped and a legacy unscoped form (§4.6).
package pubsub

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
	"github.com/bubbaloop/bubbaloopd/internal/errs"
	"github.com/bubbaloop/bubbaloopd/internal/node"
	"github.com/bubbaloop/bubbaloopd/internal/wire"
)

// Manager is the subset of nodemanager.Manager the broker surface
// drives: fleet reads, command dispatch, and the event feed.
type Manager interface {
	GetNodeList() []*node.CachedNode
	GetNode(name string) (*node.CachedNode, bool)
	ExecuteCommand(ctx context.Context, cmd node.Command) node.Result
	Subscribe() (<-chan node.Event, func())
}

// keySet is one namespace variant (scoped or legacy) of the §4.6 table.
type keySet struct {
	nodes   string
	state   string // fmt-style, one %s placeholder for the node name
	events  string
	command string
}

func scopedKeys(prefix, machineID string) keySet {
	base := fmt.Sprintf("%s/%s/daemon", prefix, machineID)
	return keySet{
		nodes:   base + "/nodes",
		state:   base + "/nodes/%s/state",
		events:  base + "/events",
		command: base + "/command",
	}
}

func legacyKeys(prefix string) keySet {
	base := prefix + "/daemon"
	return keySet{
		nodes:   base + "/nodes",
		state:   base + "/nodes/%s/state",
		events:  base + "/events",
		command: base + "/command",
	}
}

// Broker owns the MQTT client and both key-set variants.
type Broker struct {
	client  mqtt.Client
	mgr     Manager
	scoped  keySet
	legacy  keySet
	reconcileInterval time.Duration
}

func New(client mqtt.Client, mgr Manager, prefix, machineID string) *Broker {
	return &Broker{
		client:            client,
		mgr:               mgr,
		scoped:            scopedKeys(prefix, machineID),
		legacy:            legacyKeys(prefix),
		reconcileInterval: 5 * time.Second,
	}
}

// Run wires up both command queryables, publishes an initial NodeList
// once discovery has had time to propagate, forwards every C3 event
// onto the events/state/nodes topics, and republishes the fleet list
// every reconcile tick (§4.6 cadence).
func (b *Broker) Run(ctx context.Context) error {
	for _, ks := range []keySet{b.scoped, b.legacy} {
		ks := ks
		token := b.client.Subscribe(ks.command, 0, func(c mqtt.Client, m mqtt.Message) {
			b.handleCommand(ctx, ks, m)
		})
		if token.Wait() && token.Error() != nil {
			return token.Error()
		}
	}

	go func() {
		time.Sleep(500 * time.Millisecond)
		b.publishNodeListIfNonEmpty()
	}()

	events, unsubscribe := b.mgr.Subscribe()
	defer unsubscribe()

	t := time.NewTicker(b.reconcileInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			b.publishEvent(ev)
			if ev.State != nil {
				b.publishState(ev.State)
			}
			b.publishNodeListIfNonEmpty()
		case <-t.C:
			b.publishNodeListIfNonEmpty()
		}
	}
}

func (b *Broker) publishNodeListIfNonEmpty() {
	nodes := b.mgr.GetNodeList()
	if len(nodes) == 0 {
		return
	}
	list := &wire.NodeList{TimestampMs: time.Now().UnixMilli()}
	for _, n := range nodes {
		list.Nodes = append(list.Nodes, toWireState(n))
	}
	payload := list.Marshal()
	b.publishBoth(b.scoped.nodes, b.legacy.nodes, payload)
}

func (b *Broker) publishState(n *node.CachedNode) {
	payload := toWireState(n).Marshal()
	b.publishBoth(fmt.Sprintf(b.scoped.state, n.Name()), fmt.Sprintf(b.legacy.state, n.Name()), payload)
}

func (b *Broker) publishEvent(ev node.Event) {
	we := &wire.NodeEvent{
		Verb:        ev.Verb,
		NodeName:    ev.NodeName,
		TimestampMs: ev.TimestampMs,
	}
	if ev.State != nil {
		we.NodeState = toWireState(ev.State)
	}
	payload := we.Marshal()
	b.publishBoth(b.scoped.events, b.legacy.events, payload)
}

func (b *Broker) publishBoth(scopedTopic, legacyTopic string, payload []byte) {
	b.client.Publish(scopedTopic, 0, false, payload)
	b.client.Publish(legacyTopic, 0, false, payload)
}

// handleCommand answers the command queryable. An empty or undecodable
// payload yields a failure CommandResult rather than being dropped
// (§4.6); the reply is published back on the same topic the request
// arrived on, suffixed so it cannot retrigger the handler, keeping
// scoped and legacy reply traffic from cross-contaminating.
func (b *Broker) handleCommand(ctx context.Context, ks keySet, msg mqtt.Message) {
	replyTopic := msg.Topic() + "/result"
	b.client.Publish(replyTopic, 0, false, b.answerCommand(ctx, msg.Payload()))
}

// answerCommand decodes a command payload, dispatches it, and returns the
// marshaled CommandResult reply. Split out from handleCommand so it can be
// exercised without a live mqtt.Message (§4.6, S6: an empty or undecodable
// payload yields a failure CommandResult rather than being dropped).
func (b *Broker) answerCommand(ctx context.Context, payload []byte) []byte {
	if len(payload) == 0 {
		return replyFailure(errs.InvalidInput("empty command payload"))
	}

	wc, err := wire.UnmarshalNodeCommand(payload)
	if err != nil {
		return replyFailure(errs.InvalidInput("undecodable command payload: %v", err))
	}

	cmd := node.Command{
		Type:      node.CommandType(wc.Command),
		NodeName:  wc.NodeName,
		NodePath:  wc.NodePath,
		Source:    wc.Source,
		RequestID: wc.RequestID,
	}

	result := b.mgr.ExecuteCommand(ctx, cmd)
	wr := &wire.CommandResult{Success: result.Success, Message: result.Message, Output: result.Output}
	if result.State != nil {
		wr.NodeState = toWireState(result.State)
	}
	return wr.Marshal()
}

func replyFailure(err error) []byte {
	nlog.Warningf("pubsub: command failure: %v", err)
	wr := &wire.CommandResult{Success: false, Message: err.Error()}
	return wr.Marshal()
}

func toWireState(n *node.CachedNode) *wire.NodeState {
	s := &wire.NodeState{
		Name:            n.Name(),
		Path:            n.Path,
		Status:          int32(n.Status),
		Installed:       n.Installed,
		AutostartEnabled: n.AutostartEnabled,
		IsBuilt:         n.IsBuilt,
		Health:          int32(n.Health),
		LastHeartbeatMs: n.LastHeartbeatMs,
		LastUpdatedMs:   n.LastUpdatedMs,
		BuildOutput:     append([]string(nil), n.BuildOutput...),
	}
	if n.Manifest != nil {
		s.Version = n.Manifest.Version
		s.Description = n.Manifest.Description
		s.NodeType = string(n.Manifest.Type)
	}
	return s
}
