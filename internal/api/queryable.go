package api

import (
	"context"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
	"github.com/bubbaloop/bubbaloopd/internal/errs"
	"github.com/bubbaloop/bubbaloopd/internal/manifest"
	"github.com/bubbaloop/bubbaloopd/internal/node"
)

// QueryableBridge mirrors a subset of the REST surface onto the pub/sub
// fabric's JSON-queryable keys, `<prefix>/<mid>/daemon/api/**` (§4.7,
// "three-in-one"): the same node listing, single-node lookup, and
// command dispatch, addressed as MQTT request/reply queries instead of
// HTTP, and replying with JSON instead of C6's protobuf wire format.
type QueryableBridge struct {
	client mqtt.Client
	mgr    Manager
	base   string
}

func NewQueryableBridge(client mqtt.Client, mgr Manager, prefix, machineID string) *QueryableBridge {
	return &QueryableBridge{
		client: client,
		mgr:    mgr,
		base:   fmt.Sprintf("%s/%s/daemon/api", prefix, machineID),
	}
}

// Run subscribes to the api queryable keys; it returns once subscription
// is established, and keeps answering queries on the client's own
// goroutines until the client is disconnected (mirrors C6's own Run
// lifecycle, which is likewise driven by subscription callbacks rather
// than an explicit blocking loop for the queryable half of its surface).
func (q *QueryableBridge) Run(ctx context.Context) error {
	nodesTopic := q.base + "/nodes"
	nodeTopic := q.base + "/nodes/+"
	commandTopic := q.base + "/nodes/+/command"

	if t := q.client.Subscribe(nodesTopic, 0, func(c mqtt.Client, m mqtt.Message) {
		q.replyNodes(m)
	}); t.Wait() && t.Error() != nil {
		return t.Error()
	}
	if t := q.client.Subscribe(nodeTopic, 0, func(c mqtt.Client, m mqtt.Message) {
		q.replyNode(m)
	}); t.Wait() && t.Error() != nil {
		return t.Error()
	}
	if t := q.client.Subscribe(commandTopic, 0, func(c mqtt.Client, m mqtt.Message) {
		q.replyCommand(ctx, m)
	}); t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}

func (q *QueryableBridge) replyNodes(msg mqtt.Message) {
	q.reply(msg, fasthttpStatusOK, toDTOs(q.mgr.GetNodeList()))
}

func (q *QueryableBridge) replyNode(msg mqtt.Message) {
	name := lastSegment(msg.Topic())
	if err := manifest.ValidateName(name); err != nil {
		q.replyError(msg, err)
		return
	}
	n, ok := q.mgr.GetNode(name)
	if !ok {
		q.replyError(msg, errs.NotFound("node not found: %s", name))
		return
	}
	q.reply(msg, fasthttpStatusOK, toDTO(n))
}

func (q *QueryableBridge) replyCommand(ctx context.Context, msg mqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) < 2 {
		q.replyError(msg, errs.InvalidInput("malformed command topic: %s", msg.Topic()))
		return
	}
	name := parts[len(parts)-2]
	if err := manifest.ValidateName(name); err != nil {
		q.replyError(msg, err)
		return
	}

	var req CommandRequest
	if len(msg.Payload()) == 0 {
		q.replyError(msg, errs.InvalidInput("empty command payload"))
		return
	}
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		q.replyError(msg, errs.InvalidInput("undecodable command payload: %v", err))
		return
	}
	ct, ok := node.ParseCommand(req.Command)
	if !ok {
		q.replyError(msg, errs.InvalidInput("unrecognized command: %s", req.Command))
		return
	}
	res := q.mgr.ExecuteCommand(ctx, node.Command{Type: ct, NodeName: name, Source: req.Source})
	q.reply(msg, fasthttpStatusOK, toCommandResponse(res))
}

const fasthttpStatusOK = 200

func (q *QueryableBridge) reply(msg mqtt.Message, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		nlog.Warningf("api: queryable: encoding reply for %s: %v", msg.Topic(), err)
		return
	}
	q.client.Publish(q.replyTopic(msg), 0, false, b)
}

// replyTopic maps a query topic under q.base to a reply topic under the
// disjoint q.base+"/_rep" namespace, preserving the rest of the path for
// correlation. Replies must never land on a topic that the nodes, nodes/+
// or nodes/+/command subscriptions in Run match: those would otherwise
// treat an answer as a fresh query and reply to it in turn.
func (q *QueryableBridge) replyTopic(msg mqtt.Message) string {
	suffix := strings.TrimPrefix(msg.Topic(), q.base)
	return q.base + "/_rep" + suffix
}

func (q *QueryableBridge) replyError(msg mqtt.Message, err error) {
	nlog.Warningf("api: queryable: %s: %v", msg.Topic(), err)
	q.reply(msg, errs.KindOf(err).HTTPStatus(), ErrorResponse{Error: err.Error(), Code: errs.KindOf(err).HTTPStatus()})
}

func lastSegment(topic string) string {
	parts := strings.Split(topic, "/")
	return parts[len(parts)-1]
}
