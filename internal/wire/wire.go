// Package wire hand-encodes the five protobuf messages the pub/sub
// surface exchanges (NodeState, NodeList, NodeCommand, CommandResult,
// NodeEvent) using the low-level protowire primitives directly — no
// .proto files or generated code, since the toolchain that would run
// protoc is unavailable here. Every message is a flat set of scalar and
// embedded-message fields, which protowire expresses without difficulty.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field numbers, kept together so the wire layout is easy to audit.
const (
	fNodeStateName             = 1
	fNodeStatePath             = 2
	fNodeStateStatus           = 3
	fNodeStateInstalled        = 4
	fNodeStateAutostart        = 5
	fNodeStateVersion          = 6
	fNodeStateDescription      = 7
	fNodeStateType             = 8
	fNodeStateIsBuilt          = 9
	fNodeStateBuildOutput      = 10
	fNodeStateHealth           = 11
	fNodeStateLastHeartbeatMs  = 12
	fNodeStateLastUpdatedMs    = 13

	fNodeListNodes       = 1
	fNodeListTimestampMs = 2

	fCommandType      = 1
	fCommandNodeName  = 2
	fCommandNodePath  = 3
	fCommandRequestID = 4
	fCommandSource    = 5

	fResultSuccess   = 1
	fResultMessage   = 2
	fResultOutput    = 3
	fResultNodeState = 4

	fEventVerb        = 1
	fEventNodeName    = 2
	fEventNodeState   = 3
	fEventTimestampMs = 4
)

// NodeState mirrors the cached-node fields that cross the wire (§3/§6).
type NodeState struct {
	Name             string
	Path             string
	Status           int32
	Installed        bool
	AutostartEnabled bool
	Version          string
	Description      string
	NodeType         string
	IsBuilt          bool
	BuildOutput      []string
	Health           int32
	LastHeartbeatMs  int64
	LastUpdatedMs    int64
}

func (s *NodeState) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fNodeStateName, protowire.BytesType)
	b = protowire.AppendString(b, s.Name)
	b = protowire.AppendTag(b, fNodeStatePath, protowire.BytesType)
	b = protowire.AppendString(b, s.Path)
	b = protowire.AppendTag(b, fNodeStateStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Status))
	b = appendBool(b, fNodeStateInstalled, s.Installed)
	b = appendBool(b, fNodeStateAutostart, s.AutostartEnabled)
	b = protowire.AppendTag(b, fNodeStateVersion, protowire.BytesType)
	b = protowire.AppendString(b, s.Version)
	b = protowire.AppendTag(b, fNodeStateDescription, protowire.BytesType)
	b = protowire.AppendString(b, s.Description)
	b = protowire.AppendTag(b, fNodeStateType, protowire.BytesType)
	b = protowire.AppendString(b, s.NodeType)
	b = appendBool(b, fNodeStateIsBuilt, s.IsBuilt)
	for _, line := range s.BuildOutput {
		b = protowire.AppendTag(b, fNodeStateBuildOutput, protowire.BytesType)
		b = protowire.AppendString(b, line)
	}
	b = protowire.AppendTag(b, fNodeStateHealth, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Health))
	b = protowire.AppendTag(b, fNodeStateLastHeartbeatMs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.LastHeartbeatMs))
	b = protowire.AppendTag(b, fNodeStateLastUpdatedMs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.LastUpdatedMs))
	return b
}

func UnmarshalNodeState(b []byte) (*NodeState, error) {
	s := &NodeState{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad tag in NodeState")
		}
		b = b[n:]
		switch num {
		case fNodeStateName:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			s.Name, b = v, b[m:]
		case fNodeStatePath:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			s.Path, b = v, b[m:]
		case fNodeStateStatus:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			s.Status, b = int32(v), b[m:]
		case fNodeStateInstalled:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			s.Installed, b = v != 0, b[m:]
		case fNodeStateAutostart:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			s.AutostartEnabled, b = v != 0, b[m:]
		case fNodeStateVersion:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			s.Version, b = v, b[m:]
		case fNodeStateDescription:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			s.Description, b = v, b[m:]
		case fNodeStateType:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			s.NodeType, b = v, b[m:]
		case fNodeStateIsBuilt:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			s.IsBuilt, b = v != 0, b[m:]
		case fNodeStateBuildOutput:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			s.BuildOutput = append(s.BuildOutput, v)
			b = b[m:]
		case fNodeStateHealth:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			s.Health, b = int32(v), b[m:]
		case fNodeStateLastHeartbeatMs:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			s.LastHeartbeatMs, b = int64(v), b[m:]
		case fNodeStateLastUpdatedMs:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			s.LastUpdatedMs, b = int64(v), b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, fmt.Errorf("wire: bad field %d in NodeState", num)
			}
			b = b[m:]
		}
	}
	return s, nil
}

// NodeList is the full fleet snapshot published on the nodes publisher
// and queryable (§4.6).
type NodeList struct {
	Nodes       []*NodeState
	TimestampMs int64
}

func (l *NodeList) Marshal() []byte {
	var b []byte
	for _, n := range l.Nodes {
		b = protowire.AppendTag(b, fNodeListNodes, protowire.BytesType)
		b = protowire.AppendBytes(b, n.Marshal())
	}
	b = protowire.AppendTag(b, fNodeListTimestampMs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(l.TimestampMs))
	return b
}

func UnmarshalNodeList(b []byte) (*NodeList, error) {
	l := &NodeList{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad tag in NodeList")
		}
		b = b[n:]
		switch num {
		case fNodeListNodes:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("wire: bad bytes in NodeList.nodes")
			}
			ns, err := UnmarshalNodeState(raw)
			if err != nil {
				return nil, err
			}
			l.Nodes = append(l.Nodes, ns)
			b = b[m:]
		case fNodeListTimestampMs:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			l.TimestampMs, b = int64(v), b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, fmt.Errorf("wire: bad field %d in NodeList", num)
			}
			b = b[m:]
		}
	}
	return l, nil
}

// NodeCommand is the request payload on the command queryable (§4.6).
type NodeCommand struct {
	Command   int32
	NodeName  string
	NodePath  string
	RequestID string
	Source    string
}

func (c *NodeCommand) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fCommandType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Command))
	b = protowire.AppendTag(b, fCommandNodeName, protowire.BytesType)
	b = protowire.AppendString(b, c.NodeName)
	b = protowire.AppendTag(b, fCommandNodePath, protowire.BytesType)
	b = protowire.AppendString(b, c.NodePath)
	b = protowire.AppendTag(b, fCommandRequestID, protowire.BytesType)
	b = protowire.AppendString(b, c.RequestID)
	b = protowire.AppendTag(b, fCommandSource, protowire.BytesType)
	b = protowire.AppendString(b, c.Source)
	return b
}

func UnmarshalNodeCommand(b []byte) (*NodeCommand, error) {
	c := &NodeCommand{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad tag in NodeCommand")
		}
		b = b[n:]
		switch num {
		case fCommandType:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			c.Command, b = int32(v), b[m:]
		case fCommandNodeName:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			c.NodeName, b = v, b[m:]
		case fCommandNodePath:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			c.NodePath, b = v, b[m:]
		case fCommandRequestID:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			c.RequestID, b = v, b[m:]
		case fCommandSource:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			c.Source, b = v, b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, fmt.Errorf("wire: bad field %d in NodeCommand", num)
			}
			b = b[m:]
		}
	}
	return c, nil
}

// CommandResult is the uniform reply to a NodeCommand (§7).
type CommandResult struct {
	Success   bool
	Message   string
	Output    string
	NodeState *NodeState // nil when absent
}

func (r *CommandResult) Marshal() []byte {
	var b []byte
	b = appendBool(b, fResultSuccess, r.Success)
	b = protowire.AppendTag(b, fResultMessage, protowire.BytesType)
	b = protowire.AppendString(b, r.Message)
	b = protowire.AppendTag(b, fResultOutput, protowire.BytesType)
	b = protowire.AppendString(b, r.Output)
	if r.NodeState != nil {
		b = protowire.AppendTag(b, fResultNodeState, protowire.BytesType)
		b = protowire.AppendBytes(b, r.NodeState.Marshal())
	}
	return b
}

func UnmarshalCommandResult(b []byte) (*CommandResult, error) {
	r := &CommandResult{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad tag in CommandResult")
		}
		b = b[n:]
		switch num {
		case fResultSuccess:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			r.Success, b = v != 0, b[m:]
		case fResultMessage:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			r.Message, b = v, b[m:]
		case fResultOutput:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			r.Output, b = v, b[m:]
		case fResultNodeState:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("wire: bad bytes in CommandResult.node_state")
			}
			ns, err := UnmarshalNodeState(raw)
			if err != nil {
				return nil, err
			}
			r.NodeState, b = ns, b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, fmt.Errorf("wire: bad field %d in CommandResult", num)
			}
			b = b[m:]
		}
	}
	return r, nil
}

// NodeEvent is a state-change notification (§4.6).
type NodeEvent struct {
	Verb        string
	NodeName    string
	NodeState   *NodeState
	TimestampMs int64
}

func (e *NodeEvent) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fEventVerb, protowire.BytesType)
	b = protowire.AppendString(b, e.Verb)
	b = protowire.AppendTag(b, fEventNodeName, protowire.BytesType)
	b = protowire.AppendString(b, e.NodeName)
	if e.NodeState != nil {
		b = protowire.AppendTag(b, fEventNodeState, protowire.BytesType)
		b = protowire.AppendBytes(b, e.NodeState.Marshal())
	}
	b = protowire.AppendTag(b, fEventTimestampMs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.TimestampMs))
	return b
}

func UnmarshalNodeEvent(b []byte) (*NodeEvent, error) {
	e := &NodeEvent{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad tag in NodeEvent")
		}
		b = b[n:]
		switch num {
		case fEventVerb:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			e.Verb, b = v, b[m:]
		case fEventNodeName:
			v, m, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			e.NodeName, b = v, b[m:]
		case fEventNodeState:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("wire: bad bytes in NodeEvent.node_state")
			}
			ns, err := UnmarshalNodeState(raw)
			if err != nil {
				return nil, err
			}
			e.NodeState, b = ns, b[m:]
		case fEventTimestampMs:
			v, m, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			e.TimestampMs, b = int64(v), b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, fmt.Errorf("wire: bad field %d in NodeEvent", num)
			}
			b = b[m:]
		}
	}
	return e, nil
}

func appendBool(b []byte, field protowire.Number, v bool) []byte {
	b = protowire.AppendTag(b, field, protowire.VarintType)
	if v {
		return protowire.AppendVarint(b, 1)
	}
	return protowire.AppendVarint(b, 0)
}

func consumeString(b []byte, typ protowire.Type) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, fmt.Errorf("wire: expected bytes type, got %v", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return "", 0, fmt.Errorf("wire: malformed bytes field")
	}
	return string(v), n, nil
}

func consumeVarint(b []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("wire: expected varint type, got %v", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("wire: malformed varint field")
	}
	return v, n, nil
}
