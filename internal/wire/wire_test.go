package wire

import (
	"reflect"
	"testing"
)

// TestNodeStateRoundTrip covers R3: every protobuf message encodes and
// decodes to an equal value.
func TestNodeStateRoundTrip(t *testing.T) {
	s := &NodeState{
		Name:             "cam0",
		Path:             "/home/u/.bubbaloop/nodes/cam0",
		Status:           2,
		Installed:        true,
		AutostartEnabled: true,
		Version:          "0.1.0",
		Description:      "a camera node",
		NodeType:         "rust",
		IsBuilt:          true,
		BuildOutput:      []string{"line1", "line2"},
		Health:           1,
		LastHeartbeatMs:  1234567890,
		LastUpdatedMs:    1234567999,
	}
	got, err := UnmarshalNodeState(s.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// NodeState holds a slice, so it cannot be compared with !=; compare
	// the scalars via struct copies with BuildOutput zeroed, and the slice
	// field separately below.
	a, b := *got, *s
	a.BuildOutput, b.BuildOutput = nil, nil
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("scalar mismatch: got %+v, want %+v", a, b)
	}
	if len(got.BuildOutput) != len(s.BuildOutput) {
		t.Fatalf("build output length: got %d, want %d", len(got.BuildOutput), len(s.BuildOutput))
	}
	for i := range s.BuildOutput {
		if got.BuildOutput[i] != s.BuildOutput[i] {
			t.Errorf("build output[%d]: got %q, want %q", i, got.BuildOutput[i], s.BuildOutput[i])
		}
	}
}

func TestNodeListRoundTrip(t *testing.T) {
	l := &NodeList{
		Nodes: []*NodeState{
			{Name: "a", Path: "/a"},
			{Name: "b", Path: "/b", Installed: true},
		},
		TimestampMs: 42,
	}
	got, err := UnmarshalNodeList(l.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TimestampMs != l.TimestampMs {
		t.Errorf("timestamp: got %d, want %d", got.TimestampMs, l.TimestampMs)
	}
	if len(got.Nodes) != len(l.Nodes) {
		t.Fatalf("nodes: got %d, want %d", len(got.Nodes), len(l.Nodes))
	}
	for i := range l.Nodes {
		if got.Nodes[i].Name != l.Nodes[i].Name || got.Nodes[i].Path != l.Nodes[i].Path {
			t.Errorf("node[%d]: got %+v, want %+v", i, got.Nodes[i], l.Nodes[i])
		}
	}
}

func TestNodeCommandRoundTrip(t *testing.T) {
	c := &NodeCommand{Command: 3, NodeName: "cam0", NodePath: "/p", RequestID: "req-1", Source: "src"}
	got, err := UnmarshalNodeCommand(c.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *got != *c {
		t.Fatalf("got %+v, want %+v", *got, *c)
	}
}

func TestCommandResultRoundTrip(t *testing.T) {
	r := &CommandResult{Success: true, Message: "ok", Output: "stdout", NodeState: &NodeState{Name: "cam0"}}
	got, err := UnmarshalCommandResult(r.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Success != r.Success || got.Message != r.Message || got.Output != r.Output {
		t.Fatalf("scalar mismatch: got %+v", got)
	}
	if got.NodeState == nil || got.NodeState.Name != "cam0" {
		t.Fatalf("node state not preserved: got %+v", got.NodeState)
	}
}

func TestCommandResultRoundTripNoNodeState(t *testing.T) {
	r := &CommandResult{Success: false, Message: "nope"}
	got, err := UnmarshalCommandResult(r.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.NodeState != nil {
		t.Fatalf("expected nil node state, got %+v", got.NodeState)
	}
}

func TestNodeEventRoundTrip(t *testing.T) {
	e := &NodeEvent{Verb: "started", NodeName: "cam0", NodeState: &NodeState{Name: "cam0"}, TimestampMs: 99}
	got, err := UnmarshalNodeEvent(e.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Verb != e.Verb || got.NodeName != e.NodeName || got.TimestampMs != e.TimestampMs {
		t.Fatalf("got %+v, want %+v", got, e)
	}
	if got.NodeState == nil || got.NodeState.Name != "cam0" {
		t.Fatalf("node state not preserved")
	}
}

func TestUnmarshalNodeStateRejectsBadTag(t *testing.T) {
	if _, err := UnmarshalNodeState([]byte{0xff}); err == nil {
		t.Fatal("expected error on malformed tag")
	}
}
