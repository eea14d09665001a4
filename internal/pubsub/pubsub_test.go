package pubsub

import (
	"context"
	"strings"
	"testing"

	"github.com/bubbaloop/bubbaloopd/internal/node"
	"github.com/bubbaloop/bubbaloopd/internal/wire"
)

type fakeManager struct {
	lastCmd node.Command
	result  node.Result
}

func (f *fakeManager) GetNodeList() []*node.CachedNode            { return nil }
func (f *fakeManager) GetNode(name string) (*node.CachedNode, bool) { return nil, false }
func (f *fakeManager) Subscribe() (<-chan node.Event, func())     { return nil, func() {} }
func (f *fakeManager) ExecuteCommand(ctx context.Context, cmd node.Command) node.Result {
	f.lastCmd = cmd
	return f.result
}

// TestAnswerCommandEmptyPayload covers S6: an empty payload replies with a
// failure CommandResult rather than being silently dropped.
func TestAnswerCommandEmptyPayload(t *testing.T) {
	b := New(nil, &fakeManager{}, "bubbaloop", "host1")
	out := b.answerCommand(context.Background(), nil)
	got, err := wire.UnmarshalCommandResult(out)
	if err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if got.Success {
		t.Fatal("expected success=false for empty payload")
	}
	if !strings.Contains(got.Message, "empty") {
		t.Errorf("expected message to mention the missing payload, got %q", got.Message)
	}
}

func TestAnswerCommandUndecodablePayload(t *testing.T) {
	b := New(nil, &fakeManager{}, "bubbaloop", "host1")
	out := b.answerCommand(context.Background(), []byte{0xff})
	got, err := wire.UnmarshalCommandResult(out)
	if err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if got.Success {
		t.Fatal("expected success=false for undecodable payload")
	}
}

func TestAnswerCommandDispatches(t *testing.T) {
	mgr := &fakeManager{result: node.Result{Success: true, Message: "started a"}}
	b := New(nil, mgr, "bubbaloop", "host1")

	req := &wire.NodeCommand{Command: int32(node.CmdStart), NodeName: "a"}
	out := b.answerCommand(context.Background(), req.Marshal())

	if mgr.lastCmd.Type != node.CmdStart || mgr.lastCmd.NodeName != "a" {
		t.Fatalf("expected Start dispatched for node a, got %+v", mgr.lastCmd)
	}
	got, err := wire.UnmarshalCommandResult(out)
	if err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if !got.Success || got.Message != "started a" {
		t.Fatalf("got %+v", got)
	}
}
