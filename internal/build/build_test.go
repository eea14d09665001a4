package build

import (
	"context"
	"testing"
	"time"
)

// TestRunStreamsLinesAndSucceeds covers S4's build command shape: output
// lines arrive via onLine and a zero exit yields a nil error.
func TestRunStreamsLinesAndSucceeds(t *testing.T) {
	var lines []string
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := Run(ctx, t.TempDir(), "echo hello && exit 0", func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(lines) != 1 || lines[0] != "hello" {
		t.Fatalf("got lines %v, want [hello]", lines)
	}
}

func TestRunPropagatesNonZeroExit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := Run(ctx, t.TempDir(), "exit 7", func(string) {})
	if err == nil {
		t.Fatal("expected a non-nil error for a non-zero exit")
	}
}

func TestRunKilledOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, t.TempDir(), "sleep 30", func(string) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error from a killed process")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation; child process leaked")
	}
}
