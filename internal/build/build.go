// Package build spawns long-running build/clean shell processes and
// streams their output line by line. It is the only component that
// forks a child process on behalf of the node manager, and it guarantees
// the child is killed if the run is abandoned (context cancellation).
package build

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"

	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
)

// OnLine is invoked once per output line, interleaved in arrival order
// across stdout and stderr (§4.5: acceptable to be lossy wrt strict
// cross-stream ordering).
type OnLine func(line string)

// Run executes cmd via a shell in cwd, streaming combined stdout/stderr
// lines to onLine, and returns the process exit error (nil on success).
// The child is killed if ctx is cancelled before it exits, so an aborted
// build can never leak a process (§5 shutdown contract).
func Run(ctx context.Context, cwd, cmd string, onLine OnLine) error {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Dir = cwd
	c.Cancel = func() error { return c.Process.Kill() }

	stdout, err := c.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return err
	}

	if err := c.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdout, onLine)
	go streamLines(&wg, stderr, onLine)
	wg.Wait()

	return c.Wait()
}

func streamLines(wg *sync.WaitGroup, r io.Reader, onLine OnLine) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		onLine(sc.Text())
	}
	if err := sc.Err(); err != nil {
		nlog.Warningf("build: scanning output: %v", err)
	}
}
