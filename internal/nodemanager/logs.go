package nodemanager

import (
	"context"
	"strings"
	"sync"

	buildrunner "github.com/bubbaloop/bubbaloopd/internal/build"
	"github.com/bubbaloop/bubbaloopd/internal/errs"
	"github.com/bubbaloop/bubbaloopd/internal/node"
)

const defaultLogLines = "50"

// doGetLogs reads the last N lines from the host's log daemon for the
// node's service unit, reusing C5's line-reading helper rather than
// duplicating process-output plumbing (SPEC_FULL.md §4.3). Distinct from
// every other command: the payload goes in Output, not Message, and
// nothing is mutated.
func (m *Manager) doGetLogs(ctx context.Context, cmd node.Command) node.Result {
	if _, _, ok := m.findPathByName(cmd.NodeName); !ok {
		return failure(errs.NotFound("node not found: %s", cmd.NodeName))
	}
	unit := m.svc.ServiceName(cmd.NodeName)

	journalctlCmd := "journalctl --user -u '" + unit + "' -n " + defaultLogLines + " --no-pager -o cat"

	var mu sync.Mutex
	var lines []string
	err := buildrunner.Run(ctx, "", journalctlCmd, func(line string) {
		if strings.Contains(line, "No entries") || strings.Contains(line, "No journal files") {
			return
		}
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})
	if err != nil {
		return node.Result{Success: false, Message: "failed to get logs: " + err.Error()}
	}
	return node.Result{Success: true, Output: strings.Join(lines, "\n")}
}
