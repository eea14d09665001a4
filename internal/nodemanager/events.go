package nodemanager

import (
	"sync"

	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
	"github.com/bubbaloop/bubbaloopd/internal/node"
	"github.com/bubbaloop/bubbaloopd/internal/stats"
)

// broadcaster is a bounded fan-out of node.Event: every publish is a
// non-blocking send per subscriber, so one lagging consumer never stalls
// the producer or other consumers (§5 "Event broadcast").
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan node.Event]struct{}
	cap  int
}

func newBroadcaster(capacity int) *broadcaster {
	return &broadcaster{subs: make(map[chan node.Event]struct{}), cap: capacity}
}

func (b *broadcaster) subscribe() (<-chan node.Event, func()) {
	ch := make(chan node.Event, b.cap)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsub
}

func (b *broadcaster) publish(ev node.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			stats.EventsDropped.Inc()
			nlog.Warningln("nodemanager: subscriber lagged, dropping event", ev.Verb, ev.NodeName)
		}
	}
}
