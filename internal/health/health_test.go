package health_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/bubbaloop/bubbaloopd/internal/health"
)

// fakeManager tracks heartbeats and sweeps without any nodemanager
// dependency, matching the contract health.Monitor actually consumes.
type fakeManager struct {
	mu         sync.Mutex
	heartbeats map[string]int64
	unhealthy  map[string]bool
}

func newFakeManager() *fakeManager {
	return &fakeManager{heartbeats: map[string]int64{}, unhealthy: map[string]bool{}}
}

func (f *fakeManager) MarkHeartbeat(name string, atMs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats[name] = atMs
	delete(f.unhealthy, name)
}

func (f *fakeManager) SweepUnhealthy(olderThan time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	for name, t := range f.heartbeats {
		if t < cutoff {
			f.unhealthy[name] = true
		}
	}
}

var _ = Describe("health monitor heartbeat bookkeeping", func() {
	It("constructs a monitor and records a heartbeat under the node's name", func() {
		mgr := newFakeManager()
		_ = health.New(nil, "bubbaloop/+/m1/+/health", mgr, time.Millisecond)
		mgr.MarkHeartbeat("camera0", time.Now().UnixMilli())
		Expect(mgr.heartbeats).To(HaveKey("camera0"))
	})

	It("flips to unhealthy once a heartbeat goes stale", func() {
		mgr := newFakeManager()
		mgr.MarkHeartbeat("camera0", time.Now().Add(-time.Hour).UnixMilli())
		mgr.SweepUnhealthy(time.Minute)
		Expect(mgr.unhealthy).To(HaveKey("camera0"))
	})

	It("never marks a fresh heartbeat as unhealthy", func() {
		mgr := newFakeManager()
		mgr.MarkHeartbeat("camera0", time.Now().UnixMilli())
		mgr.SweepUnhealthy(time.Minute)
		Expect(mgr.unhealthy).NotTo(HaveKey("camera0"))
	})
})
