package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/querysync"
)

type countHooks struct {
	querysync.NopHooks
	mu      sync.Mutex
	started []string
	block   chan struct{}
}

func (c *countHooks) FetchStarted(k string, _ querysync.Trigger) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.started = append(c.started, k)
	c.mu.Unlock()
}

func TestForwardsAndFlushesOnClose(t *testing.T) {
	inner := &countHooks{}
	h := New(inner, 1, 16)
	for i := 0; i < 5; i++ {
		h.FetchStarted(`["orders"]`, querysync.TriggerInterval)
	}
	h.Close()

	if len(inner.started) != 5 {
		t.Fatalf("forwarded=%d want 5", len(inner.started))
	}
	if h.Dropped() != 0 {
		t.Fatalf("dropped=%d want 0", h.Dropped())
	}
}

func TestDropsWhenQueueFull(t *testing.T) {
	inner := &countHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// one event parks the worker, one fills the queue, the rest overflow
	for i := 0; i < 10; i++ {
		h.FetchStarted("k", querysync.TriggerMount)
	}
	close(inner.block)
	h.Close()

	if h.Dropped() == 0 {
		t.Fatal("expected drops with a full queue")
	}
	if got := uint64(len(inner.started)) + h.Dropped(); got != 10 {
		t.Fatalf("forwarded+dropped=%d want 10", got)
	}
}

func TestEventsAfterCloseAreDropped(t *testing.T) {
	h := New(nil, 1, 4)
	h.Close()
	h.Invalidated("k") // must not panic on the closed queue
	if h.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", h.Dropped())
	}
}
