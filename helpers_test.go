package querysync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	gen "github.com/unkn0wn-root/querysync/genstore"
)

// recHooks counts hook events by name.
type recHooks struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecHooks() *recHooks { return &recHooks{counts: make(map[string]int)} }

func (h *recHooks) add(ev string) {
	h.mu.Lock()
	h.counts[ev]++
	h.mu.Unlock()
}

func (h *recHooks) count(ev string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[ev]
}

func (h *recHooks) FetchStarted(string, Trigger)              { h.add("started") }
func (h *recHooks) FetchDeduped(string, Trigger)              { h.add("deduped") }
func (h *recHooks) FetchFailed(string, error)                 { h.add("failed") }
func (h *recHooks) StaleCompletion(string)                    { h.add("stale") }
func (h *recHooks) Invalidated(string)                        { h.add("invalidated") }
func (h *recHooks) MutationSuperseded(string, uint64, uint64) { h.add("superseded") }
func (h *recHooks) PollerStopped(string)                      { h.add("poller_stopped") }

type testEnv struct {
	c     *Client
	clk   *clockwork.FakeClock
	hooks *recHooks
	focus *FocusManager
}

// newTestClient builds a client on a fake clock. The gen store has no
// cleanup loop so the only clock waiters are pollers.
func newTestClient(t *testing.T) testEnv {
	t.Helper()
	env := testEnv{
		clk:   clockwork.NewFakeClock(),
		hooks: newRecHooks(),
		focus: NewFocusManager(),
	}
	env.c = New(Options{
		Clock:    env.clk,
		Focus:    env.focus,
		Hooks:    env.hooks,
		GenStore: gen.NewLocalGenStore(0, 0),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := env.c.Close(ctx); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return env
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func blockUntil(t *testing.T, clk *clockwork.FakeClock, waiters int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clk.BlockUntilContext(ctx, waiters); err != nil {
		t.Fatalf("waiting for %d clock waiters: %v", waiters, err)
	}
}
