// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/querysync"
//	"github.com/unkn0wn-root/querysync/hooks/async"
//	"github.com/unkn0wn-root/querysync/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    FetchEvery:  10, // sample logs: ~every 10th fetch start
//	    DedupeEvery: 50,
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	client := querysync.New(querysync.Options{
//	    Hooks: hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/querysync"
)

// Hooks forwards events to inner on worker goroutines so the client never
// waits on a slow sink. Events are dropped when the queue is full.
type Hooks struct {
	inner   querysync.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ querysync.Hooks = (*Hooks)(nil)

func New(inner querysync.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = querysync.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close flushes queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchStarted(k string, t querysync.Trigger) {
	h.try(func() { h.inner.FetchStarted(k, t) })
}
func (h *Hooks) FetchDeduped(k string, t querysync.Trigger) {
	h.try(func() { h.inner.FetchDeduped(k, t) })
}
func (h *Hooks) FetchFailed(k string, err error) { h.try(func() { h.inner.FetchFailed(k, err) }) }
func (h *Hooks) StaleCompletion(k string)        { h.try(func() { h.inner.StaleCompletion(k) }) }
func (h *Hooks) Invalidated(k string)            { h.try(func() { h.inner.Invalidated(k) }) }
func (h *Hooks) PollerStopped(k string)          { h.try(func() { h.inner.PollerStopped(k) }) }
func (h *Hooks) MutationSuperseded(name string, seq, latest uint64) {
	h.try(func() { h.inner.MutationSuperseded(name, seq, latest) })
}
