package querysync

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// QueryFunc performs one network read for a key. It holds no caching logic.
type QueryFunc func(ctx context.Context) (any, error)

// QueryOptions is the per-consumer fetch policy for a key.
type QueryOptions struct {
	// StaleTime is how long fetched data counts as fresh. 0 => always refetch on mount.
	StaleTime time.Duration
	// RefetchInterval, if > 0, refetches every interval while the consumer is mounted.
	RefetchInterval time.Duration
	// RefetchOnFocus refetches when the FocusSource reports a regain.
	RefetchOnFocus bool
	// Disabled gates every fetch; the entry stays idle. Default false (enabled).
	Disabled bool
}

type mount struct {
	fn   QueryFunc
	opts QueryOptions
}

// query is the coordinator-side state for one key.
type query struct {
	key    Key
	fn     QueryFunc // most recently mounted or queried fetch func
	mounts map[uint64]mount
	flight *flight

	pollEvery time.Duration
	pollStop  chan struct{}
}

// effective merges the options of every mounted consumer.
func (q *query) effective() (o QueryOptions, enabled bool) {
	first := true
	for _, m := range q.mounts {
		if m.opts.Disabled {
			continue
		}
		enabled = true
		o.RefetchInterval = minPositive(o.RefetchInterval, m.opts.RefetchInterval)
		o.RefetchOnFocus = o.RefetchOnFocus || m.opts.RefetchOnFocus
		if first || m.opts.StaleTime < o.StaleTime {
			o.StaleTime = m.opts.StaleTime
		}
		first = false
	}
	return o, enabled
}

type flight struct {
	done  chan struct{}
	entry Entry
	err   error
}

// wait blocks until the flight lands or ctx is done.
func (f *flight) wait(ctx context.Context) (Entry, error) {
	select {
	case <-f.done:
		return f.entry, f.err
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

// Query runs the fetch policy for key once: it returns fresh cached data as
// is, otherwise it starts or joins the single in-flight fetch and waits for it.
// Cancelling ctx stops the wait, not the fetch. A disabled query is a no-op
// that returns the current entry.
func (c *Client) Query(ctx context.Context, key Key, fn QueryFunc, opts QueryOptions) (Entry, error) {
	if opts.Disabled {
		e, _ := c.store.Get(key)
		return e, nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Entry{}, ErrClosed
	}
	q := c.queryLocked(key)
	q.fn = fn
	if e, ok := c.store.Get(key); ok && !e.Fetching && !e.staleFor(c.clock.Now(), opts.StaleTime) {
		c.mu.Unlock()
		return e, nil
	}
	f := c.fetchLocked(q, TriggerQuery, opts.StaleTime)
	c.mu.Unlock()
	c.store.drain()
	return f.wait(ctx)
}

// Refetch fetches key with its registered fetch func regardless of staleness,
// joining a fetch that is already in flight. It is a no-op while every mounted
// consumer of key is disabled.
func (c *Client) Refetch(ctx context.Context, key Key) (Entry, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Entry{}, ErrClosed
	}
	q, ok := c.queries[key.String()]
	if !ok || q.fn == nil {
		c.mu.Unlock()
		return Entry{}, fmt.Errorf("querysync: no fetch func registered for %s", key)
	}
	o, enabled := q.effective()
	if len(q.mounts) > 0 && !enabled {
		c.mu.Unlock()
		e, _ := c.store.Get(key)
		return e, nil
	}
	f := c.fetchLocked(q, TriggerManual, c.staleTimeLocked(q, o))
	c.mu.Unlock()
	c.store.drain()
	return f.wait(ctx)
}

// Invalidate marks the selected entries stale and refetches every one of them
// that has an enabled consumer mounted. It returns the invalidated keys.
func (c *Client) Invalidate(targets ...Target) []Key {
	return c.store.Invalidate(targets...)
}

// mount registers a consumer of key and runs the staleness check for it.
// The returned func unmounts; the last unmount stops the key's poller.
// An in-flight fetch is never aborted by unmounting.
func (c *Client) mount(key Key, fn QueryFunc, opts QueryOptions, onChange func(Entry)) (func(), error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	unsubscribe := c.store.Subscribe(key, onChange)
	q := c.queryLocked(key)
	c.nextMount++
	id := c.nextMount
	q.mounts[id] = mount{fn: fn, opts: opts}
	q.fn = fn
	c.reconcilePollerLocked(q)
	if !opts.Disabled {
		if e, _ := c.store.Get(key); e.staleFor(c.clock.Now(), opts.StaleTime) {
			c.fetchLocked(q, TriggerMount, opts.StaleTime)
		}
	}
	c.mu.Unlock()
	c.store.drain()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			c.mu.Lock()
			delete(q.mounts, id)
			c.reconcilePollerLocked(q)
			c.mu.Unlock()
		})
	}, nil
}

func (c *Client) queryLocked(key Key) *query {
	sk := key.String()
	q, ok := c.queries[sk]
	if !ok {
		q = &query{key: append(Key(nil), key...), mounts: make(map[uint64]mount)}
		c.queries[sk] = q
	}
	return q
}

// staleTimeLocked keeps the StaleTime of mounted consumers when a fetch is
// triggered without options of its own.
func (c *Client) staleTimeLocked(q *query, o QueryOptions) time.Duration {
	if len(q.mounts) > 0 {
		return o.StaleTime
	}
	e, _ := c.store.Get(q.key)
	return e.StaleTime
}

// fetchLocked is the single-flight gate: it returns the in-flight fetch for q
// if there is one, else starts a new one. c.mu must be held, which makes the
// check and the set one atomic step. Store notifications queued here are
// delivered by the caller's c.store.drain() after c.mu is released.
func (c *Client) fetchLocked(q *query, trigger Trigger, staleTime time.Duration) *flight {
	sk := q.key.String()
	if q.flight != nil {
		c.hooks.FetchDeduped(sk, trigger)
		return q.flight
	}
	f := &flight{done: make(chan struct{})}
	q.flight = f
	fn := q.fn
	g := c.store.beginFetch(q.key, staleTime)
	c.hooks.FetchStarted(sk, trigger)
	c.log.Debug("fetch started", Fields{"key": sk, "trigger": trigger.String()})

	c.wg.Add(1)
	go c.runFetch(q, f, fn, g)
	return f
}

func (c *Client) runFetch(q *query, f *flight, fn QueryFunc, g uint64) {
	defer c.wg.Done()
	sk := q.key.String()

	data, err := callFetch(c.ctx, sk, fn)
	if err != nil {
		c.hooks.FetchFailed(sk, err)
		c.log.Warn("fetch failed", Fields{"key": sk, "err": err})
	}
	stillInvalid := c.store.finishFetch(q.key, g, data, err)

	c.mu.Lock()
	q.flight = nil
	f.entry, _ = c.store.Get(q.key)
	f.err = err
	// The data landed after an invalidation; a mounted consumer needs one more round.
	if err == nil && stillInvalid && !c.closed {
		if o, enabled := q.effective(); enabled {
			c.fetchLocked(q, TriggerInvalidate, o.StaleTime)
		}
	}
	c.mu.Unlock()
	c.store.drain()
	close(f.done)
}

func callFetch(ctx context.Context, key string, fn QueryFunc) (data any, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Key: key, Value: v}
		}
	}()
	if fn == nil {
		return nil, fmt.Errorf("querysync: no fetch func for %s", key)
	}
	return fn(ctx)
}

// onInvalidated refetches invalidated keys that have enabled consumers mounted.
// It runs as a store watcher, i.e. inside drain, which delivers what it queues.
func (c *Client) onInvalidated(keys []Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, k := range keys {
		q, ok := c.queries[k.String()]
		if !ok {
			continue
		}
		if o, enabled := q.effective(); enabled {
			c.fetchLocked(q, TriggerInvalidate, o.StaleTime)
		}
	}
}

// onFocus refetches every mounted key whose consumers asked for it.
func (c *Client) onFocus() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	for _, q := range c.queries {
		if o, enabled := q.effective(); enabled && o.RefetchOnFocus {
			c.fetchLocked(q, TriggerFocus, o.StaleTime)
		}
	}
	c.mu.Unlock()
	c.store.drain()
}

// reconcilePollerLocked starts, restarts or stops the poller of q so it
// matches the smallest interval among its mounted consumers.
func (c *Client) reconcilePollerLocked(q *query) {
	o, enabled := q.effective()
	want := time.Duration(0)
	if enabled && !c.closed {
		want = o.RefetchInterval
	}
	if want == q.pollEvery {
		return
	}
	if q.pollStop != nil {
		close(q.pollStop)
		q.pollStop = nil
		if want == 0 {
			c.hooks.PollerStopped(q.key.String())
			c.log.Debug("poller stopped", Fields{"key": q.key.String()})
		}
	}
	q.pollEvery = want
	if want > 0 {
		stop := make(chan struct{})
		q.pollStop = stop
		c.wg.Add(1)
		go c.poll(q, want, stop)
	}
}

func (c *Client) poll(q *query, every time.Duration, stop <-chan struct{}) {
	defer c.wg.Done()
	for {
		t := c.clock.NewTimer(every)
		select {
		case <-stop:
			t.Stop()
			return
		case <-c.ctx.Done():
			t.Stop()
			return
		case <-t.Chan():
		}

		c.mu.Lock()
		select {
		case <-stop:
			// unmounted while the tick was being delivered
			c.mu.Unlock()
			return
		default:
		}
		if o, enabled := q.effective(); enabled {
			c.fetchLocked(q, TriggerInterval, o.StaleTime)
		}
		c.mu.Unlock()
		c.store.drain()
	}
}
