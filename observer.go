package querysync

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// QueryResult is what a consumer renders for one key.
type QueryResult[T any] struct {
	Key     Key
	Data    T
	HasData bool
	Status  Status
	Err     error

	// IsLoading is true only while the first fetch runs (no data yet).
	IsLoading bool
	// IsFetching is true whenever a fetch is in flight, stale data or not.
	IsFetching bool
	IsStale    bool
	UpdatedAt  time.Time
}

// QueryObserver is a mounted consumer of one key: the reactive read side of
// the client. Create with Observe and Close when done.
type QueryObserver[T any] struct {
	c   *Client
	key Key

	mu        sync.Mutex
	unmount   func()
	nextID    uint64
	listeners map[uint64]func(QueryResult[T])
	closed    bool
}

// Observe mounts a consumer of key. Mounting runs the fetch policy in opts:
// stale or missing data is fetched in the background, and RefetchInterval and
// RefetchOnFocus apply until Close.
func Observe[T any](c *Client, key Key, fn func(ctx context.Context) (T, error), opts QueryOptions) (*QueryObserver[T], error) {
	o := &QueryObserver[T]{
		c:         c,
		key:       append(Key(nil), key...),
		listeners: make(map[uint64]func(QueryResult[T])),
	}
	unmount, err := c.mount(o.key, erase(fn), opts, o.onChange)
	if err != nil {
		return nil, err
	}
	o.unmount = unmount
	return o, nil
}

// erase adapts a typed fetch func to the store's untyped one.
func erase[T any](fn func(ctx context.Context) (T, error)) QueryFunc {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
}

// Key returns the observed key.
func (o *QueryObserver[T]) Key() Key { return o.key }

// Result returns the current state of the observed key.
func (o *QueryObserver[T]) Result() QueryResult[T] {
	e, _ := o.c.store.Get(o.key)
	return toResult[T](e, o.c.clock.Now())
}

// Subscribe calls fn with a fresh result after every change to the key.
func (o *QueryObserver[T]) Subscribe(fn func(QueryResult[T])) (unsubscribe func()) {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.listeners[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// Refetch fetches the key now, ignoring staleness, and waits for the result.
func (o *QueryObserver[T]) Refetch(ctx context.Context) (QueryResult[T], error) {
	_, err := o.c.Refetch(ctx, o.key)
	return o.Result(), err
}

// Close unmounts the observer. It is safe to call more than once.
func (o *QueryObserver[T]) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.listeners = nil
	o.mu.Unlock()
	o.unmount()
}

func (o *QueryObserver[T]) onChange(e Entry) {
	o.mu.Lock()
	fns := make([]func(QueryResult[T]), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	if len(fns) == 0 {
		return
	}
	r := toResult[T](e, o.c.clock.Now())
	for _, fn := range fns {
		fn(r)
	}
}

func toResult[T any](e Entry, now time.Time) QueryResult[T] {
	r := QueryResult[T]{
		Key:        e.Key,
		HasData:    e.HasData,
		Status:     e.Status,
		Err:        e.Err,
		IsLoading:  e.Fetching && !e.HasData,
		IsFetching: e.Fetching,
		IsStale:    e.IsStale(now),
		UpdatedAt:  e.FetchedAt,
	}
	if e.HasData {
		v, ok := e.Data.(T)
		if !ok && e.Data != nil {
			r.HasData = false
			r.Status = StatusError
			r.Err = fmt.Errorf("querysync: %s holds %T, observer wants %T", e.Key, e.Data, v)
			return r
		}
		r.Data = v
	}
	return r
}
