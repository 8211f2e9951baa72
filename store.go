package querysync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	gen "github.com/unkn0wn-root/querysync/genstore"
)

// Status is the lifecycle state of a cache entry.
type Status uint8

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a point-in-time copy of the cache state for one key.
// Data is shared with the store; treat it as read-only.
type Entry struct {
	Key         Key
	Data        any
	HasData     bool
	Status      Status
	FetchedAt   time.Time // last successful fetch; zero if none
	StaleTime   time.Duration
	Err         error // set only when Status == StatusError
	Subscribers int
	Fetching    bool
	Invalidated bool
	Gen         uint64 // invalidation generation the data was fetched under
}

// IsStale reports whether the entry needs a refetch on access at now.
// An entry without data or one that was invalidated is always stale.
func (e Entry) IsStale(now time.Time) bool {
	return e.staleFor(now, e.StaleTime)
}

// staleFor is IsStale under a consumer's own StaleTime. Data is stale once its
// age exceeds staleTime; a staleTime of 0 makes it stale immediately.
func (e Entry) staleFor(now time.Time, staleTime time.Duration) bool {
	if !e.HasData || e.Invalidated || e.FetchedAt.IsZero() || staleTime <= 0 {
		return true
	}
	return now.Sub(e.FetchedAt) > staleTime
}

// StoreOptions configure a Store. All fields are optional.
type StoreOptions struct {
	GenStore        gen.GenStore    // nil => LocalGenStore owned by the store
	CleanupInterval time.Duration   // LocalGenStore sweep; 0 => 1h
	GenRetention    time.Duration   // LocalGenStore retention; 0 => 24h
	Clock           clockwork.Clock // nil => real clock
	Logger          Logger
	Hooks           Hooks
}

type listener struct {
	id uint64
	fn func(Entry)
}

type record struct {
	e         Entry
	listeners []listener
}

// Store is the keyed cache shared by the query and mutation sides of a Client.
// Every write notifies the subscribers of the written key. Notifications are
// delivered in write order, outside the store lock, so listeners may read or
// write the store. A write made from inside a listener is delivered after the
// current listener returns.
type Store struct {
	mu      sync.Mutex
	entries map[string]*record

	gen    gen.GenStore
	ownGen bool
	clock  clockwork.Clock
	log    Logger
	hooks  Hooks

	nextID   uint64
	watchers []invalidationWatcher

	queue    []func()
	draining bool
}

type invalidationWatcher struct {
	id uint64
	fn func([]Key)
}

// NewStore creates an empty store.
func NewStore(opts StoreOptions) *Store {
	s := &Store{
		entries: make(map[string]*record),
		clock:   opts.Clock,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.GenStore != nil {
		s.gen = opts.GenStore
	} else {
		s.gen = gen.NewLocalGenStore(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
			gen.WithClock(s.clock),
		)
		s.ownGen = true
	}
	return s
}

// Close releases the generation store if the store created it.
func (s *Store) Close(ctx context.Context) error {
	if s.ownGen {
		return s.gen.Close(ctx)
	}
	return nil
}

// Get returns a copy of the entry for key.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.entries[key.String()]
	if !ok {
		return Entry{Key: key}, false
	}
	return r.e, true
}

// Set applies update to the entry for key (creating an idle entry if needed)
// and notifies the key's subscribers. Key and Subscribers are owned by the
// store and cannot be changed through update.
func (s *Store) Set(key Key, update func(e *Entry)) {
	s.mu.Lock()
	r := s.recordLocked(key)
	k, subs := r.e.Key, r.e.Subscribers
	update(&r.e)
	r.e.Key, r.e.Subscribers = k, subs
	if r.e.Status != StatusError {
		r.e.Err = nil
	}
	s.notifyLocked(r)
	s.mu.Unlock()
	s.drain()
}

// Invalidate marks every existing entry selected by targets as stale without
// clearing its data, and bumps its generation so fetches already in flight
// know they started before the invalidation. It returns the invalidated keys.
func (s *Store) Invalidate(targets ...Target) []Key {
	if len(targets) == 0 {
		return nil
	}
	s.mu.Lock()
	var keys []Key
	for sk, r := range s.entries {
		if !matchesAny(targets, r.e.Key) {
			continue
		}
		r.e.Invalidated = true
		s.bumpGen(sk)
		s.hooks.Invalidated(sk)
		keys = append(keys, r.e.Key)
		s.notifyLocked(r)
	}
	sortKeys(keys)
	if len(keys) > 0 {
		for _, w := range s.watchers {
			fn, ks := w.fn, keys
			s.queue = append(s.queue, func() { fn(ks) })
		}
	}
	s.mu.Unlock()
	s.drain()

	if len(keys) > 0 {
		s.log.Debug("invalidated keys", Fields{"count": len(keys), "targets": len(targets)})
	}
	return keys
}

// Subscribe registers fn for changes to key and counts it as a subscriber.
// The returned func unsubscribes; calling it more than once is a no-op.
func (s *Store) Subscribe(key Key, fn func(Entry)) func() {
	s.mu.Lock()
	r := s.recordLocked(key)
	s.nextID++
	id := s.nextID
	r.listeners = append(r.listeners, listener{id: id, fn: fn})
	r.e.Subscribers++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range r.listeners {
				if l.id == id {
					r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
					r.e.Subscribers--
					return
				}
			}
		})
	}
}

// Keys returns every key known to the store, sorted by serialized form.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.entries))
	for _, r := range s.entries {
		keys = append(keys, r.e.Key)
	}
	s.mu.Unlock()
	sortKeys(keys)
	return keys
}

// Match returns copies of the entries selected by t.
func (s *Store) Match(t Target) []Entry {
	s.mu.Lock()
	var out []Entry
	for _, r := range s.entries {
		if t.Matches(r.e.Key) {
			out = append(out, r.e)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// watchInvalidations registers fn to receive the keys of every Invalidate call
// that matched at least one entry.
func (s *Store) watchInvalidations(fn func([]Key)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers = append(s.watchers, invalidationWatcher{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers {
			if w.id == id {
				s.watchers = append(s.watchers[:i:i], s.watchers[i+1:]...)
				return
			}
		}
	}
}

// beginFetch marks key as fetching and returns the generation the fetch runs
// under. The entry only moves to loading when there is no data to keep showing.
// The notification is queued, not delivered: the caller holds the client lock
// and must call drain once it is released.
func (s *Store) beginFetch(key Key, staleTime time.Duration) uint64 {
	s.mu.Lock()
	r := s.recordLocked(key)
	g := s.snapshotGen(key.String())
	r.e.Fetching = true
	r.e.StaleTime = staleTime
	if !r.e.HasData {
		r.e.Status = StatusLoading
		r.e.Err = nil
	}
	s.notifyLocked(r)
	s.mu.Unlock()
	return g
}

// finishFetch applies a fetch result observed under generation g.
// It reports whether the entry is still invalidated afterwards, which happens
// when an invalidation landed while the fetch was in flight.
func (s *Store) finishFetch(key Key, g uint64, data any, err error) (stillInvalid bool) {
	now := s.clock.Now()
	sk := key.String()

	s.mu.Lock()
	r := s.recordLocked(key)
	r.e.Fetching = false
	if err != nil {
		r.e.Status = StatusError
		r.e.Err = err
	} else {
		cur := s.snapshotGen(sk)
		r.e.Data = data
		r.e.HasData = true
		r.e.Status = StatusSuccess
		r.e.Err = nil
		r.e.FetchedAt = now
		r.e.Gen = g
		r.e.Invalidated = cur != g
		if r.e.Invalidated {
			s.hooks.StaleCompletion(sk)
		}
	}
	stillInvalid = r.e.Invalidated
	s.notifyLocked(r)
	s.mu.Unlock()
	s.drain()
	return stillInvalid
}

func (s *Store) recordLocked(key Key) *record {
	sk := key.String()
	r, ok := s.entries[sk]
	if !ok {
		r = &record{e: Entry{Key: append(Key(nil), key...), Status: StatusIdle}}
		s.entries[sk] = r
	}
	return r
}

// notifyLocked queues the current entry for every listener of r. s.mu must be held.
func (s *Store) notifyLocked(r *record) {
	if len(r.listeners) == 0 {
		return
	}
	e := r.e
	fns := make([]func(Entry), len(r.listeners))
	for i, l := range r.listeners {
		fns[i] = l.fn
	}
	s.queue = append(s.queue, func() {
		for _, fn := range fns {
			s.deliver(func() { fn(e) })
		}
	})
}

// drain delivers queued notifications unless another call is already doing so.
func (s *Store) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.deliver(fn)
		s.mu.Lock()
	}
	s.queue = nil
	s.draining = false
	s.mu.Unlock()
}

func (s *Store) deliver(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			s.log.Error("store listener panicked", Fields{"panic": v})
		}
	}()
	fn()
}

func (s *Store) snapshotGen(storageKey string) uint64 {
	g, err := s.gen.Snapshot(context.Background(), storageKey)
	if err != nil {
		// Conservative: 0 means completions look stale and get refetched
		s.log.Warn("gen snapshot error", Fields{"key": storageKey, "err": err})
		return 0
	}
	return g
}

func (s *Store) bumpGen(storageKey string) uint64 {
	g, err := s.gen.Bump(context.Background(), storageKey)
	if err != nil {
		s.log.Error("gen bump error", Fields{"key": storageKey, "err": err})
		return 0
	}
	return g
}

func matchesAny(targets []Target, key Key) bool {
	for _, t := range targets {
		if t.Matches(key) {
			return true
		}
	}
	return false
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}
