package querysync

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	gen "github.com/unkn0wn-root/querysync/genstore"
)

// Options tune a Client. Every field is optional.
type Options struct {
	// Store is the cache the client coordinates. nil => a new Store built from
	// the fields below, owned and closed by the client.
	Store *Store

	Clock  clockwork.Clock // timers for RefetchInterval and FetchedAt; nil => real clock
	Focus  FocusSource     // regain-focus signal for RefetchOnFocus; nil => never
	Logger Logger          // if nil, NopLogger is used
	Hooks  Hooks           // if nil, NopHooks is used

	GenStore        gen.GenStore  // only used when Store is nil
	CleanupInterval time.Duration // only used when Store is nil; 0 => 1h
	GenRetention    time.Duration // only used when Store is nil; 0 => 24h
}

// Client is the query and mutation coordinator over one Store.
// Its lifetime is the application session; Close ends it.
type Client struct {
	store    *Store
	ownStore bool
	clock    clockwork.Clock
	log      Logger
	hooks    Hooks

	ctx    context.Context // parent of every fetch; cancelled by Close
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	queries   map[string]*query
	nextMount uint64
	closed    bool

	stopWatch func()
	stopFocus func()
	closeOnce sync.Once
}

// New creates a Client.
func New(opts Options) *Client {
	c := &Client{
		queries: make(map[string]*query),
		clock:   opts.Clock,
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.Store != nil {
		c.store = opts.Store
	} else {
		c.store = NewStore(StoreOptions{
			GenStore:        opts.GenStore,
			CleanupInterval: opts.CleanupInterval,
			GenRetention:    opts.GenRetention,
			Clock:           c.clock,
			Logger:          c.log,
			Hooks:           c.hooks,
		})
		c.ownStore = true
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.stopWatch = c.store.watchInvalidations(c.onInvalidated)
	if opts.Focus != nil {
		c.stopFocus = opts.Focus.OnRegainFocus(c.onFocus)
	}
	return c
}

// Store returns the cache the client coordinates.
func (c *Client) Store() *Store { return c.store }

// Close stops every poller, detaches from the focus source, cancels the
// context of in-flight fetches and waits for them to return. If ctx ends
// first Close returns its error, but a store the client created is still
// released.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		for _, q := range c.queries {
			if q.pollStop != nil {
				close(q.pollStop)
				q.pollStop = nil
				q.pollEvery = 0
			}
		}
		c.mu.Unlock()

		c.stopWatch()
		if c.stopFocus != nil {
			c.stopFocus()
		}
		c.cancel()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		// the owned store is released even when stragglers outlive ctx
		if c.ownStore {
			if cerr := c.store.Close(context.Background()); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// goTracked runs fn on a goroutine that Close waits for.
func (c *Client) goTracked(fn func(ctx context.Context)) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
	return true
}
