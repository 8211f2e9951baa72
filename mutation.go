package querysync

import (
	"context"
	"fmt"
	"sync"
)

// MutationFunc performs one network write.
type MutationFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// InvalidationRule names the entries a successful write makes stale.
type InvalidationRule[In, Out any] func(in In, out Out) []Target

// Invalidates is an InvalidationRule with a fixed target set.
func Invalidates[In, Out any](targets ...Target) InvalidationRule[In, Out] {
	return func(In, Out) []Target { return targets }
}

// MutationStatus is the state of the latest invocation of a Mutation.
type MutationStatus uint8

const (
	MutationIdle MutationStatus = iota
	MutationPending
	MutationSuccess
	MutationError
)

func (s MutationStatus) String() string {
	switch s {
	case MutationIdle:
		return "idle"
	case MutationPending:
		return "pending"
	case MutationSuccess:
		return "success"
	case MutationError:
		return "error"
	default:
		return "unknown"
	}
}

// MutationState is what a consumer renders for a Mutation.
type MutationState[Out any] struct {
	Status MutationStatus
	Data   Out
	Err    error
	Seq    uint64 // invocation the state belongs to; 0 when idle
}

func (s MutationState[Out]) IsIdle() bool    { return s.Status == MutationIdle }
func (s MutationState[Out]) IsPending() bool { return s.Status == MutationPending }
func (s MutationState[Out]) IsSuccess() bool { return s.Status == MutationSuccess }
func (s MutationState[Out]) IsError() bool   { return s.Status == MutationError }

// MutateOptions are per-invocation callbacks. They only fire for the latest
// invocation of the Mutation.
type MutateOptions[In, Out any] struct {
	OnSuccess func(out Out, in In)
	OnError   func(err error, in In)
	OnSettled func(out Out, err error, in In)
}

// Mutation is a reusable write with a declared invalidation rule.
//
// Every invocation gets a sequence number. Only the latest one may change
// State or fire its callbacks; an older invocation that completes later is
// dropped for display. Superseded invocations are not cancelled.
type Mutation[In, Out any] struct {
	c    *Client
	name string
	fn   MutationFunc[In, Out]
	rule InvalidationRule[In, Out]

	mu        sync.Mutex
	seq       uint64
	state     MutationState[Out]
	nextID    uint64
	listeners map[uint64]func(MutationState[Out])
	queue     []func()
	draining  bool
}

// NewMutation binds fn and its invalidation rule to c. rule may be nil.
func NewMutation[In, Out any](c *Client, name string, fn MutationFunc[In, Out], rule InvalidationRule[In, Out]) *Mutation[In, Out] {
	return &Mutation[In, Out]{
		c:         c,
		name:      name,
		fn:        fn,
		rule:      rule,
		listeners: make(map[uint64]func(MutationState[Out])),
	}
}

// Mutate runs the write and waits for it. On success the result is stored,
// then the invalidation rule is applied before Mutate returns, so mounted
// consumers of the affected keys are already refetching. The caller always
// gets its own result, even when a newer invocation has taken over State.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In, opts ...MutateOptions[In, Out]) (Out, error) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.state = MutationState[Out]{Status: MutationPending, Seq: seq}
	m.notifyLocked()
	m.mu.Unlock()
	m.drain()

	out, err := m.call(ctx, in)

	m.mu.Lock()
	latest := m.seq
	current := seq == latest
	if current {
		if err != nil {
			m.state = MutationState[Out]{Status: MutationError, Err: err, Seq: seq}
		} else {
			m.state = MutationState[Out]{Status: MutationSuccess, Data: out, Seq: seq}
		}
		m.notifyLocked()
	}
	m.mu.Unlock()
	m.drain()

	// the server state changed even if this invocation was superseded
	if err == nil && m.rule != nil {
		if targets := m.rule(in, out); len(targets) > 0 {
			m.c.Invalidate(targets...)
		}
	}

	if !current {
		m.c.hooks.MutationSuperseded(m.name, seq, latest)
		m.c.log.Debug("mutation result superseded", Fields{"mutation": m.name, "seq": seq, "latest": latest})
		return out, err
	}
	if err != nil {
		m.c.log.Warn("mutation failed", Fields{"mutation": m.name, "err": err})
	}
	for _, o := range opts {
		runCallbacks(o, in, out, err)
	}
	return out, err
}

// Go runs Mutate on its own goroutine under the client's context.
// It returns false, without running anything, once the client is closed.
func (m *Mutation[In, Out]) Go(in In, opts ...MutateOptions[In, Out]) bool {
	return m.c.goTracked(func(ctx context.Context) {
		_, _ = m.Mutate(ctx, in, opts...)
	})
}

// State returns the state of the latest invocation.
func (m *Mutation[In, Out]) State() MutationState[Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset returns the mutation to idle. Invocations in flight become superseded.
func (m *Mutation[In, Out]) Reset() {
	m.mu.Lock()
	m.seq++
	m.state = MutationState[Out]{}
	m.notifyLocked()
	m.mu.Unlock()
	m.drain()
}

// Subscribe calls fn after every state change, in the order the changes
// happened. fn runs without the mutation's lock held and may call back into m.
func (m *Mutation[In, Out]) Subscribe(fn func(MutationState[Out])) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Mutation[In, Out]) call(ctx context.Context, in In) (out Out, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Key: "mutation:" + m.name, Value: v}
		}
	}()
	if m.fn == nil {
		return out, fmt.Errorf("querysync: mutation %s has no func", m.name)
	}
	return m.fn(ctx, in)
}

// notifyLocked queues the current state for every listener. m.mu must be
// held, and the caller must call drain once it is released.
func (m *Mutation[In, Out]) notifyLocked() {
	st := m.state
	for _, fn := range m.listeners {
		fn := fn
		m.queue = append(m.queue, func() { fn(st) })
	}
}

// drain delivers queued states unless another call is already doing so.
func (m *Mutation[In, Out]) drain() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.deliver(fn)
		m.mu.Lock()
	}
	m.queue = nil
	m.draining = false
	m.mu.Unlock()
}

func (m *Mutation[In, Out]) deliver(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			m.c.log.Error("mutation listener panicked", Fields{"mutation": m.name, "panic": v})
		}
	}()
	fn()
}

func runCallbacks[In, Out any](o MutateOptions[In, Out], in In, out Out, err error) {
	if err != nil {
		if o.OnError != nil {
			o.OnError(err, in)
		}
	} else if o.OnSuccess != nil {
		o.OnSuccess(out, in)
	}
	if o.OnSettled != nil {
		o.OnSettled(out, err, in)
	}
}
