package orderstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/querysync/codec"
	"github.com/unkn0wn-root/querysync/internal/coffee"
)

type memProvider struct {
	mu      sync.Mutex
	m       map[string][]byte
	reject  bool
	failDel bool
}

func newMem() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, k string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[k]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, k string, v []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false, nil
	}
	p.m[k] = append([]byte(nil), v...)
	return true, nil
}

func (p *memProvider) Del(_ context.Context, k string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failDel {
		return errors.New("mem: delete failed")
	}
	delete(p.m, k)
	return nil
}

func (p *memProvider) has(k string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[k]
	return ok
}

func (p *memProvider) Close(context.Context) error { return nil }

func newStore(t *testing.T, p *memProvider) *Store {
	t.Helper()
	s, err := New(context.Background(), Options{Namespace: "test", Provider: p})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestCreateListGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, newMem())

	a, err := s.Create(ctx, "Latte")
	require.NoError(t, err)
	b, err := s.Create(ctx, "Espresso")
	require.NoError(t, err)

	assert.Equal(t, "order-1", a.OrderID)
	assert.Equal(t, "order-2", b.OrderID)
	assert.Equal(t, coffee.StatusQueued, a.Status)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"Latte", "Espresso"}, []string{all[0].MenuItemName, all[1].MenuItemName})

	got, g, err := s.Get(ctx, "order-2")
	require.NoError(t, err)
	assert.Equal(t, b, got)
	assert.NotZero(t, g)
}

func TestGetMissing(t *testing.T) {
	s := newStore(t, newMem())
	_, _, err := s.Get(context.Background(), "order-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, newMem())

	o, err := s.Create(ctx, "Cortado")
	require.NoError(t, err)
	_, g, err := s.Get(ctx, o.OrderID)
	require.NoError(t, err)

	o.Status = coffee.StatusGrinding
	g2, err := s.Update(ctx, o, g)
	require.NoError(t, err)
	assert.Greater(t, g2, g)

	// stale generation loses
	o.Status = coffee.StatusReady
	_, err = s.Update(ctx, o, g)
	assert.ErrorIs(t, err, ErrConflict)

	got, _, err := s.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, coffee.StatusGrinding, got.Status)
}

func TestUpdateMissing(t *testing.T) {
	s := newStore(t, newMem())
	_, err := s.Update(context.Background(), coffee.Order{OrderID: "order-3"}, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, newMem())

	o, err := s.Create(ctx, "Latte")
	require.NoError(t, err)
	_, g, err := s.Get(ctx, o.OrderID)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, o.OrderID))
	assert.ErrorIs(t, s.Delete(ctx, o.OrderID), ErrNotFound)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = s.Update(ctx, o, g)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAfterDeleteWithLeftoverRecord(t *testing.T) {
	ctx := context.Background()
	p := newMem()
	s := newStore(t, p)

	o, err := s.Create(ctx, "Latte")
	require.NoError(t, err)
	p.failDel = true
	require.NoError(t, s.Delete(ctx, o.OrderID))
	require.True(t, p.has(s.recordKey(o.OrderID)))

	// the generation was forgotten, so 0 would pass the compare
	o.Status = coffee.StatusReady
	_, err = s.Update(ctx, o, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestConcurrentUpdateDeleteLeavesOrderGone(t *testing.T) {
	ctx := context.Background()
	p := newMem()
	s := newStore(t, p)

	for i := 0; i < 200; i++ {
		o, err := s.Create(ctx, "Mocha")
		require.NoError(t, err)
		_, g, err := s.Get(ctx, o.OrderID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var delErr, updErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			delErr = s.Delete(ctx, o.OrderID)
		}()
		upd := o
		upd.Status = coffee.StatusGrinding
		go func() {
			defer wg.Done()
			_, updErr = s.Update(ctx, upd, g)
		}()
		wg.Wait()

		require.NoError(t, delErr)
		if updErr != nil {
			require.ErrorIs(t, updErr, ErrNotFound)
		}
		_, _, err = s.Get(ctx, o.OrderID)
		require.ErrorIs(t, err, ErrNotFound, "order %s came back after delete", o.OrderID)
		require.False(t, p.has(s.recordKey(o.OrderID)))
	}
}

func TestReopenResumesIDs(t *testing.T) {
	ctx := context.Background()
	p := newMem()
	s := newStore(t, p)
	for range 3 {
		_, err := s.Create(ctx, "Espresso")
		require.NoError(t, err)
	}
	require.NoError(t, s.Delete(ctx, "order-2"))

	s2 := newStore(t, p)
	o, err := s2.Create(ctx, "Latte")
	require.NoError(t, err)
	assert.Equal(t, "order-4", o.OrderID)

	all, err := s2.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCorruptRecordDropped(t *testing.T) {
	ctx := context.Background()
	p := newMem()
	s := newStore(t, p)
	o, err := s.Create(ctx, "Latte")
	require.NoError(t, err)

	p.m[s.recordKey(o.OrderID)] = []byte("garbage")

	_, _, err = s.Get(ctx, o.OrderID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, ok := p.m[s.recordKey(o.OrderID)]
	assert.False(t, ok)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRejectedWrite(t *testing.T) {
	p := newMem()
	s := newStore(t, p)
	p.reject = true
	_, err := s.Create(context.Background(), "Latte")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestMsgpackCodec(t *testing.T) {
	ctx := context.Background()
	c, err := codec.ByName[coffee.Order](codec.NameMsgpack, 1<<10)
	require.NoError(t, err)
	s, err := New(ctx, Options{Namespace: "mp", Provider: newMem(), Codec: c})
	require.NoError(t, err)

	o, err := s.Create(ctx, "Ice Latte")
	require.NoError(t, err)
	got, _, err := s.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, o, got)
}

func TestNewValidates(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: newMem()})
	assert.Error(t, err)
	_, err = New(context.Background(), Options{Namespace: "x"})
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	assert.True(t, ParseID("order-12"))
	assert.False(t, ParseID("order-"))
	assert.False(t, ParseID("abc123"))
}
