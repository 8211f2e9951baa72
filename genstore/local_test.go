package genstore

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestLocalSnapshotManyIncludesAllAndZeroForMissing(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	// bump b twice -> gen=2
	for i := 0; i < 2; i++ {
		if _, err := s.Bump(ctx, "b"); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.SnapshotMany(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if got["a"] != 0 || got["b"] != 2 || got["c"] != 0 {
		t.Fatalf("got=%v want a=0,b=2,c=0", got)
	}
}

func TestLocalCompareAndBump(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	g, ok, err := s.CompareAndBump(ctx, "order-1", 0)
	if err != nil || !ok || g != 1 {
		t.Fatalf("first CAS: g=%d ok=%v err=%v", g, ok, err)
	}
	// a writer holding the old generation loses
	g, ok, err = s.CompareAndBump(ctx, "order-1", 0)
	if err != nil || ok || g != 1 {
		t.Fatalf("stale CAS: g=%d ok=%v err=%v", g, ok, err)
	}
	if err := s.Forget(ctx, "order-1"); err != nil {
		t.Fatal(err)
	}
	if g, _ := s.Snapshot(ctx, "order-1"); g != 0 {
		t.Fatalf("after Forget gen=%d want 0", g)
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClock()
	s := NewLocalGenStore(0, time.Second, WithClock(clk))
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(1200 * time.Millisecond)
	if _, err := s.Bump(ctx, "new"); err != nil {
		t.Fatal(err)
	}
	s.Cleanup(time.Second)

	if g, _ := s.Snapshot(ctx, "old"); g != 0 {
		t.Fatalf("expected pruned -> 0, got %d", g)
	}
	if g, _ := s.Snapshot(ctx, "new"); g != 1 {
		t.Fatalf("recent key pruned, got %d", g)
	}
}

func TestLocalCleanupLoopRunsOnTicker(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClock()
	s := NewLocalGenStore(time.Minute, time.Second, WithClock(clk))
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("cleanup loop did not prune, len=%d", s.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLocalCloseIsIdempotent(t *testing.T) {
	s := NewLocalGenStore(time.Minute, time.Hour)
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
