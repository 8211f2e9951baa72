package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live. A generation is a per-key counter
// bumped on every invalidation or write; readers snapshot it before starting
// work and compare afterwards to find out whether they raced a bump.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// CompareAndBump bumps only if the current generation equals want.
	// It returns the new generation and whether the bump happened.
	CompareAndBump(ctx context.Context, storageKey string, want uint64) (uint64, bool, error)
	// Forget drops the generation of a key that no longer exists.
	Forget(ctx context.Context, storageKey string) error
	// Cleanup prunes entries untouched for longer than retention.
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
