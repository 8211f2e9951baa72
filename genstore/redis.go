package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndIncr bumps KEYS[1] iff its value (missing = 0) equals ARGV[1].
// Returns {gen, 1} on bump and {current, 0} otherwise. ARGV[2] is a TTL in ms; 0 = none.
var compareAndIncr = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if cur ~= tonumber(ARGV[1]) then
  return {cur, 0}
end
local n = redis.call("INCR", KEYS[1])
if tonumber(ARGV[2]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {n, 1}
`)

// RedisGenStore keeps generations in Redis so that every process writing the
// same keys agrees on them, across restarts too.
// With a TTL, an expired generation reads as 0 again.
type RedisGenStore struct {
	rdb       redis.UniversalClient
	ns        string
	ttl       time.Duration
	ownClient bool
}

var _ GenStore = (*RedisGenStore)(nil)

type RedisOption func(*RedisGenStore)

// WithTTL expires generation keys ttl after their last bump. ttl <= 0 disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisGenStore) { s.ttl = ttl }
}

// WithOwnedClient makes Close close the client.
func WithOwnedClient() RedisOption {
	return func(s *RedisGenStore) { s.ownClient = true }
}

func NewRedisGenStore(client redis.UniversalClient, namespace string, opts ...RedisOption) *RedisGenStore {
	s := &RedisGenStore{rdb: client, ns: namespace}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisGenStore) key(k string) string { return "gen:" + s.ns + ":" + k }

func (s *RedisGenStore) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(storageKey)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse: %w", err)
	}
	return u, nil
}

func (s *RedisGenStore) SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error) {
	if len(storageKeys) == 0 {
		return map[string]uint64{}, nil
	}
	keys := make([]string, len(storageKeys))
	for i, k := range storageKeys {
		keys[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(storageKeys))
	for i, v := range vals {
		if v == nil {
			out[storageKeys[i]] = 0
			continue
		}
		u, err := strconv.ParseUint(fmt.Sprint(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis gen parse at %s: %w", storageKeys[i], err)
		}
		out[storageKeys[i]] = u
	}
	return out, nil
}

// Bump increments the generation. With a TTL, INCR and PEXPIRE share one
// round-trip.
func (s *RedisGenStore) Bump(ctx context.Context, storageKey string) (uint64, error) {
	k := s.key(storageKey)

	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

func (s *RedisGenStore) CompareAndBump(ctx context.Context, storageKey string, want uint64) (uint64, bool, error) {
	res, err := compareAndIncr.Run(ctx, s.rdb, []string{s.key(storageKey)}, want, s.ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis gen cas: unexpected reply %v", res)
	}
	return uint64(res[0]), res[1] == 1, nil
}

func (s *RedisGenStore) Forget(ctx context.Context, storageKey string) error {
	return s.rdb.Del(ctx, s.key(storageKey)).Err()
}

// Cleanup is a no-op; Redis expires keys itself when a TTL is set.
func (s *RedisGenStore) Cleanup(time.Duration) {}

func (s *RedisGenStore) Close(context.Context) error {
	if s.ownClient {
		return s.rdb.Close()
	}
	return nil
}
