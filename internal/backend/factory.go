package backend

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/codec"
	gen "github.com/unkn0wn-root/querysync/genstore"
	"github.com/unkn0wn-root/querysync/internal/backend/orderstore"
	"github.com/unkn0wn-root/querysync/internal/coffee"
	"github.com/unkn0wn-root/querysync/internal/config"
	pr "github.com/unkn0wn-root/querysync/provider"
	"github.com/unkn0wn-root/querysync/provider/bigcache"
	"github.com/unkn0wn-root/querysync/provider/redis"
	"github.com/unkn0wn-root/querysync/provider/ristretto"
)

// OpenProvider builds the byte store named by cfg.Provider. The caller closes it.
func OpenProvider(ctx context.Context, cfg config.Backend) (pr.Provider, error) {
	var (
		p   pr.Provider
		err error
	)
	switch cfg.Provider {
	case "", "ristretto":
		var r *ristretto.Provider
		r, err = ristretto.New(ristretto.Config{
			NumCounters: cfg.Ristretto.NumCounters,
			MaxCost:     cfg.Ristretto.MaxCost,
			BufferItems: cfg.Ristretto.BufferItems,
		})
		p = r
	case "bigcache":
		var b *bigcache.Provider
		b, err = bigcache.New(ctx, bigcache.Config{
			LifeWindow:         cfg.BigCache.LifeWindow,
			HardMaxCacheSizeMB: cfg.BigCache.HardMaxCacheSizeMB,
		})
		p = b
	case "redis":
		var r *redis.Redis
		r, err = redis.Dial(ctx, cfg.RedisAddr, cfg.RedisDB)
		p = r
	default:
		return nil, fmt.Errorf("backend: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("backend: open %s provider: %w", cfg.Provider, err)
	}
	return p, nil
}

// OpenOrderStore opens the order store over p with the codec named by cfg.Codec.
// Over redis, the write generations live in the same redis so that every brewd
// sharing it agrees on them; otherwise they are process-local.
func OpenOrderStore(ctx context.Context, cfg config.Backend, p pr.Provider, clock clockwork.Clock, log querysync.Logger) (*orderstore.Store, error) {
	c, err := codec.ByName[coffee.Order](cfg.Codec, cfg.MaxDecode)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	var gs gen.GenStore
	if r, ok := p.(*redis.Redis); ok {
		gs = gen.NewRedisGenStore(r.Client(), cfg.Namespace)
	}
	return orderstore.New(ctx, orderstore.Options{
		Namespace: cfg.Namespace,
		Provider:  p,
		Codec:     c,
		GenStore:  gs,
		Clock:     clock,
		Logger:    log,
	})
}
