package backend_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/querysync/internal/backend"
	"github.com/unkn0wn-root/querysync/internal/config"
	"github.com/unkn0wn-root/querysync/provider/bigcache"
)

func newService(t *testing.T) *backend.Service {
	t.Helper()
	svc, _ := newServiceWithClock(t, nil)
	return svc
}

func newServiceWithClock(t *testing.T, clock clockwork.Clock) (*backend.Service, config.Backend) {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default().Backend
	cfg.Namespace = t.Name()

	p, err := bigcache.New(ctx, bigcache.Config{LifeWindow: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(ctx) })

	orders, err := backend.OpenOrderStore(ctx, cfg, p, clock, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orders.Close(ctx) })
	return backend.NewService(orders, nil), cfg
}
