// Package storefront binds the coffee API to querysync: one query per piece of
// server data and one mutation per write, each with its fetch policy and the
// keys it invalidates.
package storefront

import (
	"context"
	"time"

	"github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/internal/coffee"
	"github.com/unkn0wn-root/querysync/internal/config"
)

var (
	MenuKey   = querysync.K("menu")
	OrdersKey = querysync.K("orders")
)

func OrderKey(id string) querysync.Key { return querysync.K("order", id) }

// Policy holds the fetch policy of each query.
type Policy struct {
	Menu   querysync.QueryOptions
	Orders querysync.QueryOptions
	Order  querysync.QueryOptions
}

// DefaultPolicy: the menu rarely changes; orders change under the brewer, so
// they are always stale, polled and refreshed when the user comes back.
func DefaultPolicy() Policy {
	return Policy{
		Menu: querysync.QueryOptions{StaleTime: 5 * time.Minute},
		Orders: querysync.QueryOptions{
			RefetchInterval: 10 * time.Second,
			RefetchOnFocus:  true,
		},
	}
}

// PolicyFromConfig is DefaultPolicy with the configured overrides.
func PolicyFromConfig(cfg config.Sync) Policy {
	p := DefaultPolicy()
	p.Menu.StaleTime = cfg.MenuStaleTime
	p.Orders.RefetchInterval = cfg.OrdersRefetchInterval
	return p
}

// StatusChange is the input of UpdateOrderStatus.
type StatusChange struct {
	OrderID string
	Status  coffee.Status
}

// Storefront is the storefront's read and write surface.
type Storefront struct {
	c      *querysync.Client
	api    coffee.API
	policy Policy

	CreateOrder       *querysync.Mutation[string, coffee.CreateOrderResult]
	UpdateOrderStatus *querysync.Mutation[StatusChange, coffee.Order]
	DeleteOrder       *querysync.Mutation[string, coffee.DeleteResult]
}

func New(c *querysync.Client, api coffee.API, policy Policy) *Storefront {
	s := &Storefront{c: c, api: api, policy: policy}

	s.CreateOrder = querysync.NewMutation(c, "createOrder",
		func(ctx context.Context, name string) (coffee.CreateOrderResult, error) {
			return api.CreateOrder(ctx, name)
		},
		querysync.Invalidates[string, coffee.CreateOrderResult](querysync.Prefix(OrdersKey)),
	)
	s.UpdateOrderStatus = querysync.NewMutation(c, "updateOrderStatus",
		func(ctx context.Context, in StatusChange) (coffee.Order, error) {
			return api.UpdateOrderStatus(ctx, in.OrderID, in.Status)
		},
		func(in StatusChange, _ coffee.Order) []querysync.Target {
			return []querysync.Target{querysync.Prefix(OrdersKey), querysync.Exact(OrderKey(in.OrderID))}
		},
	)
	// the single-order entry would otherwise keep showing the deleted order
	s.DeleteOrder = querysync.NewMutation(c, "deleteOrder",
		func(ctx context.Context, id string) (coffee.DeleteResult, error) {
			return api.DeleteOrder(ctx, id)
		},
		func(id string, _ coffee.DeleteResult) []querysync.Target {
			return []querysync.Target{querysync.Prefix(OrdersKey), querysync.Exact(OrderKey(id))}
		},
	)
	return s
}

func (s *Storefront) Client() *querysync.Client { return s.c }

func (s *Storefront) Menu() (*querysync.QueryObserver[[]coffee.MenuItem], error) {
	return querysync.Observe(s.c, MenuKey, s.api.GetMenu, s.policy.Menu)
}

func (s *Storefront) Orders() (*querysync.QueryObserver[[]coffee.Order], error) {
	return querysync.Observe(s.c, OrdersKey, s.api.ListOrders, s.policy.Orders)
}

// Order observes one order. An empty id mounts a disabled query that never fetches.
func (s *Storefront) Order(id string) (*querysync.QueryObserver[coffee.Order], error) {
	opts := s.policy.Order
	opts.Disabled = opts.Disabled || id == ""
	return querysync.Observe(s.c, OrderKey(id), func(ctx context.Context) (coffee.Order, error) {
		return s.api.GetOrder(ctx, id)
	}, opts)
}
