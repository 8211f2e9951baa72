package coffee

import "context"

// API is the order service as the storefront sees it. Implementations do one
// network call (or one in-process call) per method and never cache.
type API interface {
	GetMenu(ctx context.Context) ([]MenuItem, error)
	ListOrders(ctx context.Context) ([]Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	CreateOrder(ctx context.Context, menuItemName string) (CreateOrderResult, error)
	UpdateOrderStatus(ctx context.Context, id string, status Status) (Order, error)
	DeleteOrder(ctx context.Context, id string) (DeleteResult, error)
}
