// Package backend is the development order service behind the storefront:
// a fixed menu, an order store and a brewer that moves orders along.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/internal/backend/orderstore"
	"github.com/unkn0wn-root/querysync/internal/coffee"
)

// casAttempts bounds the read-modify-write loop of a status change.
const casAttempts = 5

// Menu is what the shop serves.
var Menu = []coffee.MenuItem{
	{Name: "Espresso", Description: "Strong and rich Italian-style coffee", Price: 2.50},
	{Name: "Latte", Description: "Espresso with steamed milk and a light layer of foam", Price: 3.50},
	{Name: "Cortado", Description: "Equal parts espresso and steamed milk", Price: 3.25},
	{Name: "Ice Latte", Description: "Espresso with cold milk and ice", Price: 3.75},
}

// Service implements coffee.API in process. The HTTP handler serves it and
// tests use it directly as a fetcher.
type Service struct {
	orders   *orderstore.Store
	menu     []coffee.MenuItem
	log      querysync.Logger
	validate *validator.Validate
}

var _ coffee.API = (*Service)(nil)

func NewService(orders *orderstore.Store, log querysync.Logger) *Service {
	if log == nil {
		log = querysync.NopLogger{}
	}
	return &Service{
		orders:   orders,
		menu:     Menu,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) GetMenu(context.Context) ([]coffee.MenuItem, error) {
	out := make([]coffee.MenuItem, len(s.menu))
	copy(out, s.menu)
	return out, nil
}

func (s *Service) ListOrders(ctx context.Context) ([]coffee.Order, error) {
	const op = "backend.ListOrders"

	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, coffee.Internal(op, err)
	}
	return orders, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (coffee.Order, error) {
	const op = "backend.GetOrder"

	if !orderstore.ParseID(id) {
		return coffee.Order{}, coffee.NotFound(op, "order not found")
	}
	o, _, err := s.orders.Get(ctx, id)
	if err != nil {
		return coffee.Order{}, s.storeErr(op, err)
	}
	return o, nil
}

func (s *Service) CreateOrder(ctx context.Context, menuItemName string) (coffee.CreateOrderResult, error) {
	const op = "backend.CreateOrder"

	if err := s.validate.Var(menuItemName, "required,max=64"); err != nil {
		return coffee.CreateOrderResult{}, coffee.Validation(op, "menuItemName is required")
	}
	if !s.onMenu(menuItemName) {
		return coffee.CreateOrderResult{}, coffee.Validation(op, fmt.Sprintf("%q is not on the menu", menuItemName))
	}
	o, err := s.orders.Create(ctx, menuItemName)
	if err != nil {
		return coffee.CreateOrderResult{}, coffee.Internal(op, err)
	}
	s.log.Info("order created", querysync.Fields{"id": o.OrderID, "item": menuItemName})
	return coffee.CreateOrderResult{OrderID: o.OrderID}, nil
}

// UpdateOrderStatus sets the status of an order. It re-reads and retries when
// the brewer wins the race for the same order.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status coffee.Status) (coffee.Order, error) {
	const op = "backend.UpdateOrderStatus"

	if !status.Valid() {
		return coffee.Order{}, coffee.Validation(op, fmt.Sprintf("invalid status %d", status))
	}
	if !orderstore.ParseID(id) {
		return coffee.Order{}, coffee.NotFound(op, "order not found")
	}
	for range casAttempts {
		o, g, err := s.orders.Get(ctx, id)
		if err != nil {
			return coffee.Order{}, s.storeErr(op, err)
		}
		if o.Status == status {
			return o, nil
		}
		o.Status = status
		if _, err = s.orders.Update(ctx, o, g); err == nil {
			s.log.Info("order status set", querysync.Fields{"id": id, "status": status.String()})
			return o, nil
		}
		if !errors.Is(err, orderstore.ErrConflict) {
			return coffee.Order{}, s.storeErr(op, err)
		}
	}
	return coffee.Order{}, &coffee.Error{Kind: coffee.KindServer, Op: op, Message: "too many concurrent updates", Err: orderstore.ErrConflict}
}

func (s *Service) DeleteOrder(ctx context.Context, id string) (coffee.DeleteResult, error) {
	const op = "backend.DeleteOrder"

	if !orderstore.ParseID(id) {
		return coffee.DeleteResult{}, coffee.NotFound(op, "order not found")
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return coffee.DeleteResult{}, s.storeErr(op, err)
	}
	s.log.Info("order deleted", querysync.Fields{"id": id})
	return coffee.DeleteResult{Success: true}, nil
}

// AdvanceAll moves every unfinished order one step along the pipeline and
// returns how many moved. An order changed concurrently is left for the next
// round.
func (s *Service) AdvanceAll(ctx context.Context) (int, error) {
	const op = "backend.AdvanceAll"

	orders, err := s.orders.List(ctx)
	if err != nil {
		return 0, coffee.Internal(op, err)
	}
	moved := 0
	for _, listed := range orders {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		o, g, err := s.orders.Get(ctx, listed.OrderID)
		if errors.Is(err, orderstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return moved, coffee.Internal(op, err)
		}
		next, ok := o.Status.Next()
		if !ok {
			continue
		}
		o.Status = next
		_, err = s.orders.Update(ctx, o, g)
		switch {
		case err == nil:
			moved++
			s.log.Debug("order advanced", querysync.Fields{"id": o.OrderID, "status": next.String()})
		case errors.Is(err, orderstore.ErrConflict), errors.Is(err, orderstore.ErrNotFound):
		default:
			return moved, coffee.Internal(op, err)
		}
	}
	return moved, nil
}

func (s *Service) onMenu(name string) bool {
	for _, m := range s.menu {
		if m.Name == name {
			return true
		}
	}
	return false
}

func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, orderstore.ErrNotFound) {
		return coffee.NotFound(op, "order not found")
	}
	return coffee.Internal(op, err)
}
