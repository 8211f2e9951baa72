package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/internal/coffee"
	"github.com/unkn0wn-root/querysync/internal/storefront"
)

const rule = "==============================="

// app is the interactive loop. Every line the user enters counts as the
// terminal regaining focus, which refreshes the order list.
type app struct {
	sf    *storefront.Storefront
	focus *querysync.FocusManager
	in    *bufio.Reader
	out   io.Writer

	outMu sync.Mutex
	lines chan string
	done  chan struct{}

	menu    *querysync.QueryObserver[[]coffee.MenuItem]
	orders  *querysync.QueryObserver[[]coffee.Order]
	tracked map[string]*querysync.QueryObserver[coffee.Order]

	seenMu sync.Mutex
	seen   map[string]coffee.Status
}

func newApp(sf *storefront.Storefront, focus *querysync.FocusManager, in *bufio.Reader, out io.Writer) *app {
	return &app{
		sf:      sf,
		focus:   focus,
		in:      in,
		out:     out,
		tracked: make(map[string]*querysync.QueryObserver[coffee.Order]),
		seen:    make(map[string]coffee.Status),
	}
}

// run serves the menu until the user quits, input ends or ctx is done.
func (a *app) run(ctx context.Context) error {
	var err error
	if a.menu, err = a.sf.Menu(); err != nil {
		return err
	}
	defer a.menu.Close()
	if a.orders, err = a.sf.Orders(); err != nil {
		return err
	}
	defer a.orders.Close()
	defer a.orders.Subscribe(a.announce)()
	defer func() {
		for _, o := range a.tracked {
			o.Close()
		}
	}()

	a.lines = make(chan string)
	a.done = make(chan struct{})
	defer close(a.done)
	go a.readLines()

	a.printf("Welcome to the Coffee CLI!\n\n")
	for {
		a.showMenu()
		choice, err := a.prompt(ctx, "Choose an option:")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if choice == "7" || strings.EqualFold(choice, "q") {
			a.printf("Goodbye!\n")
			return nil
		}
		if err := a.handle(ctx, choice); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		a.printf("\n")
	}
}

func (a *app) handle(ctx context.Context, choice string) error {
	switch choice {
	case "1":
		a.viewMenu(ctx)
	case "2":
		a.viewOrders(ctx)
	case "3":
		return a.placeOrder(ctx)
	case "4":
		return a.trackOrder(ctx)
	case "5":
		return a.advanceOrder(ctx)
	case "6":
		return a.deleteOrder(ctx)
	default:
		a.printf("Invalid option. Please choose 1 to 7.\n")
	}
	return nil
}

func (a *app) showMenu() {
	a.printf("Menu:\n")
	a.printf("1. View menu\n")
	a.printf("2. View orders\n")
	a.printf("3. Place order\n")
	a.printf("4. Track order\n")
	a.printf("5. Advance order\n")
	a.printf("6. Delete order\n")
	a.printf("7. Quit\n\n")
}

func (a *app) viewMenu(ctx context.Context) []coffee.MenuItem {
	r := await(ctx, a.menu)
	if !r.HasData {
		a.printf("Get menu error: %v\n", r.Err)
		return nil
	}
	a.printf("Menu Items:\n%s\n", rule)
	for i, item := range r.Data {
		a.printf("%d_ %s _ $%s\n", i+1, item.Name, coffee.FormatPrice(item.Price))
		if item.Description != "" {
			a.printf("   %s\n", item.Description)
		}
		a.printf("%s\n", rule)
	}
	return r.Data
}

func (a *app) viewOrders(ctx context.Context) {
	r := await(ctx, a.orders)
	if r.Err != nil {
		a.printf("Get orders error: %v\n", r.Err)
		if !r.HasData {
			return
		}
		a.printf("(showing last known orders)\n")
	}
	if len(r.Data) == 0 {
		a.printf("No orders yet.\n")
		return
	}
	a.printf("Orders:\n%s\n", rule)
	for _, o := range r.Data {
		a.printf("%s  %s %-9s %s\n", o.OrderID, o.Status.Emoji(), o.Status, o.MenuItemName)
	}
	a.printf("%s\n", rule)
}

func (a *app) placeOrder(ctx context.Context) error {
	menu := a.viewMenu(ctx)
	if len(menu) == 0 {
		return nil
	}
	in, err := a.prompt(ctx, "Item number or name:")
	if err != nil {
		return err
	}
	name := in
	if n, err := strconv.Atoi(in); err == nil {
		if n < 1 || n > len(menu) {
			a.printf("No item %d on the menu.\n", n)
			return nil
		}
		name = menu[n-1].Name
	}
	res, err := a.sf.CreateOrder.Mutate(ctx, name)
	if err != nil {
		a.printf("Could not place order: %s\n", describe(err))
		return nil
	}
	a.printf("Order placed: %s (%s)\n", res.OrderID, name)
	return nil
}

func (a *app) trackOrder(ctx context.Context) error {
	id, err := a.prompt(ctx, "Order id:")
	if err != nil {
		return err
	}
	o, ok := a.tracked[id]
	if !ok {
		if o, err = a.sf.Order(id); err != nil {
			return err
		}
	}
	r := await(ctx, o)
	if r.Err != nil && (!r.HasData || coffee.KindOf(r.Err) == coffee.KindNotFound) {
		a.printf("Could not track %s: %s\n", id, describe(r.Err))
		o.Close()
		delete(a.tracked, id)
		return nil
	}
	if !r.HasData {
		a.printf("Order id is required.\n")
		o.Close()
		return nil
	}
	a.tracked[id] = o
	a.printf("%s: %s %s (%s)\n", r.Data.OrderID, r.Data.Status.Emoji(), r.Data.Status, r.Data.MenuItemName)
	return nil
}

func (a *app) advanceOrder(ctx context.Context) error {
	id, err := a.prompt(ctx, "Order id:")
	if err != nil {
		return err
	}
	var cur coffee.Order
	found := false
	for _, o := range await(ctx, a.orders).Data {
		if o.OrderID == id {
			cur, found = o, true
			break
		}
	}
	if !found {
		a.printf("Order %s not found.\n", id)
		return nil
	}
	next, ok := cur.Status.Next()
	if !ok {
		a.printf("Order %s is already %s.\n", id, cur.Status)
		return nil
	}
	o, err := a.sf.UpdateOrderStatus.Mutate(ctx, storefront.StatusChange{OrderID: id, Status: next})
	if err != nil {
		a.printf("Could not advance %s: %s\n", id, describe(err))
		return nil
	}
	a.seenMu.Lock()
	a.seen[id] = o.Status
	a.seenMu.Unlock()
	a.printf("%s: %s %s\n", o.OrderID, o.Status.Emoji(), o.Status)
	return nil
}

func (a *app) deleteOrder(ctx context.Context) error {
	id, err := a.prompt(ctx, "Order id:")
	if err != nil {
		return err
	}
	if _, err := a.sf.DeleteOrder.Mutate(ctx, id); err != nil {
		a.printf("Could not delete %s: %s\n", id, describe(err))
		return nil
	}
	if o, ok := a.tracked[id]; ok {
		o.Close()
		delete(a.tracked, id)
	}
	a.seenMu.Lock()
	delete(a.seen, id)
	a.seenMu.Unlock()
	a.printf("Deleted %s\n", id)
	return nil
}

// announce prints status changes the order list picks up between prompts,
// e.g. from polling while the brewer works.
func (a *app) announce(r querysync.QueryResult[[]coffee.Order]) {
	if !r.HasData || r.IsFetching {
		return
	}
	a.seenMu.Lock()
	var changed []coffee.Order
	for _, o := range r.Data {
		prev, ok := a.seen[o.OrderID]
		if ok && prev != o.Status {
			changed = append(changed, o)
		}
		a.seen[o.OrderID] = o.Status
	}
	a.seenMu.Unlock()
	for _, o := range changed {
		a.printf("🔔 %s is now %s %s\n", o.OrderID, o.Status.Emoji(), o.Status)
	}
}

// prompt blurs while the user is away and regains focus when a line arrives.
func (a *app) prompt(ctx context.Context, label string) (string, error) {
	a.printf("%s\n", label)
	a.focus.SetFocused(false)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-a.lines:
		if !ok {
			return "", io.EOF
		}
		a.focus.SetFocused(true)
		return line, nil
	}
}

func (a *app) readLines() {
	defer close(a.lines)
	for {
		s, err := a.in.ReadString('\n')
		if s = strings.TrimSpace(s); s != "" || err == nil {
			select {
			case a.lines <- s:
			case <-a.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (a *app) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// await returns the observer's result, first waiting for a fetch that is
// still running or for the first one when there is no data yet.
func await[T any](ctx context.Context, o *querysync.QueryObserver[T]) querysync.QueryResult[T] {
	r := o.Result()
	if r.HasData && !r.IsFetching {
		return r
	}
	r, _ = o.Refetch(ctx)
	return r
}

func describe(err error) string {
	var ce *coffee.Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return err.Error()
}
