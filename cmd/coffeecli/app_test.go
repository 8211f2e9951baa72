package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/internal/backend"
	"github.com/unkn0wn-root/querysync/internal/config"
	"github.com/unkn0wn-root/querysync/internal/storefront"
	"github.com/unkn0wn-root/querysync/provider/bigcache"
)

func runScript(t *testing.T, script ...string) string {
	t.Helper()
	ctx := context.Background()

	p, err := bigcache.New(ctx, bigcache.Config{LifeWindow: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(ctx) })
	orders, err := backend.OpenOrderStore(ctx, config.Default().Backend, p, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orders.Close(ctx) })
	svc := backend.NewService(orders, nil)

	focus := querysync.NewFocusManager()
	client := querysync.New(querysync.Options{Clock: clockwork.NewFakeClock(), Focus: focus})
	t.Cleanup(func() { _ = client.Close(ctx) })

	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader(strings.Join(script, "\n") + "\n"))
	a := newApp(storefront.New(client, svc, storefront.DefaultPolicy()), focus, in, &out)

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, a.run(runCtx))

	a.outMu.Lock()
	defer a.outMu.Unlock()
	return out.String()
}

func TestViewMenu(t *testing.T) {
	out := runScript(t, "1", "7")
	assert.Contains(t, out, "1_ Espresso _ $2.50")
	assert.Contains(t, out, "2_ Latte _ $3.50")
	assert.Contains(t, out, "4_ Ice Latte _ $3.75")
	assert.Contains(t, out, "Goodbye!")
}

func TestOrderLifecycle(t *testing.T) {
	out := runScript(t,
		"2",
		"3", "2",
		"2",
		"4", "order-1",
		"5", "order-1",
		"4", "order-1",
		"6", "order-1",
		"2",
		"7",
	)
	assert.Contains(t, out, "No orders yet.")
	assert.Contains(t, out, "Order placed: order-1 (Latte)")
	assert.Contains(t, out, "order-1  🕐 QUEUED")
	assert.Contains(t, out, "order-1: 🕐 QUEUED (Latte)")
	assert.Contains(t, out, "order-1: ⚙️ GRINDING")
	assert.Contains(t, out, "order-1: ⚙️ GRINDING (Latte)")
	assert.Contains(t, out, "Deleted order-1")
	assert.Equal(t, 2, strings.Count(out, "No orders yet."))
}

func TestPlaceOrderByName(t *testing.T) {
	out := runScript(t, "3", "Cortado", "3", "Mocha", "3", "9", "7")
	assert.Contains(t, out, "Order placed: order-1 (Cortado)")
	assert.Contains(t, out, "Could not place order: \"Mocha\" is not on the menu")
	assert.Contains(t, out, "No item 9 on the menu.")
}

func TestUnknownOrders(t *testing.T) {
	out := runScript(t, "4", "order-9", "5", "order-9", "6", "order-9", "4", "", "7")
	assert.Contains(t, out, "Could not track order-9: order not found")
	assert.Contains(t, out, "Order order-9 not found.")
	assert.Contains(t, out, "Could not delete order-9: order not found")
	assert.Contains(t, out, "Order id is required.")
}

func TestInvalidOptionAndEOF(t *testing.T) {
	out := runScript(t, "42")
	assert.Contains(t, out, "Invalid option. Please choose 1 to 7.")
	assert.NotContains(t, out, "Goodbye!")
}
