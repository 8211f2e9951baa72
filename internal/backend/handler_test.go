package backend_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/querysync/internal/backend"
	"github.com/unkn0wn-root/querysync/internal/coffee"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(backend.NewHandler(newService(t), nil))
	t.Cleanup(srv.Close)
	return srv
}

func newAPI(t *testing.T) coffee.API {
	t.Helper()
	srv := newServer(t)
	c, err := coffee.NewHTTPClient(coffee.ClientOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestHandlerRoundTrip(t *testing.T) {
	ctx := context.Background()
	api := newAPI(t)

	menu, err := api.GetMenu(ctx)
	require.NoError(t, err)
	assert.Len(t, menu, 4)

	orders, err := api.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	res, err := api.CreateOrder(ctx, "Latte")
	require.NoError(t, err)
	assert.Equal(t, "order-1", res.OrderID)

	o, err := api.UpdateOrderStatus(ctx, res.OrderID, coffee.StatusBrewing)
	require.NoError(t, err)
	assert.Equal(t, coffee.StatusBrewing, o.Status)

	o, err = api.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, coffee.Order{OrderID: "order-1", MenuItemName: "Latte", Status: coffee.StatusBrewing}, o)

	d, err := api.DeleteOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.True(t, d.Success)

	_, err = api.GetOrder(ctx, res.OrderID)
	assert.ErrorIs(t, err, coffee.ErrNotFound)
}

func TestHandlerValidationErrors(t *testing.T) {
	ctx := context.Background()
	api := newAPI(t)

	_, err := api.CreateOrder(ctx, "Mocha")
	require.ErrorIs(t, err, coffee.ErrValidation)
	assert.Contains(t, err.Error(), "not on the menu")

	_, err = api.CreateOrder(ctx, "")
	assert.ErrorIs(t, err, coffee.ErrValidation)
}

func TestHandlerRawRequests(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"malformed json", http.MethodPost, "/api/orders", `{`, http.StatusBadRequest, `"error"`},
		{"status by code", http.MethodPatch, "/api/orders/order-1", `{"status":3}`, http.StatusNotFound, `order not found`},
		{"bad status name", http.MethodPatch, "/api/orders/order-1", `{"status":"BOILING"}`, http.StatusBadRequest, `"error"`},
		{"missing status", http.MethodPatch, "/api/orders/order-1", `{}`, http.StatusBadRequest, `Status is required`},
		{"wrong method", http.MethodPut, "/api/menu", ``, http.StatusMethodNotAllowed, ``},
		{"empty list is an array", http.MethodGet, "/api/orders", ``, http.StatusOK, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)

			assert.Equal(t, tt.status, resp.StatusCode, string(b))
			assert.Contains(t, string(b), tt.want)
		})
	}
}

func TestHandlerCORS(t *testing.T) {
	srv := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/orders/order-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")

	resp, err = http.Get(srv.URL + "/api/menu")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
}
