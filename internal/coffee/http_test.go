package coffee_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/querysync/internal/coffee"
)

func newClient(t *testing.T, h http.Handler, opts coffee.ClientOptions) *coffee.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	c, err := coffee.NewHTTPClient(opts)
	require.NoError(t, err)
	return c
}

func TestGetMenu(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/menu", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		_, _ = io.WriteString(w, `[{"name":"Latte","description":"milk","price":4.5}]`)
	})
	c := newClient(t, mux, coffee.ClientOptions{})

	items, err := c.GetMenu(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Latte", items[0].Name)
	assert.Equal(t, "4.50", coffee.FormatPrice(items[0].Price))
}

func TestCreateOrderSendsBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in struct {
			MenuItemName string `json:"menuItemName"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Latte", in.MenuItemName)
		_, _ = io.WriteString(w, `{"orderId":"abc123"}`)
	})
	c := newClient(t, mux, coffee.ClientOptions{})

	res, err := c.CreateOrder(context.Background(), "Latte")
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.OrderID)
}

func TestUpdateAndDeleteOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"status":"BREWING"}`, string(body))
		_, _ = io.WriteString(w, `{"orderId":"`+r.PathValue("id")+`","menuItemName":"Latte","status":"BREWING"}`)
	})
	mux.HandleFunc("DELETE /api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	c := newClient(t, mux, coffee.ClientOptions{})

	o, err := c.UpdateOrderStatus(context.Background(), "order-1", coffee.StatusBrewing)
	require.NoError(t, err)
	assert.Equal(t, "order-1", o.OrderID)
	assert.Equal(t, coffee.StatusBrewing, o.Status)

	d, err := c.DeleteOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, d.Success)

	_, err = c.DeleteOrder(context.Background(), "")
	assert.ErrorIs(t, err, coffee.ErrValidation)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
		msg    string
	}{
		{http.StatusBadRequest, `{"error":"menuItemName is required"}`, coffee.ErrValidation, "menuItemName is required"},
		{http.StatusNotFound, `{"error":"order order-9 not found"}`, coffee.ErrNotFound, "order order-9 not found"},
		{http.StatusInternalServerError, "failed to order drink\n", coffee.ErrServer, "failed to order drink"},
		{http.StatusBadGateway, "", coffee.ErrServer, "502 Bad Gateway"},
	}
	for _, tc := range cases {
		tc := tc
		h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, tc.body)
		})
		c := newClient(t, h, coffee.ClientOptions{})

		_, err := c.CreateOrder(context.Background(), "")
		require.Error(t, err)
		assert.ErrorIs(t, err, tc.want)

		var ce *coffee.Error
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, tc.msg, ce.Message)
		assert.Equal(t, tc.status, ce.Status)
	}
}

func TestNetworkErrorIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := coffee.NewHTTPClient(coffee.ClientOptions{BaseURL: url})
	require.NoError(t, err)
	_, err = c.ListOrders(context.Background())
	assert.ErrorIs(t, err, coffee.ErrNetwork)
	assert.Equal(t, coffee.KindNetwork, coffee.KindOf(err))
}

// dropFirst hijacks and closes the first n connections without a response.
func dropFirst(n int32, next http.Handler) (http.Handler, *atomic.Int32) {
	var calls atomic.Int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= n {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		next.ServeHTTP(w, r)
	}), &calls
}

func TestGetRetriesNetworkErrors(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	h, calls := dropFirst(2, ok)
	c := newClient(t, h, coffee.ClientOptions{RetryMaxTries: 3, RetryInitialInterval: time.Millisecond})

	orders, err := c.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWritesAreNotRetried(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"orderId":"order-1"}`)
	})
	h, calls := dropFirst(1, ok)
	c := newClient(t, h, coffee.ClientOptions{RetryMaxTries: 3, RetryInitialInterval: time.Millisecond})

	_, err := c.CreateOrder(context.Background(), "Latte")
	assert.ErrorIs(t, err, coffee.ErrNetwork)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c := newClient(t, h, coffee.ClientOptions{RetryMaxTries: 5, RetryInitialInterval: time.Millisecond})

	_, err := c.GetMenu(context.Background())
	assert.ErrorIs(t, err, coffee.ErrServer)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	_, err := coffee.NewHTTPClient(coffee.ClientOptions{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}
