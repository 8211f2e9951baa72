package coffee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/querysync"
)

const (
	defaultBaseURL  = "http://localhost:9000"
	defaultTimeout  = 5 * time.Second
	maxErrorBody    = 64 << 10
	requestIDHeader = "X-Request-Id"
)

// ClientOptions configure an HTTPClient. Zero values take defaults.
type ClientOptions struct {
	BaseURL string        // default http://localhost:9000
	Timeout time.Duration // per request; default 5s
	// RetryMaxTries bounds attempts of GET requests that fail at the network
	// level. 0 or 1 disables retries. Writes are never retried.
	RetryMaxTries uint
	// RetryInitialInterval is the first backoff delay; default 200ms.
	RetryInitialInterval time.Duration
	HTTPClient           *http.Client
	Logger               querysync.Logger
}

// HTTPClient is the REST/JSON implementation of API.
type HTTPClient struct {
	base      *url.URL
	hc        *http.Client
	log       querysync.Logger
	maxTries  uint
	initRetry time.Duration
}

var _ API = (*HTTPClient)(nil)

func NewHTTPClient(opts ClientOptions) (*HTTPClient, error) {
	const op = "coffee.NewHTTPClient"

	raw := opts.BaseURL
	if raw == "" {
		raw = defaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: parse base url: %w", op, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%s: base url %q must be http or https", op, raw)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &HTTPClient{
		base:      base,
		hc:        hc,
		log:       opts.Logger,
		maxTries:  opts.RetryMaxTries,
		initRetry: opts.RetryInitialInterval,
	}
	if c.log == nil {
		c.log = querysync.NopLogger{}
	}
	if c.maxTries == 0 {
		c.maxTries = 1
	}
	if c.initRetry <= 0 {
		c.initRetry = 200 * time.Millisecond
	}
	return c, nil
}

func (c *HTTPClient) GetMenu(ctx context.Context) ([]MenuItem, error) {
	var items []MenuItem
	if err := c.get(ctx, "coffee.GetMenu", "/api/menu", &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *HTTPClient) ListOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := c.get(ctx, "coffee.ListOrders", "/api/orders", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *HTTPClient) GetOrder(ctx context.Context, id string) (Order, error) {
	const op = "coffee.GetOrder"
	var o Order
	if id == "" {
		return o, Validation(op, "order id is required")
	}
	err := c.get(ctx, op, "/api/orders/"+url.PathEscape(id), &o)
	return o, err
}

func (c *HTTPClient) CreateOrder(ctx context.Context, menuItemName string) (CreateOrderResult, error) {
	var out CreateOrderResult
	in := struct {
		MenuItemName string `json:"menuItemName"`
	}{menuItemName}
	err := c.do(ctx, "coffee.CreateOrder", http.MethodPost, "/api/orders", in, &out)
	return out, err
}

func (c *HTTPClient) UpdateOrderStatus(ctx context.Context, id string, status Status) (Order, error) {
	const op = "coffee.UpdateOrderStatus"
	var o Order
	if id == "" {
		return o, Validation(op, "order id is required")
	}
	in := struct {
		Status Status `json:"status"`
	}{status}
	err := c.do(ctx, op, http.MethodPatch, "/api/orders/"+url.PathEscape(id), in, &o)
	return o, err
}

func (c *HTTPClient) DeleteOrder(ctx context.Context, id string) (DeleteResult, error) {
	const op = "coffee.DeleteOrder"
	var out DeleteResult
	if id == "" {
		return out, Validation(op, "order id is required")
	}
	err := c.do(ctx, op, http.MethodDelete, "/api/orders/"+url.PathEscape(id), nil, &out)
	return out, err
}

// get retries network failures with exponential backoff. Anything the server
// answered is final.
func (c *HTTPClient) get(ctx context.Context, op, path string, out any) error {
	if c.maxTries <= 1 {
		return c.do(ctx, op, http.MethodGet, path, nil, out)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initRetry

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.do(ctx, op, http.MethodGet, path, nil, out)
		if err == nil {
			return struct{}{}, nil
		}
		if !errors.Is(err, ErrNetwork) {
			return struct{}{}, backoff.Permanent(err)
		}
		c.log.Debug("retrying request", querysync.Fields{"op": op, "attempt": attempt, "err": err})
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	return err
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	fields := querysync.Fields{
		"op":         op,
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"request_id": reqID,
		"elapsed":    time.Since(start).String(),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{
			Kind:    kindForStatus(resp.StatusCode),
			Op:      op,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.Body, resp.Status),
		}
		fields["err"] = e.Message
		c.log.Warn("request failed", fields)
		return e
	}
	c.log.Debug("request done", fields)

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServer, Op: op, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

// errorMessage takes the "error" field of a JSON error body, falling back to
// the raw text, then to the status line.
func errorMessage(r io.Reader, status string) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return status
}
