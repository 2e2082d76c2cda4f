// Package backend is the storefront's client for the pharmacy backend's
// order endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/metrics"
	"github.com/fjod/go_pharmacy/pkg/circuitbreaker"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	settings := circuitbreaker.DefaultSettings("pharmacy-backend")
	settings.IsSuccessful = func(err error) bool {
		return err == nil || isRejection(err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb:      circuitbreaker.New(settings, log),
		metrics: m,
	}
}

// CreateOrder posts the order and returns it as the backend stored it.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	var dto OrderDTO
	if err := c.do(ctx, "create order", http.MethodPost, "/orders/add", req, &dto); err != nil {
		return nil, err
	}
	order := dto.ToDomain()
	return &order, nil
}

func (c *Client) Order(ctx context.Context, id int64) (*domain.Order, error) {
	var dto OrderDTO
	path := "/orders/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, "get order", http.MethodGet, path, nil, &dto); err != nil {
		return nil, err
	}
	order := dto.ToDomain()
	return &order, nil
}

// OrdersByEmail lists a customer's orders. Unknown emails yield an empty list.
func (c *Client) OrdersByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	var dtos []OrderDTO
	path := "/orders/user/" + url.PathEscape(email)
	if err := c.do(ctx, "list user orders", http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}
	return ordersToDomain(dtos), nil
}

func (c *Client) AllOrders(ctx context.Context) ([]domain.Order, error) {
	var dtos []OrderDTO
	if err := c.do(ctx, "list orders", http.MethodGet, "/orders/all", nil, &dtos); err != nil {
		return nil, err
	}
	return ordersToDomain(dtos), nil
}

// Transition sends the status command as is. The backend owns the
// transition table and answers 400 or 404 when the command does not apply.
func (c *Client) Transition(ctx context.Context, cmd domain.Command, orderID int64) error {
	path := fmt.Sprintf("/orders/%s/%d", cmd, orderID)
	return c.do(ctx, string(cmd)+" order", http.MethodPut, path, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	started := time.Now()
	_, err := circuitbreaker.Execute(c.cb, func() (struct{}, error) {
		return struct{}{}, c.roundTrip(ctx, op, method, path, body, out)
	})
	c.metrics.BackendRequest(op, statusLabel(err), started)

	if circuitbreaker.IsOpen(err) {
		return &TransportError{Op: op, Detail: "backend temporarily unavailable", Err: err}
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Detail: "encode request", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Detail: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetail))
		return &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Detail:     extractDetail(resp.StatusCode, raw),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Detail: "malformed response", Err: err}
	}
	return nil
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if te, ok := err.(*TransportError); ok && te.StatusCode != 0 {
		return strconv.Itoa(te.StatusCode)
	}
	return "error"
}
