package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// Operation names double as metric labels.
const (
	OpHealth                = "health"
	OpListProducts          = "list_products"
	OpCreateProduct         = "create_product"
	OpUpdateProduct         = "update_product"
	OpDeleteProduct         = "delete_product"
	OpCreateOrder           = "create_order"
	OpCreateCheckoutSession = "create_checkout_session"
)

// failureMessages are the static messages surfaced for each operation.
var failureMessages = map[string]string{
	OpHealth:                "backend health check failed",
	OpListProducts:          "failed to fetch products",
	OpCreateProduct:         "failed to create product",
	OpUpdateProduct:         "failed to update product",
	OpDeleteProduct:         "failed to delete product",
	OpCreateOrder:           "failed to create order",
	OpCreateCheckoutSession: "failed to create checkout session",
}

// maxDetailBytes bounds how much of a failed response body is kept as error detail.
const maxDetailBytes = 4 << 10

// Options configures a Client. BaseURL is required; everything else is optional.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *metrics.BackendMetrics
	Logger     *logger.Logger
	// Propagator injects the caller's trace context into backend requests.
	// Nil uses the global otel propagator.
	Propagator propagation.TextMapPropagator
}

// Client is a stateless typed wrapper over the storefront backend REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	metrics *metrics.BackendMetrics
	logg    *logger.Logger
}

// RequestFailure is attached as details to every REQUEST_FAILED error.
type RequestFailure struct {
	Operation string `json:"operation"`
	Status    int    `json:"status,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// New builds a Client bound to opts.BaseURL.
func New(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, fmt.Errorf("backend base url required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing backend base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend base url must be http(s), got %q", raw)
	}

	httpClient := &http.Client{Timeout: opts.Timeout}
	if opts.HTTPClient != nil {
		clone := *opts.HTTPClient
		httpClient = &clone
	}
	transport := httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	var traceOpts []otelhttp.Option
	if opts.Propagator != nil {
		traceOpts = append(traceOpts, otelhttp.WithPropagators(opts.Propagator))
	}
	httpClient.Transport = otelhttp.NewTransport(transport, traceOpts...)
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		metrics: opts.Metrics,
		logg:    logg,
	}, nil
}

// BaseURL reports the origin this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Health calls the backend liveness probe.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.do(ctx, OpHealth, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping adapts Health to the readiness Pinger surface.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	if err := c.do(ctx, OpListProducts, http.MethodGet, "/products", nil, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Product{}
	}
	return out, nil
}

func (c *Client) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	var out Product
	if err := c.do(ctx, OpCreateProduct, http.MethodPost, "/products", nil, input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (*Product, error) {
	var out Product
	if err := c.do(ctx, OpUpdateProduct, http.MethodPut, productPath(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) (*DeleteResult, error) {
	var out DeleteResult
	if err := c.do(ctx, OpDeleteProduct, http.MethodDelete, productPath(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder submits the line items and returns the order the backend recorded.
func (c *Client) CreateOrder(ctx context.Context, items []OrderItemInput) (*Order, error) {
	if items == nil {
		items = []OrderItemInput{}
	}
	var out Order
	if err := c.do(ctx, OpCreateOrder, http.MethodPost, "/orders", nil, createOrderRequest{Items: items}, &out); err != nil {
		return nil, err
	}
	// An order without an id cannot be paid for; checkout would ask for order_id=0.
	if out.ID == 0 {
		return nil, requestFailed(OpCreateOrder, http.StatusOK, "malformed response body", nil)
	}
	return &out, nil
}

// CreateCheckoutSession asks the backend for a payment redirect keyed by orderID.
func (c *Client) CreateCheckoutSession(ctx context.Context, orderID int64) (*CheckoutSession, error) {
	query := url.Values{"order_id": []string{strconv.FormatInt(orderID, 10)}}
	var out CheckoutSession
	if err := c.do(ctx, OpCreateCheckoutSession, http.MethodPost, "/checkout/session", query, nil, &out); err != nil {
		return nil, err
	}
	if out.CheckoutURL == "" {
		return nil, requestFailed(OpCreateCheckoutSession, http.StatusOK, "response missing checkout_url", nil)
	}
	return &out, nil
}

func productPath(id int64) string {
	return "/products/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	target := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode "+op+" request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+op+" request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"backend_op": op,
		"method":     method,
		"url":        target.String(),
	})

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.Observe(op, 0, time.Since(start))
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "backend.transport_error")
		return requestFailed(op, 0, "", err)
	}
	defer resp.Body.Close()
	c.metrics.Observe(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readDetail(resp.Body)
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"status": resp.StatusCode,
			"detail": detail,
		}), "backend.request_failed")
		return requestFailed(op, resp.StatusCode, detail, nil)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return requestFailed(op, resp.StatusCode, "malformed response body", err)
	}
	c.logg.Debug(c.logg.WithField(ctx, "status", resp.StatusCode), "backend.request_ok")
	return nil
}

func requestFailed(op string, status int, detail string, cause error) *pkgerrors.Error {
	msg, ok := failureMessages[op]
	if !ok {
		msg = "backend request failed"
	}
	return pkgerrors.Wrap(pkgerrors.CodeRequestFailed, cause, msg).WithDetails(RequestFailure{
		Operation: op,
		Status:    status,
		Detail:    detail,
	})
}

// readDetail extracts a FastAPI-style {"detail": ...} message, falling back to the raw body.
func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxDetailBytes))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &envelope) == nil && len(envelope.Detail) > 0 {
		var text string
		if json.Unmarshal(envelope.Detail, &text) == nil {
			return text
		}
		return string(envelope.Detail)
	}
	return strings.TrimSpace(string(raw))
}

// FailureOf returns the backend failure details carried by err, if any.
func FailureOf(err error) (RequestFailure, bool) {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeRequestFailed {
		return RequestFailure{}, false
	}
	failure, ok := typed.Details().(RequestFailure)
	return failure, ok
}
