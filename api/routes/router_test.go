package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/internal/backend"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/cart/storage"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/redis"
)

type fakeBackend struct {
	mu          sync.Mutex
	products    []backend.Product
	orders      []json.RawMessage
	created     []backend.ProductInput
	rejectOrder bool
	down        bool
	// failSessions fails that many /checkout/session calls with a 500.
	failSessions int
	traceparents []string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.traceparents = append(f.traceparents, r.Header.Get("traceparent"))
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/health":
		if f.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case r.URL.Path == "/products" && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(f.products)
	case r.URL.Path == "/products" && r.Method == http.MethodPost:
		var in backend.ProductInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.created = append(f.created, in)
		_ = json.NewEncoder(w).Encode(backend.Product{ID: 100, Name: in.Name, SKU: in.SKU, Currency: in.Currency})
	case r.URL.Path == "/orders":
		if f.rejectOrder {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"detail":"insufficient stock"}`))
			return
		}
		raw, _ := io.ReadAll(r.Body)
		f.orders = append(f.orders, raw)
		_, _ = w.Write([]byte(`{"id":77,"status":"pending","currency":"USD","subtotal_cents":4498,"total_cents":4498,"items":[]}`))
	case r.URL.Path == "/checkout/session":
		if f.failSessions > 0 {
			f.failSessions--
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"payment provider unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"checkout_url":"https://pay.example.com/s/` + r.URL.Query().Get("order_id") + `"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
	}
}

func (f *fakeBackend) update(fn func(*fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) snapshot() (orders []json.RawMessage, created []backend.ProductInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]json.RawMessage(nil), f.orders...), append([]backend.ProductInput(nil), f.created...)
}

type harness struct {
	server  *httptest.Server
	backend *fakeBackend
	cookie  *http.Cookie
	mr      *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fb := &fakeBackend{products: []backend.Product{
		{ID: 1, Name: "Mug", SKU: "MUG-1", PriceCents: 1999, Currency: "USD", Stock: 5},
		{ID: 2, Name: "Tee", SKU: "TEE-1", PriceCents: 500, Currency: "USD", Stock: 5},
	}}
	upstream := httptest.NewServer(fb)
	t.Cleanup(upstream.Close)

	reg := prometheus.NewRegistry()
	client, err := backend.New(backend.Options{
		BaseURL:    upstream.URL,
		HTTPClient: upstream.Client(),
		Metrics:    metrics.NewBackendMetrics(reg),
		Propagator: propagation.TraceContext{},
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	redisClient := redis.NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = redisClient.Close() })

	mem := storage.NewMemory()
	carts, err := cart.NewService(mem, "cart.v1", nil, metrics.NewCartMetrics(reg))
	require.NoError(t, err)

	cfg := &config.Config{
		App:  config.AppConfig{Env: config.AppEnvDev},
		Cart: config.CartConfig{SlotName: "cart.v1", CookieName: "sf_profile", CookieTTL: time.Hour},
	}
	router := NewRouter(cfg, logger.Nop(), Deps{
		Backend:     client,
		Carts:       carts,
		Idempotency: redisClient,
		Ready:       map[string]controllers.Pinger{"cart_storage": mem, "backend": client},
		Gatherer:    reg,
		Propagator:  propagation.TraceContext{},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &harness{server: srv, backend: fb, mr: mr}
}

func (h *harness) do(t *testing.T, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	for _, c := range resp.Cookies() {
		if c.Name == "sf_profile" {
			h.cookie = c
		}
	}
	return resp
}

func decodeData(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

type cartBody struct {
	Lines []struct {
		Product  backend.Product `json:"product"`
		Quantity int             `json:"quantity"`
	} `json:"lines"`
	ItemCount     int   `json:"item_count"`
	SubtotalCents int64 `json:"subtotal_cents"`
	Subtotal      struct {
		Display string `json:"display"`
	} `json:"subtotal"`
	LoadState string `json:"load_state"`
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dev", resp.Header.Get("X-Storefront-Env"))

	resp = h.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.backend.update(func(f *fakeBackend) { f.down = true })

	resp = h.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unavailable", body.Error.Details["backend"])
	assert.Equal(t, "ok", body.Error.Details["cart_storage"])
}

func TestProductAdmin(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var products []backend.Product
	decodeData(t, resp, &products)
	assert.Len(t, products, 2)

	resp = h.do(t, http.MethodPost, "/api/v1/products", `{"name":"Cap","sku":"CAP-1","price_cents":700,"stock":3}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_, created := h.backend.snapshot()
	require.Len(t, created, 1)
	assert.Equal(t, "USD", created[0].Currency, "currency defaults to USD")

	resp = h.do(t, http.MethodPost, "/api/v1/products", `{"sku":"CAP-2","price_cents":-1}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "is required", body.Error.Details["name"])
	assert.Equal(t, "must be at least 0", body.Error.Details["price_cents"])

	resp = h.do(t, http.MethodDelete, "/api/v1/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCartFlow(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, h.cookie, "first visit sets the profile cookie")
	var view cartBody
	decodeData(t, resp, &view)
	assert.Empty(t, view.Lines)
	assert.Equal(t, "fresh", view.LoadState)

	h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":2}`, nil)
	h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2}`, nil)
	resp = h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":3}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeData(t, resp, &view)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, 5, view.Lines[0].Quantity)
	assert.Equal(t, 6, view.ItemCount)

	resp = h.do(t, http.MethodPatch, "/api/v1/cart/items/1", `{"quantity":2}`, nil)
	decodeData(t, resp, &view)
	assert.Equal(t, int64(4498), view.SubtotalCents)
	assert.Equal(t, "44.98 USD", view.Subtotal.Display)

	resp = h.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	decodeData(t, resp, &view)
	assert.Equal(t, "restored", view.LoadState)
	assert.Equal(t, int64(1), view.Lines[0].Product.ID, "order of insertion survives reload")

	resp = h.do(t, http.MethodPatch, "/api/v1/cart/items/2", `{"quantity":0}`, nil)
	decodeData(t, resp, &view)
	require.Len(t, view.Lines, 1)

	resp = h.do(t, http.MethodDelete, "/api/v1/cart/items/99", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "removing an absent product is a no-op")

	resp = h.do(t, http.MethodDelete, "/api/v1/cart", "", nil)
	decodeData(t, resp, &view)
	assert.Empty(t, view.Lines)
}

func TestCartAddUnknownProduct(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":404,"quantity":1}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaceOrder(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/v1/cart/orders", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "empty cart is rejected locally")
	orders, _ := h.backend.snapshot()
	assert.Empty(t, orders)

	h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":2}`, nil)
	h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2,"quantity":1}`, nil)

	resp = h.do(t, http.MethodPost, "/api/v1/cart/orders", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order backend.Order
	decodeData(t, resp, &order)
	assert.Equal(t, int64(77), order.ID)

	orders, _ = h.backend.snapshot()
	require.Len(t, orders, 1)
	assert.JSONEq(t, `{"items":[{"product_id":1,"quantity":2},{"product_id":2,"quantity":1}]}`, string(orders[0]))

	resp = h.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	var view cartBody
	decodeData(t, resp, &view)
	assert.Len(t, view.Lines, 2, "placing an order keeps the cart")
}

func TestPlaceOrderRejectedByBackend(t *testing.T) {
	h := newHarness(t)
	h.backend.update(func(f *fakeBackend) { f.rejectOrder = true })
	h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":9}`, nil)

	resp := h.do(t, http.MethodPost, "/api/v1/cart/orders", "", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "REQUEST_FAILED", body.Error.Code)
	assert.Equal(t, "failed to create order", body.Error.Message)
	assert.Equal(t, float64(http.StatusConflict), body.Error.Details["status"])
	assert.Equal(t, "insufficient stock", body.Error.Details["detail"])
}

func TestOrderIdempotencyKeyReplays(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":1}`, nil)

	headers := map[string]string{"Idempotency-Key": "order-1"}
	first := h.do(t, http.MethodPost, "/api/v1/cart/orders", "", headers)
	second := h.do(t, http.MethodPost, "/api/v1/cart/orders", "", headers)

	assert.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	orders, _ := h.backend.snapshot()
	assert.Len(t, orders, 1)
	assert.NotEmpty(t, h.mr.Keys())
}

func TestCheckout(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2,"quantity":1}`, nil)

	resp := h.do(t, http.MethodPost, "/api/v1/cart/checkout", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		Order       backend.Order `json:"order"`
		CheckoutURL string        `json:"checkout_url"`
	}
	decodeData(t, resp, &out)
	assert.Equal(t, int64(77), out.Order.ID)
	assert.Equal(t, "https://pay.example.com/s/77", out.CheckoutURL)

	resp = h.do(t, http.MethodPost, "/api/v1/cart/checkout?redirect=true", "", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "https://pay.example.com/s/77", resp.Header.Get("Location"))
}

func TestCheckoutRetryAfterSessionFailureReusesOrder(t *testing.T) {
	h := newHarness(t)
	h.backend.update(func(f *fakeBackend) { f.failSessions = 1 })
	h.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2,"quantity":1}`, nil)

	headers := map[string]string{"Idempotency-Key": "checkout-1"}
	first := h.do(t, http.MethodPost, "/api/v1/cart/checkout", "", headers)
	require.Equal(t, http.StatusBadGateway, first.StatusCode)

	second := h.do(t, http.MethodPost, "/api/v1/cart/checkout", "", headers)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	var out struct {
		Order       backend.Order `json:"order"`
		CheckoutURL string        `json:"checkout_url"`
	}
	decodeData(t, second, &out)
	assert.Equal(t, int64(77), out.Order.ID)
	assert.Equal(t, "https://pay.example.com/s/77", out.CheckoutURL)

	orders, _ := h.backend.snapshot()
	assert.Len(t, orders, 1, "the retry opens a session for the first order")

	third := h.do(t, http.MethodPost, "/api/v1/cart/checkout", "", headers)
	assert.Equal(t, "true", third.Header.Get("Idempotent-Replayed"))
}

func TestTraceContextForwardedToBackend(t *testing.T) {
	h := newHarness(t)
	inbound := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	resp := h.do(t, http.MethodGet, "/api/v1/products", "", map[string]string{"traceparent": inbound})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var seen []string
	h.backend.update(func(f *fakeBackend) { seen = append(seen, f.traceparents...) })
	require.NotEmpty(t, seen)
	assert.True(t, strings.HasPrefix(seen[len(seen)-1], "00-4bf92f3577b34da6a3ce929d0e0e4736-"), seen[len(seen)-1])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/api/v1/products", "", nil)
	h.do(t, http.MethodGet, "/api/v1/cart", "", nil)

	resp := h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `storefront_backend_requests_total{operation="list_products",status="200"} 1`)
	assert.Contains(t, string(raw), `storefront_cart_loads_total{state="fresh"} 1`)
}
