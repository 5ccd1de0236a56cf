package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"

	"github.com/angelmondragon/storefront/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront/api/controllers/cart"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/backend"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/redis"
)

// Backend is everything the storefront asks of the backend API.
type Backend interface {
	controllers.ProductCatalog
	cart.CheckoutStarter
}

// Deps groups the collaborators the router wires into handlers.
type Deps struct {
	Backend     Backend
	Carts       *cart.Service
	Idempotency redis.IdempotencyStore
	// Ready lists the dependencies pinged by /health/ready.
	Ready    map[string]controllers.Pinger
	Gatherer prometheus.Gatherer
	// Propagator extracts inbound trace context; nil uses the global otel propagator.
	Propagator propagation.TextMapPropagator
}

var _ Backend = (*backend.Client)(nil)

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	var traceOpts []otelhttp.Option
	if deps.Propagator != nil {
		traceOpts = append(traceOpts, otelhttp.WithPropagators(deps.Propagator))
	}

	r := chi.NewRouter()
	r.Use(
		otelhttp.NewMiddleware("storefront", traceOpts...),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Cart.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(deps.Backend, logg))
			r.Post("/", controllers.CreateProduct(deps.Backend, logg))
			r.Put("/{id}", controllers.UpdateProduct(deps.Backend, logg))
			r.Delete("/{id}", controllers.DeleteProduct(deps.Backend, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.Profile(middleware.ProfileCookie{
				Name:   cfg.Cart.CookieName,
				TTL:    cfg.Cart.CookieTTL,
				Secure: cfg.App.IsProd(),
			}, logg))
			r.Use(middleware.Idempotency(deps.Idempotency, logg))

			r.Get("/", cartcontrollers.CartFetch(deps.Carts, logg))
			r.Delete("/", cartcontrollers.CartClear(deps.Carts, logg))
			r.Post("/items", cartcontrollers.CartAddItem(deps.Carts, deps.Backend, logg))
			r.Patch("/items/{productID}", cartcontrollers.CartUpdateItem(deps.Carts, logg))
			r.Delete("/items/{productID}", cartcontrollers.CartRemoveItem(deps.Carts, logg))
			r.Post("/orders", cartcontrollers.CartPlaceOrder(deps.Carts, deps.Backend, logg))
			r.Post("/checkout", cartcontrollers.CartCheckout(deps.Carts, deps.Backend, logg))
		})
	})

	return r
}
