package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/api"
	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/backend"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/cart/storage"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/redis"
)

// cartStorage is what the cart service writes to and the readiness probe pings.
type cartStorage interface {
	cart.Storage
	controllers.Pinger
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront-api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]any{"env": cfg.App.Env},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// W3C trace context and baggage from storefront callers are forwarded to the backend.
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	otel.SetTextMapPropagator(propagator)

	client, err := backend.New(backend.Options{
		BaseURL:    cfg.Backend.BaseURL,
		Timeout:    cfg.Backend.Timeout,
		Metrics:    metrics.NewBackendMetrics(reg),
		Logger:     logg,
		Propagator: propagator,
	})
	if err != nil {
		return fmt.Errorf("building backend client: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrapping redis: %w", err)
		}
		closers = append(closers, redisClient)
	}

	slots, err := openCartStorage(ctx, cfg, logg, redisClient, &closers)
	if err != nil {
		return err
	}

	carts, err := cart.NewService(slots, cfg.Cart.SlotName, logg, metrics.NewCartMetrics(reg))
	if err != nil {
		return fmt.Errorf("building cart service: %w", err)
	}

	deps := routes.Deps{
		Backend: client,
		Carts:   carts,
		Ready: map[string]controllers.Pinger{
			"backend":      client,
			"cart_storage": slots,
		},
		Gatherer:   reg,
		Propagator: propagator,
	}
	if redisClient != nil {
		deps.Ready["redis"] = redisClient
		if cfg.FeatureFlags.CheckoutIdempotent {
			deps.Idempotency = redisClient
		}
	}

	srv := api.NewServer(cfg, routes.NewRouter(cfg, logg, deps))
	logg.Info(logg.WithFields(ctx, map[string]any{
		"addr":         srv.Addr,
		"backend":      client.BaseURL(),
		"cart_storage": cfg.Cart.Storage,
		"idempotency":  deps.Idempotency != nil,
	}), "starting api server")

	return api.Serve(ctx, srv, logg)
}

func openCartStorage(ctx context.Context, cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, closers *[]io.Closer) (cartStorage, error) {
	switch cfg.Cart.Storage {
	case config.CartStorageRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis cart storage requires a redis endpoint")
		}
		return storage.NewRedis(redisClient, cfg.Cart.CookieTTL)

	case config.CartStorageSQL:
		dbClient, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, fmt.Errorf("bootstrapping database: %w", err)
		}
		*closers = append(*closers, dbClient)
		if err := migrate.MaybeRun(ctx, cfg, logg, dbClient); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return storage.NewSQL(dbClient)

	default:
		return storage.NewMemory(), nil
	}
}
