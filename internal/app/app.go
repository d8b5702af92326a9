package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/domain/promo"
	"github.com/xenking/storefront-pricing/internal/events"
	"github.com/xenking/storefront-pricing/internal/handler"
	"github.com/xenking/storefront-pricing/internal/notify/kafka"
	"github.com/xenking/storefront-pricing/internal/storage/postgres"
	"github.com/xenking/storefront-pricing/internal/storage/redis"
	"github.com/xenking/storefront-pricing/pkg/health"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Check{Name: "postgres", Kind: health.Readiness, Timeout: 5 * time.Second, Func: health.PostgresCheck(pool)})
	healthSvc.Add(health.Check{Name: "goroutines", Kind: health.Liveness, Timeout: time.Second, Func: health.GoroutineCountCheck(10000)})

	// Carts are read on every request, so they sit behind the cache when one
	// is configured.
	var carts cart.Store = postgres.NewCartRepository(pool)
	promoLimiter := httpmiddleware.Limiter(httpmiddleware.NewMemoryLimiter(cfg.PromoLimit.Max, cfg.PromoLimit.Window))
	if cfg.Redis.Addr != "" {
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()

		carts = redis.NewCartCache(carts, client, cfg.Redis.CartTTL)
		promoLimiter = httpmiddleware.NewRedisLimiter(client, "ratelimit:promo:", cfg.PromoLimit.Max, cfg.PromoLimit.Window)
		healthSvc.Add(health.Check{Name: "redis", Kind: health.Readiness, Func: health.RedisCheck(client)})
	}

	products := postgres.NewCatalogRepository(pool)
	promos := postgres.NewPromoRepository(pool)

	engine, err := discount.NewEngine(postgres.NewDiscountRepository(pool), products,
		discount.WithMeterProvider(m.MeterProvider()),
		discount.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create discount engine")
	}

	bus := events.NewBus(lg, cfg.Events.HandlerTimeout)
	bus.Subscribe("promo_usage", promo.NewUsageRecorder(promos).HandleCompleted)
	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafka.NewPublisher(kafka.NewWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...))
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		bus.Subscribe("order_notification", pub.Notify)
		healthSvc.Add(health.Check{Name: "kafka", Kind: health.Readiness, Func: health.KafkaCheck(cfg.Kafka.Brokers...)})
	}

	cartSvc := cart.NewService(cart.Config{Currency: cfg.Currency}, carts, products, engine)
	promoSvc := promo.NewService(promos, carts)
	finalizer := order.NewFinalizer(carts, products, postgres.NewOrderRepository(pool), bus, nil)
	authn := auth.NewAuthenticator(postgres.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper))

	api := handler.NewHandler(cartSvc, promoSvc, finalizer).Router(handler.Config{
		Auth: authn,
		PromoLimit: httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:     cfg.PromoLimit.Max,
			Window:  cfg.PromoLimit.Window,
			Limiter: promoLimiter,
		}),
	})
	api.Get("/livez", healthSvc.LiveEndpoint)
	api.Get("/readyz", healthSvc.ReadyEndpoint)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	apiLimiter := httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	go apiLimiter.Run(ctx)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(api,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type", handler.HeaderAPIKey, httpmiddleware.HeaderRequestID},
				MaxAge:       86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				Limiter: apiLimiter,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", handler.RoutePattern, m.MeterProvider(), m.TracerProvider()),
			httpmiddleware.LogRequests(handler.RoutePattern),
		),
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		// Completed orders still owe their usage records and notifications.
		if err := bus.Close(shutdownCtx); err != nil {
			lg.Error("Event handlers did not finish", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
