package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-cart/internal/domain/cart"
	"github.com/xenking/kart-cart/internal/domain/coupon"
	"github.com/xenking/kart-cart/internal/events"
	"github.com/xenking/kart-cart/internal/handler"
	"github.com/xenking/kart-cart/internal/storage/postgres"
	"github.com/xenking/kart-cart/pkg/health"
	"github.com/xenking/kart-cart/pkg/httpmiddleware"
)

const serviceName = "cart-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	metrics, err := cart.NewMetrics(m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create cart metrics")
	}
	opts := []cart.Option{cart.WithMetrics(metrics)}

	if cfg.Kafka.Enabled() {
		publisher := events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		opts = append(opts, cart.WithPublisher(publisher))
		healthSvc.Add(health.Readiness, "kafka", 5*time.Second, health.KafkaCheck(cfg.Kafka.Brokers))
		lg.Info("Publishing cart events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	cartService := cart.NewService(
		cartRepo,
		productRepo,
		couponRepo,
		coupon.NewRepoValidator(couponRepo),
		opts...,
	)

	h := handler.New(handler.Config{ImageBaseURL: cfg.ImageBaseURL}, cartService)
	api := h.Routes(
		httpmiddleware.Authenticate(apikeyRepo, []byte(cfg.APIKeyPepper)),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", httpmiddleware.Wrap(api,
		httpmiddleware.Instrument(serviceName, m),
		httpmiddleware.LogRequests(),
	))

	server := &http.Server{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       90 * time.Second,
		MaxHeaderBytes:    64 << 10,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.APIKeyHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
		),
	}

	return serve(ctx, lg, server, healthSvc, cfg.Graceful)
}

// serve runs server until ctx is done, then flips readiness off, waits for
// load balancers to notice and drains in-flight requests.
func serve(ctx context.Context, lg *zap.Logger, server *http.Server, hs *health.Health, cfg GracefulConfig) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.SetReady(false)
		defer hs.Stop()
		if ctx.Err() != nil {
			lg.Info("Draining", zap.Duration("readiness_delay", cfg.ReadinessDelay))
			time.Sleep(cfg.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		lg.Info("Server stopped")
		return nil
	})
	return g.Wait()
}
