// Package app wires the checkout service together and runs the HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/tianguis/checkout/internal/client/accounts"
	"github.com/tianguis/checkout/internal/client/couponapi"
	"github.com/tianguis/checkout/internal/client/payment"
	"github.com/tianguis/checkout/internal/domain/checkout"
	"github.com/tianguis/checkout/internal/domain/identity"
	"github.com/tianguis/checkout/internal/handler"
	"github.com/tianguis/checkout/internal/notify"
	"github.com/tianguis/checkout/internal/repository"
	"github.com/tianguis/checkout/pkg/health"
	"github.com/tianguis/checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if cfg.CouponAPIURL != "" {
		healthSvc.AddReadinessCheck("coupon-api", 5*time.Second,
			health.HTTPDependencyCheck(nil, cfg.CouponAPIURL+"/healthz"))
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	vendorRepo := repository.NewVendorRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)

	// Outbound clients.
	couponClient := couponapi.New(cfg.CouponAPIURL)
	accountsClient := accounts.New(cfg.AccountsAPIURL)
	paymentClient := payment.New(cfg.PaymentAPIURL, cfg.PaymentAPIToken)

	var notifier checkout.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		broker := cfg.Kafka.Brokers[0]
		healthSvc.AddReadinessCheck("kafka", 5*time.Second, func(ctx context.Context) error {
			conn, err := kafka.DialContext(ctx, "tcp", broker)
			if err != nil {
				return errors.Wrap(err, "dial broker")
			}
			return conn.Close()
		})

		kn := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kn.Close(); err != nil {
				lg.Warn("Closing kafka writer", zap.Error(err))
			}
		}()
		notifier = kn
	} else {
		lg.Info("No kafka brokers configured, vendor notifications disabled")
	}

	// Domain services.
	resolver := identity.NewResolver(accountsClient)
	composer := checkout.NewComposer(
		vendorRepo, couponClient, resolver, accountsClient,
		orderRepo, paymentClient, notifier,
	)

	// Mux: health endpoints + API routes on one server.
	mux := chi.NewRouter()
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.New(composer, vendorRepo).Routes(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(mux, "checkout",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "Idempotency-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
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
