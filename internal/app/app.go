package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/oolio-orders/internal/domain/order"
	"github.com/xenking/oolio-orders/internal/domain/payment"
	"github.com/xenking/oolio-orders/internal/gateway"
	"github.com/xenking/oolio-orders/internal/handler"
	"github.com/xenking/oolio-orders/internal/storage/memory"
	"github.com/xenking/oolio-orders/internal/storage/postgres"
	"github.com/xenking/oolio-orders/pkg/health"
	"github.com/xenking/oolio-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
		zap.String("gateway", cfg.Gateway.Kind),
	)

	healthSvc := health.New(lg.Named("health"))
	healthSvc.Add(health.Check{Name: "goroutines", Kind: health.Liveness, Func: health.GoroutineLimit(10000)})

	store, closeStore, err := openStore(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeStore()

	gw, err := newGateway(cfg, healthSvc)
	if err != nil {
		return err
	}

	orderCfg, err := cfg.orderConfig()
	if err != nil {
		return err
	}
	orders, err := order.NewService(store, gw, orderCfg,
		order.WithMeterProvider(m.MeterProvider()),
		order.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Charges wait for the gateway.
		WriteTimeout:   orderCfg.GatewayTimeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        newRouter(ctx, lg, m, cfg, healthSvc, handler.NewHandler(orders)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		defer healthSvc.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}

// newRouter mounts the probes and the order API. Probes skip rate limiting.
func newRouter(
	ctx context.Context,
	lg *zap.Logger,
	t httpmiddleware.Telemetry,
	cfg *Config,
	healthSvc *health.Health,
	h *handler.Handler,
) http.Handler {
	r := chi.NewRouter()
	// Route-aware middleware runs inside the router.
	r.Use(
		httpmiddleware.Instrument("orders-api", t),
		httpmiddleware.LogRequests(),
	)
	healthSvc.Routes(r)
	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}))
		h.Routes(r)
	})
	return httpmiddleware.Wrap(r,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
	)
}

func openStore(ctx context.Context, cfg *Config, healthSvc *health.Health) (order.Store, func(), error) {
	if cfg.Store == "memory" {
		return memory.NewOrderStore(), func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	healthSvc.Add(health.Check{
		Name:    "postgres",
		Kind:    health.Readiness,
		Func:    health.Ping("postgres", pool),
		Timeout: 5 * time.Second,
	})
	return postgres.NewOrderRepository(pool), pool.Close, nil
}

func newGateway(cfg *Config, healthSvc *health.Health) (payment.Gateway, error) {
	if cfg.Gateway.Kind == "stripe" {
		gw, err := gateway.NewStripe(gateway.StripeConfig{
			APIKey:        cfg.Gateway.Stripe.APIKey,
			AccountID:     cfg.Gateway.Stripe.AccountID,
			PaymentMethod: cfg.Gateway.Stripe.PaymentMethod,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create stripe gateway")
		}
		return gw, nil
	}
	sbCfg, err := cfg.sandboxConfig()
	if err != nil {
		return nil, err
	}
	sb := gateway.NewSandbox(sbCfg)
	healthSvc.Add(health.Check{Name: "gateway", Kind: health.Readiness, Func: health.Ping("sandbox gateway", sb)})
	return sb, nil
}
