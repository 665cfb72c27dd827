package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ecoshop/storefront/internal/handlers"
	"github.com/ecoshop/storefront/internal/platform/config"
	"github.com/ecoshop/storefront/internal/platform/idempotency"
	"github.com/ecoshop/storefront/internal/platform/metrics"
	"github.com/ecoshop/storefront/internal/platform/observability"
	"github.com/ecoshop/storefront/internal/services"
	"github.com/ecoshop/storefront/internal/sources"
)

const (
	queryCacheEntries  = 256
	refreshLimit       = 6
	refreshLimitWindow = time.Minute
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			fmt.Fprintf(os.Stderr, "invalid configuration fields: %s\n", strings.Join(invalid.Fields(), ", "))
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	registry := metrics.NewRegistry()

	baseline, err := sources.NewLocal()
	if err != nil {
		logger.Fatal("failed to load bundled catalog", zap.Error(err))
	}

	sourceLogger := sources.Logger(observability.ServiceLogger(logger.Named("sources")))
	var remotes []sources.Source
	if cfg.Sources.DisableRemote {
		logger.Info("remote catalog sources disabled")
	} else {
		remotes = append(remotes,
			sources.NewDummyJSON(cfg.Sources.DummyBaseURL,
				sources.WithTimeout(cfg.Sources.Timeout),
				sources.WithLogger(sourceLogger),
			),
			sources.NewFakeStore(cfg.Sources.FakeStoreBaseURL,
				sources.WithTimeout(cfg.Sources.Timeout),
				sources.WithLogger(sourceLogger),
			),
		)
	}
	remotes = append(remotes, sources.NewSupplementary(ctx, sourceLogger))

	catalog, err := services.NewCatalogStore(ctx, services.CatalogStoreDeps{
		Baseline:        baseline,
		Sources:         remotes,
		FailureCooldown: cfg.Sources.FailureCooldown,
		Clock:           time.Now,
		Logger:          observability.ServiceLogger(logger.Named("catalog")),
		OnLoad:          registry.ObserveCatalogLoad,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog store", zap.Error(err))
	}

	carts := services.NewCartRegistry(services.CartRegistryDeps{
		IdleTTL: cfg.Session.IdleTTL,
		Clock:   time.Now,
	})

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		TaxRate:         cfg.Checkout.TaxRate,
		ExpressShipping: cfg.Checkout.ExpressShipping,
		Currency:        cfg.Checkout.Currency,
		Clock:           time.Now,
		Logger:          observability.ServiceLogger(logger.Named("checkout")),
		OnOrder:         registry.ObserveOrder,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	cookie := handlers.SessionCookie{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.SecureCookie,
		MaxAge: cfg.Session.IdleTTL,
	}

	catalogHandlers := handlers.NewCatalogHandlers(catalog,
		handlers.WithRefreshLimit(refreshLimit, refreshLimitWindow, time.Now),
	)
	productHandlers := handlers.NewProductHandlers(catalog, baseline.Categories(), services.NewQueryCache(queryCacheEntries))
	cartHandlers := handlers.NewCartHandlers(catalog, carts, cookie, cfg.Checkout.Currency)
	orderReplays := idempotency.NewMemoryStore()
	checkoutHandlers := handlers.NewCheckoutHandlers(checkout, carts, cookie,
		handlers.WithOrderMiddleware(idempotency.Middleware(orderReplays,
			idempotency.WithTTL(cfg.Session.IdleTTL),
			idempotency.WithLogger(observability.ServiceLogger(logger.Named("idempotency"))),
		)),
	)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(cfg, startedAt)),
		handlers.WithReadinessCheck("catalog", func(context.Context) error {
			if catalog.BaselineCount() == 0 {
				return errors.New("no products")
			}
			return nil
		}),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware(),
		observability.InjectLoggerMiddleware(logger.Named("http")),
		handlers.SessionMiddleware(cookie),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(registry.ObserveRequest),
	}

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithAllowedOrigins(cfg.Server.AllowedOrigins...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithCatalogRoutes(catalogHandlers.Routes))
	opts = append(opts, handlers.WithProductRoutes(productHandlers.Routes))
	opts = append(opts, handlers.WithCartRoutes(cartHandlers.Routes))
	opts = append(opts, handlers.WithCheckoutRoutes(checkoutHandlers.Routes))
	if cfg.Observability.MetricsEnabled {
		opts = append(opts, handlers.WithMetricsHandler(registry.Handler()))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var sweepWG sync.WaitGroup
	if cfg.Session.SweepInterval > 0 {
		sweepWG.Add(1)
		go func() {
			defer sweepWG.Done()
			runSweeper(sweepCtx, cfg.Session.SweepInterval, carts, orderReplays, registry, logger.Named("sweeper"))
		}()
	}

	shutdown, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("ecoshop storefront listening",
			zap.String("environment", cfg.Environment),
			zap.Int("remoteSources", len(remotes)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown.Done()
	logger.Info("shutdown signal received; draining requests")

	sweepCancel()
	sweepWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// runSweeper evicts idle session carts and expired order replays until ctx is cancelled.
func runSweeper(ctx context.Context, interval time.Duration, carts *services.CartRegistry, replays idempotency.Store, registry *metrics.Registry, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			evicted, active := carts.Sweep()
			registry.ObserveCarts(active, evicted)
			if evicted > 0 {
				logger.Info("evicted idle carts", zap.Int("evicted", evicted), zap.Int("active", active))
			}
			removed, err := replays.CleanupExpired(ctx, time.Now())
			if err != nil {
				logger.Warn("order replay cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("removed expired order replays", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

func buildInfoFromEnv(cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("STOREFRONT_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("STOREFRONT_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}
