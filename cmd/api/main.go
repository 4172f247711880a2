package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/voxsar/commerce-api/internal/di"
	"github.com/voxsar/commerce-api/internal/handlers"
	"github.com/voxsar/commerce-api/internal/payments"
	"github.com/voxsar/commerce-api/internal/platform/config"
	pfirestore "github.com/voxsar/commerce-api/internal/platform/firestore"
	"github.com/voxsar/commerce-api/internal/platform/idempotency"
	"github.com/voxsar/commerce-api/internal/platform/jobs"
	"github.com/voxsar/commerce-api/internal/platform/observability"
	"github.com/voxsar/commerce-api/internal/platform/secrets"
	firestorerepo "github.com/voxsar/commerce-api/internal/repositories/firestore"
	"github.com/voxsar/commerce-api/internal/services"
)

const secretRefPrefix = "secret://"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if err := resolveSecretRefs(ctx, logger, &cfg); err != nil {
		logger.Fatal("failed to resolve secret references", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestorerepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to build repository registry", zap.Error(err))
	}

	gateway, err := buildPaymentManager(cfg)
	if err != nil {
		logger.Fatal("failed to build payment manager", zap.Error(err))
	}

	var events services.EventPublisher
	if cfg.Events.Topic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			_ = pubsubClient.Close()
		}()

		eventTopic, err := jobs.NewTopic(pubsubClient.Topic(cfg.Events.Topic))
		if err != nil {
			logger.Fatal("failed to wrap pubsub topic", zap.Error(err))
		}
		defer eventTopic.Stop()

		events, err = jobs.NewPubSubEventPublisher(eventTopic)
		if err != nil {
			logger.Fatal("failed to build event publisher", zap.Error(err))
		}
	} else {
		logger.Info("event topic not configured; domain events disabled")
	}

	container, err := di.NewContainer(cfg, di.ContainerDeps{
		Registry: registry,
		Gateway:  gateway,
		Events:   events,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	checkoutIdempotency := idempotency.Middleware(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go runIdempotencyCleanup(cleanupCtx, logger.Named("idempotency"), idempotencyStore, cfg.Idempotency)

	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(os.Getenv("API_BUILD_VERSION"), os.Getenv("API_BUILD_REVISION")),
		handlers.WithHealthReadiness(registry.Health().Ping),
	)

	cartHandlers := handlers.NewCartHandlers(container.Services.Cart, container.Services.Checkout)
	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithCartRoutes(cartHandlers.Routes(checkoutIdempotency)),
		handlers.WithOrderRoutes(orderHandlers.Routes()),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.Time("started_at", startedAt),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	stopCleanup()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
	logger.Info("server stopped")
}

// resolveSecretRefs replaces secret:// references in the configuration with
// values fetched from Secret Manager.
func resolveSecretRefs(ctx context.Context, logger *zap.Logger, cfg *config.Config) error {
	if !strings.HasPrefix(cfg.PSP.StripeAPIKey, secretRefPrefix) {
		return nil
	}

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(cfg.Firestore.ProjectID),
	)
	if err != nil {
		return err
	}
	defer func() {
		_ = fetcher.Close()
	}()

	value, err := fetcher.Resolve(ctx, cfg.PSP.StripeAPIKey)
	if err != nil {
		return err
	}
	cfg.PSP.StripeAPIKey = value
	return nil
}

func buildPaymentManager(cfg config.Config) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider)

	if cfg.PSP.StripeAPIKey != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
		})
		if err != nil {
			return nil, err
		}
		providers["stripe"] = stripeProvider
	}

	if len(providers) == 0 {
		return nil, errors.New("no payment providers configured")
	}

	opts := []payments.ManagerOption{}
	if cfg.PSP.DefaultProvider != "" {
		opts = append(opts, payments.WithDefaultProvider(cfg.PSP.DefaultProvider))
	}
	return payments.NewManager(providers, opts...)
}

func runIdempotencyCleanup(ctx context.Context, logger *zap.Logger, store idempotency.Store, cfg config.IdempotencyConfig) {
	if cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		}
	}
}
