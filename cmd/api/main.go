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

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/kleankuts/api/internal/handlers"
	"github.com/kleankuts/api/internal/platform/config"
	"github.com/kleankuts/api/internal/platform/jobs"
	pmongo "github.com/kleankuts/api/internal/platform/mongo"
	"github.com/kleankuts/api/internal/platform/observability"
	mongorepo "github.com/kleankuts/api/internal/repositories/mongo"
	"github.com/kleankuts/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	mongoProvider := pmongo.NewProvider(cfg.Mongo)
	mongoClient, err := mongoProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise mongo client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoProvider.Close(closeCtx); err != nil {
			logger.Warn("mongo close error", zap.Error(err))
		}
	}()

	productRepo, err := mongorepo.NewProductRepository(mongoProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	orderRepo, err := mongorepo.NewOrderRepository(mongoProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	auditRepo, err := mongorepo.NewAuditRepository(mongoProvider)
	if err != nil {
		logger.Fatal("failed to initialise audit repository", zap.Error(err))
	}

	indexCtx, indexCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := auditRepo.EnsureIndexes(indexCtx); err != nil {
		indexCancel()
		logger.Fatal("failed to ensure audit indexes", zap.Error(err))
	}
	indexCancel()

	eventPublisher, pubsubClient := buildStockPublisher(ctx, logger, cfg)
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	inventoryLogger := logger.Named("inventory")
	inventoryService, err := services.NewInventoryService(services.InventoryServiceDeps{
		Products: productRepo,
		Orders:   orderRepo,
		Audits:   auditRepo,
		Events:   eventPublisher,
		Clock:    time.Now,
		Logger:   zapServiceLogger(inventoryLogger),
	})
	if err != nil {
		logger.Fatal("failed to initialise inventory service", zap.Error(err))
	}

	reconciliationService, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Products:  productRepo,
		BatchSize: cfg.Reconciliation.BatchSize,
		Clock:     time.Now,
		Logger:    zapServiceLogger(logger.Named("reconciliation")),
	})
	if err != nil {
		logger.Fatal("failed to initialise reconciliation service", zap.Error(err))
	}

	// Retention sweep keeps the ledger bounded; expired entries also expire
	// their idempotency guarantee, matching the documented retention window.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var sweepWG sync.WaitGroup
	var sweepTicker *time.Ticker
	if cfg.Audit.CleanupInterval > 0 && cfg.Audit.Retention > 0 {
		sweepTicker = time.NewTicker(cfg.Audit.CleanupInterval)
		sweepWG.Add(1)
		go func() {
			defer sweepWG.Done()
			sweepLogger := logger.Named("audit_sweep")
			for {
				select {
				case <-sweepTicker.C:
					runCtx, cancel := context.WithTimeout(sweepCtx, time.Minute)
					cutoff := time.Now().UTC().Add(-cfg.Audit.Retention)
					removed, err := auditRepo.DeleteOlderThan(runCtx, cutoff, cfg.Audit.CleanupBatch)
					cancel()
					if err != nil {
						sweepLogger.Error("audit sweep error", zap.Error(err))
						continue
					}
					if removed > 0 {
						sweepLogger.Info("audit sweep removed records", zap.Int("count", removed))
					}
				case <-sweepCtx.Done():
					return
				}
			}
		}()
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadinessProbe("mongo", func(ctx context.Context) error {
			probeCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
			defer cancel()
			return mongoClient.Ping(probeCtx, readpref.Primary())
		}),
	)

	inventoryHandlers := handlers.NewInventoryHandlers(inventoryService)
	reconciliationHandlers := handlers.NewReconciliationHandlers(reconciliationService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithInternalRoutes(func(r chi.Router) {
			inventoryHandlers.Routes(r)
			reconciliationHandlers.Routes(r)
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("kleankuts api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if sweepTicker != nil {
		sweepTicker.Stop()
	}
	sweepCancel()
	sweepWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildStockPublisher wires the optional Pub/Sub stock event publisher; both
// return values are nil when events are not configured.
func buildStockPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (services.StockEventPublisher, *pubsub.Client) {
	projectID := strings.TrimSpace(cfg.Events.ProjectID)
	topicID := strings.TrimSpace(cfg.Events.Topic)
	if projectID == "" || topicID == "" {
		return nil, nil
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		logger.Warn("stock events disabled: pubsub client init failed", zap.Error(err))
		return nil, nil
	}

	publisher, err := jobs.NewPubSubStockPublisher(client.Topic(topicID))
	if err != nil {
		logger.Warn("stock events disabled: publisher init failed", zap.Error(err))
		_ = client.Close()
		return nil, nil
	}
	return publisher, client
}

func zapServiceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}
