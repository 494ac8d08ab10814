package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/blob"
	"storefront/internal/broker"
	"storefront/internal/catalog"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"
)

type stopper interface {
	Stop() error
}

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	ctx := context.Background()

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to prepare order table", zap.Error(err))
	}
	logger.Info("Order database ready", zap.String("driver", cfg.Database.Driver))

	cat := catalog.Default()
	if cfg.Storefront.CatalogPath != "" {
		if cat, err = catalog.LoadFile(cfg.Storefront.CatalogPath); err != nil {
			logger.Fatal("Failed to load catalog", zap.Error(err))
		}
	}
	logger.Info("Catalog loaded", zap.Int("products", len(cat.Products())))

	blobs, err := blob.NewStore(ctx, cfg.Blob)
	if err != nil {
		logger.Fatal("Failed to initialize screenshot storage", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var workers []stopper

	var sessions session.Registry
	if cfg.Redis.Enabled() {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		sessions = session.NewRedisRegistry(redisClient, cfg.Storefront.SessionIdleTimeout)
		logger.Info("Sessions stored in Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		memory := session.NewMemoryRegistry(cfg.Storefront.SessionIdleTimeout)
		sessions = memory

		sweeper := worker.NewSessionSweeper(memory, cfg.Storefront.SessionSweepEvery)
		workers = append(workers, sweeper)
		go func() {
			if err := sweeper.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Session sweeper error", zap.Error(err))
			}
		}()
	}

	var publisher service.OrderEventPublisher
	if cfg.Kafka.Enabled() {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		salesConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		salesWorker := worker.NewSalesWorker(salesConsumer)
		workers = append(workers, salesWorker)
		go func() {
			if err := salesWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Sales worker error", zap.Error(err))
			}
		}()
	}

	storefront := service.NewStorefrontService(
		sessions,
		cat,
		db,
		blobs,
		publisher,
		session.Credentials{
			Identifier: cfg.Storefront.AdminIdentifier,
			Secret:     cfg.Storefront.AdminSecret,
		},
	)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(storefront, db, cfg.Storefront.SessionCookieName, cfg.Blob.MaxUploadBytes)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	for _, w := range workers {
		if err := w.Stop(); err != nil {
			logger.Warn("Worker stop failed", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
