package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-service/internal/config"
	"marketplace-service/internal/handlers"
	"marketplace-service/internal/kinesis"
	"marketplace-service/internal/matching"
	"marketplace-service/internal/payments"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/service"
	"marketplace-service/internal/storage"
	"marketplace-service/internal/urgency"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	kinesisService "github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/gorilla/mux"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg := config.Load()

	// Setup structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	tables, err := config.LoadTables(cfg.TablesFile)
	if err != nil {
		slog.Error("Failed to load tuning tables", "file", cfg.TablesFile, "error", err)
		os.Exit(1)
	}

	store, err := openStorage(cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "storage_type", cfg.StorageType, "error", err)
		os.Exit(1)
	}

	// Initialize services
	jobService := service.NewJobService(
		store,
		urgency.NewClassifier(tables.Urgency),
		pricing.NewEngine(tables.Pricing),
		matching.New(cfg.MatchingStrategy, cfg.MatchRadiusKm),
		logger,
	)
	jobService.SetServiceZones(cfg.ServiceZones)
	jobService.SetClock(time.Now, cfg.Location())
	jobService.SetConcurrency(cfg.ProcessorConcurrency)

	// Initialize Kinesis streamer if stream name is provided
	if cfg.KinesisStream != "" {
		awsCfg, err := storage.NewDynamoDBConfig(context.Background(), cfg.AWSRegion, "")
		if err != nil {
			slog.Warn("Failed to load AWS config for Kinesis", "error", err)
		} else {
			streamer := kinesis.NewStreamer(kinesisService.NewFromConfig(awsCfg), cfg.KinesisStream)
			jobService.SetKinesisStreamer(streamer)
			slog.Info("Kinesis job event streaming enabled", "stream", cfg.KinesisStream)
		}
	}

	plumberService := service.NewPlumberService(store, logger)
	customerService := service.NewCustomerService(store)

	gateway, err := payments.NewMercadoPagoGateway(cfg.MercadoPagoAccessToken, cfg.PaymentGatewayMock, logger)
	if err != nil {
		slog.Error("Failed to initialize payment gateway", "error", err)
		os.Exit(1)
	}
	paymentService := service.NewPaymentService(store, jobService, gateway, cfg.PaymentCurrency, logger)

	// Initialize background job processor
	jobProcessor := service.NewJobProcessor(jobService, cfg.ProcessorInterval, logger)
	jobProcessor.Start()

	// Initialize demo lead generator
	var demoGenerator *service.DemoLeadGenerator
	var demoHandler *handlers.DemoHandler

	if cfg.DemoMode {
		if err := service.SeedDemoPlumbers(context.Background(), plumberService); err != nil {
			slog.Warn("Failed to seed demo plumbers", "error", err)
		}
		demoGenerator = service.NewDemoLeadGenerator(jobService, cfg.DemoInterval, logger)
		demoHandler = handlers.NewDemoHandler(demoGenerator)
		demoGenerator.Start() // Auto-start in demo mode
		slog.Info("Demo mode enabled", "lead_generation_interval", cfg.DemoInterval)
	}

	// Initialize HTTP handlers
	httpHandler := handlers.NewHTTPHandler(jobService, plumberService, customerService, paymentService, logger)
	intakeLimiter := handlers.NewClientLimiter(cfg.IntakeRatePerSec, cfg.IntakeBurst)
	intakeLimiter.TrustForwardedFor(cfg.TrustProxyHeaders)
	httpHandler.SetIntakeLimiter(intakeLimiter)

	// Setup routes
	router := mux.NewRouter()

	// Use path prefix if running behind load balancer
	apiRouter := router
	if cfg.PathPrefix != "" {
		apiRouter = router.PathPrefix(cfg.PathPrefix).Subrouter()
	}
	httpHandler.RegisterRoutes(apiRouter)
	if demoHandler != nil {
		demoHandler.RegisterRoutes(router)
	}

	// Add CORS middleware for frontend
	router.Use(handlers.CORSMiddleware)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		slog.Info("Marketplace service starting",
			"port", cfg.Port,
			"storage_type", cfg.StorageType,
			"matching_strategy", cfg.MatchingStrategy,
			"service_zones", cfg.ServiceZones,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Marketplace service failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-c
	slog.Info("Marketplace service shutting down")
	if demoGenerator != nil {
		demoGenerator.Stop()
	}
	jobProcessor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

// openStorage initializes storage based on configuration
func openStorage(cfg config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "dynamodb":
		awsCfg, err := storage.NewDynamoDBConfig(context.Background(), cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		slog.Info("Using DynamoDB storage", "jobs_table", cfg.DynamoDBTables.Jobs, "region", cfg.AWSRegion)
		return storage.NewDynamoDBStorage(dynamodb.NewFromConfig(awsCfg), storage.DynamoDBTables(cfg.DynamoDBTables)), nil
	case "postgres":
		db, err := storage.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("Using Postgres storage")
		return storage.NewGormStorage(db), nil
	default:
		slog.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}
}
