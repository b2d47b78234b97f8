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
	"github.com/redis/go-redis/v9"

	"github.com/swiftride/dispatch/internal/api/handlers"
	"github.com/swiftride/dispatch/internal/api/routes"
	"github.com/swiftride/dispatch/internal/collab/fraud"
	"github.com/swiftride/dispatch/internal/collab/notify"
	"github.com/swiftride/dispatch/internal/config"
	"github.com/swiftride/dispatch/internal/events"
	"github.com/swiftride/dispatch/internal/registry"
	"github.com/swiftride/dispatch/internal/scoring"
	"github.com/swiftride/dispatch/internal/service/dispatch"
	"github.com/swiftride/dispatch/internal/service/pricing"
	"github.com/swiftride/dispatch/internal/service/selector"
	"github.com/swiftride/dispatch/internal/service/stats"
	"github.com/swiftride/dispatch/internal/service/trips"
	"github.com/swiftride/dispatch/internal/storage"
	"github.com/swiftride/dispatch/internal/transport"
	"github.com/swiftride/dispatch/pkg/cache"
	"github.com/swiftride/dispatch/pkg/database"
	"github.com/swiftride/dispatch/pkg/logger"
	"github.com/swiftride/dispatch/pkg/monitoring"
	"github.com/swiftride/dispatch/pkg/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting SwiftRide dispatch service",
		logger.String("env", cfg.Server.Env),
		logger.String("port", cfg.Server.Port),
	)

	// Initialize New Relic
	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
	})
	if err != nil {
		appLogger.Warn("Failed to initialize New Relic", logger.Err(err))
		nrApp = nil
	} else if nrApp.IsEnabled() {
		appLogger.Info("New Relic APM initialized",
			logger.String("app_name", cfg.NewRelic.AppName))
	}
	if nrApp != nil {
		defer nrApp.Shutdown(10 * time.Second)
	}

	// Initialize Redis
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cache.Config{
			Host:        cfg.Redis.Host,
			Port:        cfg.Redis.Port,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxRetries:  cfg.Redis.MaxRetries,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
			ReadTimeout: cfg.Redis.ReadTimeout,
		})
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", logger.Err(err))
		}
		defer cache.Close(redisClient)
		appLogger.Info("Connected to Redis")
	}

	// Initialize trip storage: PostgreSQL, or the in-memory store when
	// the database is disabled (local runs)
	var tripStore storage.TripStore
	if cfg.Database.Enabled {
		postgresDB, err := database.NewPostgresDB(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MaxIdle:  cfg.Database.MaxIdle,
		})
		if err != nil {
			appLogger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
		}
		defer postgresDB.Close()
		appLogger.Info("Connected to PostgreSQL")
		tripStore = storage.NewPostgresStore(postgresDB, appLogger)
	} else {
		appLogger.Warn("Database disabled, trips are stored in memory")
		tripStore = storage.NewMemoryStore()
	}

	// Driver registry, optionally mirroring locations into Redis
	var mirror registry.GeoMirror
	if redisClient != nil {
		mirror = registry.NewRedisGeoMirror(redisClient, appLogger)
	}
	driverRegistry := registry.New(mirror, appLogger)

	// Scoring weights, seeded from config
	paramStore, err := scoring.NewParameterStore(scoring.Weights{
		Distance:       cfg.Scoring.Distance,
		Rating:         cfg.Scoring.Rating,
		AcceptanceRate: cfg.Scoring.AcceptanceRate,
		CompletionRate: cfg.Scoring.CompletionRate,
		Experience:     cfg.Scoring.Experience,
		Language:       cfg.Scoring.LanguageMatch,
		VehicleMatch:   cfg.Scoring.VehicleMatch,
		PriorTrips:     cfg.Scoring.PriorTrips,
	})
	if err != nil {
		appLogger.Fatal("Invalid scoring weights", logger.Err(err))
	}

	candidateSelector := selector.New(driverRegistry, paramStore, tripStore, cfg.Matching.MaxCandidates)
	fareCalculator := pricing.NewCalculator(cfg.Pricing, redisClient, appLogger)
	aggregator := stats.NewAggregator(driverRegistry, appLogger)

	// Outbound event stream
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka, appLogger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		appLogger.Info("Kafka event stream enabled",
			logger.String("topic", cfg.Kafka.Topic))
	}

	// Rider and driver notifications
	notifyQueue := notify.NewQueue(notify.LogSink{Logger: appLogger}, 256, appLogger)
	defer notifyQueue.Close()

	// Fraud screening
	var fraudChecker fraud.Checker = fraud.AllowAll{}
	if cfg.Fraud.Endpoint != "" {
		fraudChecker = fraud.NewHTTPChecker(cfg.Fraud, appLogger)
		appLogger.Info("Fraud screening enabled")
	}

	// WebSocket hub and dispatch coordinator
	wsHub := websocket.NewHub(appLogger)
	go wsHub.Run()

	coordinator := dispatch.NewCoordinator(dispatch.Deps{
		Registry:  driverRegistry,
		Selector:  candidateSelector,
		Store:     tripStore,
		Transport: transport.NewHubTransport(wsHub),
		Pricing:   fareCalculator,
		Fraud:     fraudChecker,
		Stats:     aggregator,
		Notifier:  notifyQueue,
		Publisher: publisher,
		Monitor:   nrApp,
	}, cfg.Matching, appLogger)

	tripService := trips.NewService(tripStore, driverRegistry, fareCalculator,
		aggregator, notifyQueue, publisher, coordinator, appLogger)

	inbound := transport.NewInbound(coordinator, driverRegistry, nrApp, appLogger)

	// Initialize handlers with dependencies
	h := &handlers.Handlers{
		Logger:    appLogger,
		Trips:     tripService,
		Dispatch:  coordinator,
		Registry:  driverRegistry,
		Selector:  candidateSelector,
		Params:    paramStore,
		Stats:     aggregator,
		Hub:       wsHub,
		WSHandler: inbound,
		Cfg:       cfg.Matching,
		StartedAt: time.Now(),
	}

	// Initialize Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	var nrApplication *monitoring.NewRelicApp
	if nrApp != nil && nrApp.IsEnabled() {
		nrApplication = nrApp
	}
	if nrApplication != nil {
		routes.SetupRoutes(router, h, nrApplication.Application)
	} else {
		routes.SetupRoutes(router, h, nil)
	}
	appLogger.Info("Routes configured")

	// Create HTTP server
	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   60 * time.Second, // find-driver blocks through the offer cascade
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Server starting", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Err(err))
	}

	appLogger.Info("Server stopped gracefully")
}
