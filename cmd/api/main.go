package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/healthcare-booking/cmd/mainconfig"
	"github.com/wolfman30/healthcare-booking/internal/api/router"
	"github.com/wolfman30/healthcare-booking/internal/app/bootstrap"
	"github.com/wolfman30/healthcare-booking/internal/booking"
	"github.com/wolfman30/healthcare-booking/internal/catalog"
	appconfig "github.com/wolfman30/healthcare-booking/internal/config"
	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/internal/handoff"
	httpmiddleware "github.com/wolfman30/healthcare-booking/internal/http/middleware"
	"github.com/wolfman30/healthcare-booking/internal/livefeed"
	"github.com/wolfman30/healthcare-booking/internal/media"
	"github.com/wolfman30/healthcare-booking/internal/observability/metrics"
	"github.com/wolfman30/healthcare-booking/internal/roles"
	"github.com/wolfman30/healthcare-booking/internal/secrets"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

const liveFeedChannel = "bookings:events"

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting healthcare booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	resolver := secrets.NewResolver(secretsmanager.NewFromConfig(awsCfg), !cfg.IsProduction(), logger)
	creds, err := bootstrap.ResolveCredentials(ctx, cfg, resolver)
	if err != nil {
		logger.Error("failed to resolve secrets", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.BookingTimezone)
	if err != nil {
		logger.Error("invalid BOOKING_TIMEZONE", "timezone", cfg.BookingTimezone, "error", err)
		os.Exit(1)
	}

	metricsHandler, bookingMetrics, catalogMetrics := setupMetrics()
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	outbox := events.NewDynamoOutbox(dynamoClient, cfg.DynamoDBTable, logger)
	publisher := events.NewOutboxPublisher(outbox)

	// Catalog reads go through the Redis cache; booking validation reads the table directly.
	catalogStore := catalog.NewDynamoRepository(dynamoClient, cfg.DynamoDBTable, logger)
	uploader := setupUploader(cfg, awsCfg, catalogMetrics, logger)
	catalogService := catalog.NewService(
		setupCatalogRepository(catalogStore, redisClient, cfg, logger),
		logger,
		catalog.WithUploader(uploader),
		catalog.WithPublisher(publisher),
		catalog.WithMetrics(catalogMetrics),
		catalog.WithStoreTimeout(cfg.StoreTimeout),
	)

	hub := setupLiveFeed(ctx, redisClient, logger)
	bookingService := booking.NewService(
		booking.NewDynamoRepository(dynamoClient, cfg.DynamoDBTable, logger),
		booking.NewBuilder(catalogStore),
		handoff.NewComposer(cfg.WhatsAppNumber, handoff.Locale(cfg.HandoffLocale)),
		logger,
		booking.WithSlots(cfg.BookingTimeSlots, loc),
		booking.WithFeed(hub),
		booking.WithMetrics(bookingMetrics),
		booking.WithStoreTimeout(cfg.StoreTimeout),
	)

	limiter := httpmiddleware.NewRateLimiter(cfg.BookingRateLimitRPS, cfg.BookingRateLimitBurst)
	go limiter.Sweep(ctx, time.Minute)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		Catalog:            catalog.NewHandler(catalogService, cfg.MediaMaxUploadBytes, logger),
		Bookings:           booking.NewHandler(bookingService, logger),
		Prescriptions:      media.NewPrescriptionHandler(uploader, publisher, cfg.MediaMaxUploadBytes, logger),
		LiveFeed:           livefeed.NewHandler(hub, logger),
		JWTSecret:          creds.JWTSecret,
		LoginURL:           cfg.AuthLoginURL,
		Roles:              roles.NewStore(dynamoClient, cfg.DynamoDBTable, cfg.StoreTimeout, logger),
		BookingLimiter:     limiter,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics, *metrics.CatalogMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return handler, metrics.NewBookingMetrics(reg), metrics.NewCatalogMetrics(reg)
}

func setupCatalogRepository(store catalog.Repository, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) catalog.Repository {
	if redisClient == nil || cfg.CatalogCacheTTL <= 0 {
		return store
	}
	logger.Info("catalog cache enabled", "ttl", cfg.CatalogCacheTTL)
	return catalog.NewCachedRepository(store, redisClient, cfg.CatalogCacheTTL, logger)
}

// setupUploader returns an uploader without a store when MEDIA_BUCKET is
// unset; catalog images then fall back to the placeholder if allowed.
func setupUploader(cfg *appconfig.Config, awsCfg aws.Config, m *metrics.CatalogMetrics, logger *logging.Logger) *media.Uploader {
	var store media.Store
	if cfg.MediaBucket != "" {
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		store = media.NewS3Store(client, cfg.MediaBucket, cfg.MediaPublicBaseURL, cfg.MediaMaxUploadBytes, logger)
	} else {
		logger.Warn("MEDIA_BUCKET not set, uploads are unavailable")
	}
	return media.NewUploader(store, cfg.MediaPlaceholderURL, cfg.AllowPlaceholderImages, m, logger)
}

// setupLiveFeed relays through Redis when available so every API instance
// sees every booking event.
func setupLiveFeed(ctx context.Context, redisClient *redis.Client, logger *logging.Logger) *livefeed.Hub {
	hub := livefeed.NewHub(logger)
	if redisClient == nil {
		return hub
	}
	broker := livefeed.NewRedisBroker(redisClient, liveFeedChannel, hub, logger)
	hub.WithRelay(broker)
	go func() {
		if err := broker.Run(ctx, nil); err != nil && ctx.Err() == nil {
			logger.Error("live feed relay stopped", "error", err)
		}
	}()
	return hub
}
