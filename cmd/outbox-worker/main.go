package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/healthcare-booking/cmd/mainconfig"
	"github.com/wolfman30/healthcare-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/healthcare-booking/internal/config"
	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/internal/observability/metrics"
	"github.com/wolfman30/healthcare-booking/internal/secrets"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
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

	var sesClient *sesv2.Client
	if cfg.EmailProvider == "ses" {
		sesClient = sesv2.NewFromConfig(awsCfg)
	}
	var sqsClient *sqs.Client
	if cfg.BookingEventsQueueURL != "" {
		sqsClient = sqs.NewFromConfig(awsCfg)
	}
	handlers := bootstrap.BuildEventRouter(
		cfg,
		bootstrap.BuildEmailSender(cfg, creds, sesClient, logger),
		bootstrap.BuildAirtableMirror(cfg, creds, logger),
		sqsClient,
		logger,
	)

	reg := prometheus.NewRegistry()
	deliverer := events.NewDeliverer(
		events.NewDynamoOutbox(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, logger),
		handlers,
		logger,
	).
		WithBatchSize(cfg.OutboxBatchSize).
		WithInterval(cfg.OutboxPollInterval).
		WithMaxAttempts(cfg.OutboxMaxAttempts).
		WithMetrics(metrics.NewOutboxMetrics(reg))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		deliverer.Start(ctx)
	}()
	logger.Info("outbox worker started", "table", cfg.DynamoDBTable, "interval", cfg.OutboxPollInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("outbox worker shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	select {
	case <-done:
	case <-shutdownCtx.Done():
	}
}
