package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"RoostMail/internal/api"
	"RoostMail/internal/config"
	"RoostMail/internal/db"
	"RoostMail/internal/delivery"
	"RoostMail/internal/footer"
	"RoostMail/internal/metrics"
	"RoostMail/internal/processor"
	"RoostMail/internal/senders"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Delivery Client
	// ------------------------------------------------
	client, err := buildDeliveryClient(cfg)
	if err != nil {
		logger.Fatal("delivery client setup failed", zap.Error(err))
	}
	logger.Info("delivery provider selected", zap.String("provider", cfg.DeliveryProvider))

	// ------------------------------------------------
	// Pipeline Components
	// ------------------------------------------------
	registry := senders.NewRegistry(
		cfg.TransactionalFrom,
		cfg.NotificationFrom,
		cfg.MarketingFrom,
		cfg.SystemFrom,
	)

	injector := footer.New(cfg.BaseURL)

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)

	proc := processor.New(store, client, registry, injector, limiter, logger, processor.Options{
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		RetryDelay:   cfg.RetryDelay,
		LeaseTimeout: cfg.LeaseTimeout,
	})

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	handler := &api.Handler{
		Store:        store,
		Runner:       proc,
		Log:          logger,
		ServiceToken: cfg.ServiceToken,
	}

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: handler.Routes(),
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}

func buildDeliveryClient(cfg *config.Config) (delivery.Client, error) {
	switch strings.ToLower(cfg.DeliveryProvider) {
	case "ses":
		return &delivery.SESClient{
			Region:    cfg.AWSRegion,
			AccessKey: cfg.AWSAccessKeyID,
			SecretKey: cfg.AWSSecretAccessKey,
		}, nil
	case "resend":
		return delivery.NewResendClient(cfg.ResendAPIKey), nil
	case "smtp":
		return &delivery.SMTPClient{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		}, nil
	default:
		return nil, fmt.Errorf("unknown delivery provider: %q", cfg.DeliveryProvider)
	}
}
