package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabrevive/pickup-payments/internal/bookings"
	"github.com/fabrevive/pickup-payments/internal/compensation"
	"github.com/fabrevive/pickup-payments/pkg/config"
	"github.com/fabrevive/pickup-payments/pkg/firestore"
	"github.com/fabrevive/pickup-payments/pkg/logger"
	"github.com/fabrevive/pickup-payments/pkg/metrics"
	"github.com/fabrevive/pickup-payments/pkg/pubsub"
	"github.com/fabrevive/pickup-payments/pkg/redis"
	"github.com/fabrevive/pickup-payments/pkg/resilience"
)

const serviceName = "compensation-worker"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.PubSub.CompensationSubscription == "" {
		requireResource(ctx, logg, "pubsub subscription", fmt.Errorf("%s is required", config.EnvPubSubCompensationSub))
	}

	store, err := firestore.NewClient(ctx, cfg.GCP, logg)
	requireResource(ctx, logg, "firestore", err)
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(ctx, "failed to close firestore client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()
	requireResource(ctx, logg, "pubsub subscription", pubsubClient.EnsureSubscription(ctx, cfg.PubSub.CompensationSubscription))

	var dedup *compensation.MergeDedup
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis)
		requireResource(ctx, logg, "redis", err)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "failed to close redis client", err)
			}
		}()
		dedup, err = compensation.NewMergeDedup(redisClient, cfg.Webhook.IdempotencyTTL)
		requireResource(ctx, logg, "compensation dedup", err)
	}

	registry := prometheus.NewRegistry()
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	repo := bookings.NewFirestoreRepository(store.Firestore(), store.Collection(), resilience.StorePolicy(cfg.Resilience))
	consumer, err := compensation.NewConsumer(repo, pubsubClient.CompensationSubscription(), dedup, paymentMetrics, logg)
	requireResource(ctx, logg, "compensation consumer", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"subscription": cfg.PubSub.CompensationSubscription,
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "metrics server stopped unexpectedly", err)
		}
	}()

	logg.Info(runCtx, "starting compensation worker")
	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "compensation worker stopped unexpectedly", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(runCtx, "failed to stop metrics server", err)
	}
	logg.Info(runCtx, "compensation worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
