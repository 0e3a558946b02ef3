package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	webhookcontrollers "github.com/fabrevive/pickup-payments/api/controllers/webhooks"
	"github.com/fabrevive/pickup-payments/api/routes"
	"github.com/fabrevive/pickup-payments/internal/clients"
	"github.com/fabrevive/pickup-payments/internal/compensation"
	"github.com/fabrevive/pickup-payments/internal/diagnostics"
	"github.com/fabrevive/pickup-payments/internal/ledger"
	"github.com/fabrevive/pickup-payments/internal/origin"
	"github.com/fabrevive/pickup-payments/internal/paymentlinks"
	razorpaywebhook "github.com/fabrevive/pickup-payments/internal/webhooks/razorpay"
	"github.com/fabrevive/pickup-payments/pkg/config"
	"github.com/fabrevive/pickup-payments/pkg/db"
	"github.com/fabrevive/pickup-payments/pkg/logger"
	"github.com/fabrevive/pickup-payments/pkg/metrics"
	"github.com/fabrevive/pickup-payments/pkg/migrate"
	"github.com/fabrevive/pickup-payments/pkg/pubsub"
	"github.com/fabrevive/pickup-payments/pkg/redis"
	"github.com/fabrevive/pickup-payments/pkg/resilience"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap api", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(runCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(runCtx, "shutting down api server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := multierr.Append(server.Shutdown(shutdownCtx), app.close())
	if shutdownErr != nil {
		logg.Error(runCtx, "error during shutdown", shutdownErr)
		exitCode = 1
	}
	os.Exit(exitCode)
}

type application struct {
	handler http.Handler
	closers []func() error
}

func (a *application) close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	return err
}

// bootstrap wires the optional backends. Redis, Postgres, and Pub/Sub are
// each skipped when unconfigured; the booking store and gateway are built
// lazily by the provider.
func bootstrap(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*application, error) {
	app := &application{}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, multierr.Append(err, app.close())
		}
		redisClient = client
		app.closers = append(app.closers, client.Close)
	} else {
		logg.Warn(ctx, "redis disabled; webhook dedup and link cache off")
	}

	var recorder *ledger.Recorder
	var ledgerPinger diagnostics.Pinger
	if cfg.DB.Enabled() {
		dbClient, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, multierr.Append(err, app.close())
		}
		app.closers = append(app.closers, dbClient.Close)
		if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
			return nil, multierr.Append(err, app.close())
		}
		svc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
		if err != nil {
			return nil, multierr.Append(err, app.close())
		}
		recorder = ledger.NewRecorder(svc, logg)
		ledgerPinger = dbClient
	}

	var compensator paymentlinks.Compensator
	if cfg.PubSub.PublisherEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, multierr.Append(err, app.close())
		}
		app.closers = append(app.closers, psClient.Close)
		publisher, err := compensation.NewPublisher(psClient.CompensationPublisher(), logg)
		if err != nil {
			return nil, multierr.Append(err, app.close())
		}
		compensator = publisher
	}

	provider := clients.NewProvider(
		cfg.GCP,
		cfg.Razorpay,
		clients.FirestoreStoreFactory(resilience.StorePolicy(cfg.Resilience), logg),
		clients.RazorpayGatewayFactory(logg),
	)
	app.closers = append(app.closers, provider.Close)

	var linkCache paymentlinks.LinkCache
	if redisClient != nil {
		cache, err := paymentlinks.NewRedisLinkCache(redisClient, cfg.Payment.LinkIdempotencyTTL)
		if err != nil {
			return nil, multierr.Append(err, app.close())
		}
		linkCache = cache
	}

	linkService, err := paymentlinks.NewService(paymentlinks.ServiceParams{
		Clients:       provider,
		Payment:       cfg.Payment,
		GatewayPolicy: resilience.GatewayPolicy(cfg.Resilience),
		Cache:         linkCache,
		Compensator:   compensator,
		Ledger:        recorder,
		Metrics:       paymentMetrics,
		Logger:        logg,
	})
	if err != nil {
		return nil, multierr.Append(err, app.close())
	}

	reconciler, err := razorpaywebhook.NewReconciler(razorpaywebhook.ReconcilerParams{
		Stores:       provider,
		PaidAtPolicy: cfg.Webhook.PaidAtPolicy,
		Ledger:       recorder,
		Logger:       logg,
	})
	if err != nil {
		return nil, multierr.Append(err, app.close())
	}

	webhookParams := webhookcontrollers.RazorpayParams{
		Secrets:    provider,
		Reconciler: reconciler,
		Ledger:     recorder,
		Metrics:    paymentMetrics,
		Logger:     logg,
	}
	var redisPinger diagnostics.Pinger
	if redisClient != nil {
		guard, err := razorpaywebhook.NewDeliveryGuard(redisClient, cfg.Webhook.ClaimTTL, cfg.Webhook.IdempotencyTTL)
		if err != nil {
			return nil, multierr.Append(err, app.close())
		}
		webhookParams.Guard = guard
		redisPinger = redisClient
	}

	checker := diagnostics.NewChecker(diagnostics.Params{
		GCP:      cfg.GCP,
		Razorpay: cfg.Razorpay,
		Store:    provider,
		Redis:    redisPinger,
		Ledger:   ledgerPinger,
		Timeout:  cfg.Resilience.StoreTimeout,
		Logger:   logg,
	})

	app.handler = routes.NewRouter(routes.Deps{
		Logger:      logg,
		Gate:        origin.NewGate(cfg.CORS.Origins()),
		PaymentLink: linkService,
		Diagnostics: checker,
		Webhook:     webhookParams,
		Gatherer:    registry,
	})
	return app, nil
}
