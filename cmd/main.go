/**
 * @description
 * Entry point for the payments service. It loads configuration, picks the
 * seller directory, webhook claim store and event publisher from what is
 * configured, wires the Stripe adapter into the application services and
 * serves the HTTP API until SIGINT or SIGTERM.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/surfspotter/payments-service/internal/api"
	"github.com/surfspotter/payments-service/internal/app"
	"github.com/surfspotter/payments-service/internal/config"
	"github.com/surfspotter/payments-service/internal/domain"
	"github.com/surfspotter/payments-service/internal/store"
	"github.com/surfspotter/payments-service/pkg/idempotency"
	"github.com/surfspotter/payments-service/pkg/kafka"
	"github.com/surfspotter/payments-service/pkg/metrics"
	paymentsrabbit "github.com/surfspotter/payments-service/pkg/rabbitmq"
	"github.com/surfspotter/payments-service/pkg/stripeclient"
)

// directory is what the services need from a seller/catalog/order store.
type directory interface {
	app.Catalog
	app.SellerDirectory
	app.OrderLedger
	UpsertProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var dbpool *pgxpool.Pool
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		dbpool, err = openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("unable to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbpool.Close()
		logger.Info("database connection established")

		if err := store.Migrate(ctx, dbpool); err != nil {
			logger.Error("database migration failed", "error", err)
			os.Exit(1)
		}
	}

	var dir directory
	if dbpool != nil {
		dir = store.NewPostgresDirectory(dbpool)
	} else {
		logger.Warn("DATABASE_URL not set; sellers and orders are kept in memory")
		dir = store.NewMemoryDirectory()
	}
	if cfg.SeedDemoData {
		if err := store.SeedDemoData(ctx, dir); err != nil {
			logger.Error("failed to seed demo data", "error", err)
			os.Exit(1)
		}
		logger.Info("demo data seeded", "seller_id", store.DemoSeller.ID, "product_id", store.DemoProduct.ID)
	}

	dedupe, closeDedupe := newDeduplicator(ctx, cfg, dbpool, logger)
	defer closeDedupe()

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	stripeClient := stripeclient.New(stripeclient.Config{
		SecretKey: cfg.StripeSecretKey,
		APIURL:    cfg.StripeAPIURL,
		Timeout:   cfg.ProviderTimeout,
	})
	verifier := stripeclient.NewWebhookVerifier(cfg.StripeWebhookSecret, cfg.WebhookTolerance)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.New(registry)

	handler := api.NewHandler(api.Services{
		Checkout: app.NewCheckoutService(stripeClient, dir, dir, app.CheckoutConfig{
			DefaultCurrency:        cfg.DefaultCurrency,
			PlatformFeeBasisPoints: cfg.PlatformFeeBPS,
		}, logger),
		Onboarding: app.NewOnboardingService(stripeClient, dir, app.OnboardingConfig{
			SiteURL:       cfg.SiteURL,
			Country:       cfg.ConnectCountry,
			BusinessType:  cfg.ConnectBusinessType,
			UnknownSeller: app.UnknownSellerPolicy(cfg.UnknownSellerPolicy),
		}, logger),
		Reconciler:      app.NewReconciler(verifier, dir, dir, dedupe, publisher, cfg.WebhookDedupRetention, logger),
		Diagnostics:     app.NewDiagnostics(stripeClient, cfg.StripeSecretKey, cfg.SiteURL),
		Metrics:         serverMetrics,
		Logger:          logger,
		WebhookMaxBytes: cfg.WebhookMaxBodyBytes,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.AllowedOrigins(),
		Gatherer:       registry,
	})

	scheduler := app.NewScheduler(dedupe, cfg.PurgeSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort, "event_broker", cfg.EventBroker)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	<-scheduler.Stop().Done()

	logger.Info("server stopped")
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func openDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pgConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	pgConfig.MaxConns = 20
	pgConfig.MinConns = 2
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// newDeduplicator prefers Redis, then Postgres, then process memory.
func newDeduplicator(ctx context.Context, cfg config.Config, dbpool *pgxpool.Pool, logger *slog.Logger) (app.EventDeduplicator, func()) {
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis url parse failed; falling back", "error", err)
		} else {
			client := redis.NewClient(opts)
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := client.Ping(pingCtx).Err(); err != nil {
				logger.Warn("redis ping failed; falling back", "error", err)
				_ = client.Close()
			} else {
				logger.Info("webhook claims stored in redis")
				return idempotency.NewRedisStore(client, "surfspotter:webhook_events"), func() { _ = client.Close() }
			}
		}
	}
	if dbpool != nil {
		logger.Info("webhook claims stored in postgres")
		return store.NewProcessedEventStore(dbpool), func() {}
	}
	logger.Warn("webhook claims kept in memory; redelivery dedupe is per process")
	return idempotency.NewMemoryStore(), func() {}
}

func newPublisher(cfg config.Config, logger *slog.Logger) (app.EventPublisher, func()) {
	fallback := &paymentsrabbit.EventProducerFallback{Logger: logger}

	switch cfg.EventBroker {
	case config.BrokerRabbitMQ:
		if strings.TrimSpace(cfg.RabbitMQURL) == "" {
			logger.Warn("RABBITMQ_URL not set; using fallback publisher")
			return fallback, func() {}
		}
		producer, err := paymentsrabbit.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
			return fallback, func() {}
		}
		logger.Info("rabbitmq producer connected")
		return producer, producer.Close
	case config.BrokerKafka:
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.EventTopicPrefix)
		if err != nil {
			logger.Warn("failed to create Kafka producer, using fallback publisher", "error", err)
			return fallback, func() {}
		}
		logger.Info("kafka producer created", "topic", producer.Topic(app.EventsExchange))
		return producer, producer.Close
	default:
		return fallback, func() {}
	}
}
