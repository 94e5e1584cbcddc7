package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/settlement-engine/internal/cron"
	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/settlement"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/migrate"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

// run wires the scheduler and blocks until ctx ends. Every resource it opens
// is closed before it returns.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

	// Expiring an order restocks it and notifies the buyer, so the job runs
	// through the same coordinator and dispatcher the API uses.
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		DB:             dbClient,
		Outbox:         outboxService,
		Logger:         logg,
		Metrics:        settlementMetrics,
		QueueSize:      cfg.Notifications.QueueSize,
		Workers:        cfg.Notifications.Workers,
		PublishTimeout: cfg.Notifications.PublishTimeout,
	})
	if err != nil {
		return fmt.Errorf("notification dispatcher: %w", err)
	}
	dispatcher.Start()
	defer dispatcher.Close()

	coordinator, err := settlement.NewFromConfig(cfg, settlement.Deps{
		DB:       dbClient,
		Outbox:   outboxService,
		Notifier: dispatcher,
		Logger:   logg,
		Metrics:  settlementMetrics,
	})
	if err != nil {
		return fmt.Errorf("settlement coordinator: %w", err)
	}

	schedule, err := buildSchedule(cfg, logg, dbClient, outboxRepo, coordinator)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, serviceKind+":"+envOrLocal(cfg.App.Env), 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: schedule,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Tick:     cfg.Cron.Tick,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, nil, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func buildSchedule(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, outboxRepo *outbox.Repository, expirer *settlement.Coordinator) (*cron.Registry, error) {
	orderTTL, err := cron.NewOrderTTLJob(cron.OrderTTLJobParams{
		Logger:    logg,
		Orders:    orders.NewRepository(dbClient.DB()),
		Expirer:   expirer,
		TTL:       cfg.Orders.PendingTTL,
		BatchSize: cfg.Orders.ExpiryBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("order ttl job: %w", err)
	}

	retention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:   "retention",
		Logger: logg,
		Targets: []cron.RetentionTarget{
			{Table: "outbox_events", Keep: cfg.Outbox.Retention, Prune: outboxRepo.DeletePublishedBefore},
			{Table: "outbox_dlq", Keep: cfg.Outbox.DLQRetention, Prune: outbox.NewDLQRepository(dbClient.DB()).DeleteBefore},
			{Table: "notifications", Keep: cfg.Notifications.ReadRetention, Prune: notifications.NewRepository(dbClient.DB()).DeleteReadBefore},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("retention job: %w", err)
	}

	return cron.NewRegistry().
		Every(cfg.Cron.OrderExpiryEvery, orderTTL).
		Every(cfg.Cron.RetentionEvery, retention), nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
