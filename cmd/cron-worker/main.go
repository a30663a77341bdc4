package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/maiyom-backend/internal/cron"
	"github.com/angelmondragon/maiyom-backend/internal/ledger"
	"github.com/angelmondragon/maiyom-backend/internal/missions"
	"github.com/angelmondragon/maiyom-backend/internal/notifications"
	"github.com/angelmondragon/maiyom-backend/internal/offers"
	"github.com/angelmondragon/maiyom-backend/pkg/bootstrap"
	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/db"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/metrics"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
)

func main() {
	p := bootstrap.Start("cron-worker")
	cfg := p.Config

	dbClient := p.Database()
	redisClient := p.Redis()

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.Interval)
	p.Must("cron lock", err)

	registry, err := buildRegistry(cfg, p.Logger, dbClient)
	p.Must("cron jobs", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   p.Logger,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	p.Must("cron service", err)

	p.Run(service.Run)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	offersService, err := offers.NewService(offers.ServiceParams{
		Repo:     offers.NewRepository(dbClient.DB()),
		Missions: missions.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Outbox:   outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Ledger:   ledgerService,
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}

	notificationJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "notification-cleanup",
		Logger:    logg,
		Purge:     notifications.NewRepository(dbClient.DB()).DeleteOlderThan,
		Retention: cfg.Cron.NotificationRetention,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	outboxJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "outbox-retention",
		Logger:    logg,
		Purge:     outbox.NewRepository(dbClient.DB()).DeletePublishedBefore,
		Retention: cfg.Cron.OutboxRetention,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	staleOfferJob, err := cron.NewStaleOfferJob(cron.StaleOfferJobParams{
		Logger:    logg,
		Offers:    offersService,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(staleOfferJob, notificationJob, outboxJob)
}

// lockName scopes the cycle lock per environment so staging and production
// workers sharing a Redis do not block each other.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
