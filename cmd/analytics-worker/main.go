package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/maiyom-backend/internal/analytics/router"
	"github.com/angelmondragon/maiyom-backend/internal/analytics/worker"
	"github.com/angelmondragon/maiyom-backend/internal/analytics/writer"
	"github.com/angelmondragon/maiyom-backend/pkg/bigquery"
	"github.com/angelmondragon/maiyom-backend/pkg/bootstrap"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/idempotency"
)

func main() {
	p := bootstrap.Start("analytics-worker")
	cfg, logg := p.Config, p.Logger

	redisClient := p.Redis()
	pubsubClient := p.PubSub()

	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	p.Must("bigquery", err)
	p.OnClose("bigquery", bqClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		p.Must("analytics subscription", errors.New("subscription not configured"))
	}

	dedupe, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	p.Must("idempotency manager", err)

	sink, err := writer.New(bqClient, writer.Config{MissionEventsTable: cfg.BigQuery.MissionEventsTable})
	p.Must("mission events writer", err)
	// Registered after the clients so buffered rows flush before they close.
	p.OnClose("mission events writer", func() error { return sink.Flush(context.Background()) })

	handler, err := router.NewRouter(sink, logg, nil)
	p.Must("analytics router", err)

	service, err := worker.NewService(subscription, handler, dedupe, logg)
	p.Must("analytics worker", err)

	p.Run(service.Run)
}
