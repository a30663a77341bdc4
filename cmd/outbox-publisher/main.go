package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/maiyom-backend/pkg/bootstrap"
	"github.com/angelmondragon/maiyom-backend/pkg/metrics"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/registry"
)

func main() {
	p := bootstrap.Start("outbox-publisher")

	dbClient := p.Database()
	pubsubClient := p.PubSub()

	eventRegistry, err := registry.NewEventRegistry(p.Config.PubSub)
	p.Must("event registry", err)

	publishers := newTopicPublishers(pubsubClient)
	p.OnClose("topic publishers", func() error {
		publishers.Stop()
		return nil
	})

	relay, err := NewRelay(RelayParams{
		Config:     p.Config.Outbox,
		Logger:     p.Logger,
		DB:         dbClient,
		Outbox:     outbox.NewRepository(dbClient.DB()),
		Registry:   eventRegistry,
		Publishers: publishers,
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	p.Must("outbox relay", err)

	p.Run(relay.Run)
}
