package main

import (
	"errors"

	"github.com/angelmondragon/maiyom-backend/internal/notifications"
	"github.com/angelmondragon/maiyom-backend/pkg/bootstrap"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/maiyom-backend/pkg/realtime"
)

func main() {
	p := bootstrap.Start("worker")

	dbClient := p.Database()
	redisClient := p.Redis()
	pubsubClient := p.PubSub()

	broker, err := realtime.NewRedisBroker(redisClient, p.Logger)
	p.Must("realtime broker", err)
	p.OnClose("realtime broker", broker.Close)

	subscription := pubsubClient.NotificationSubscription()
	if subscription == nil {
		p.Must("notification subscription", errors.New("subscription not configured"))
	}

	dedupe, err := idempotency.NewManager(redisClient, p.Config.Eventing.OutboxIdempotencyTTL)
	p.Must("idempotency manager", err)

	notificationConsumer, err := notifications.NewConsumer(
		notifications.NewRepository(dbClient.DB()),
		subscription,
		dedupe,
		broker,
		p.Logger,
	)
	p.Must("notification consumer", err)

	service, err := NewService(ServiceParams{
		Logger: p.Logger,
		Dependencies: []Dependency{
			{Name: "database", Ping: dbClient.Ping},
			{Name: "redis", Ping: redisClient.Ping},
			{Name: "pubsub", Ping: pubsubClient.Ping},
		},
		Consumers: []Consumer{
			{Name: "notifications", Run: notificationConsumer.Run},
		},
	})
	p.Must("worker service", err)

	p.Run(service.Run)
}
