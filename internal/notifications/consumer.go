package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/consumer"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/registry"
	"github.com/angelmondragon/maiyom-backend/pkg/realtime"
)

const consumerName = "mission-notifications"

type inserter interface {
	Insert(ctx context.Context, notification *models.Notification) (bool, error)
}

// Consumer turns mission and offer events into per-recipient notifications
// and pushes each new row to the recipient's realtime topic.
type Consumer struct {
	*consumer.Consumer
	repo    inserter
	broker  realtime.Broker
	decoder *registry.Decoder
	logg    *logger.Logger
}

func NewConsumer(repo inserter, sub consumer.Receiver, dedupe consumer.Deduper, broker realtime.Broker, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	if broker == nil {
		return nil, errors.New("realtime broker required")
	}
	c := &Consumer{repo: repo, broker: broker, decoder: registry.NewDecoder(), logg: logg}
	inner, err := consumer.New(consumer.Params{
		Name:         consumerName,
		Subscription: sub,
		Dedupe:       dedupe,
		Handle:       c.handle,
		Accept:       routable,
		Logger:       logg,
	})
	if err != nil {
		return nil, err
	}
	c.Consumer = inner
	return c, nil
}

func (c *Consumer) handle(ctx context.Context, d consumer.Delivery) error {
	payload, err := c.decoder.Decode(d.EventType, d.Version, d.Data)
	if err != nil {
		return consumer.Drop(err)
	}
	rows, err := route(d.EventID, payload)
	if err != nil {
		return consumer.Drop(err)
	}
	return c.deliver(ctx, rows)
}

// deliver stores each row and publishes the new ones. A failed publish is
// only logged; clients catch up from the list endpoint.
func (c *Consumer) deliver(ctx context.Context, rows []models.Notification) error {
	sent := 0
	for i := range rows {
		row := &rows[i]
		if row.UserID == uuid.Nil {
			continue
		}
		created, err := c.repo.Insert(ctx, row)
		if err != nil {
			return err
		}
		if !created {
			continue
		}
		sent++
		if err := c.broker.Publish(ctx, Topic(row.UserID), toView(row)); err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "realtime notification publish failed")
		}
	}
	c.logg.Info(c.logg.WithField(ctx, "recipients", sent), "notifications delivered")
	return nil
}
