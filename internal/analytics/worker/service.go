// Package worker feeds relayed mission events into the analytics router.
package worker

import (
	"context"
	"errors"

	"github.com/angelmondragon/maiyom-backend/internal/analytics/router"
	"github.com/angelmondragon/maiyom-backend/internal/analytics/types"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/consumer"
)

const consumerName = "mission-analytics"

// Handler processes one analytics envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type Service struct {
	consumer *consumer.Consumer
	handler  Handler
}

func NewService(sub consumer.Receiver, handler Handler, dedupe consumer.Deduper, logg *logger.Logger) (*Service, error) {
	if handler == nil {
		return nil, errors.New("analytics handler is required")
	}
	s := &Service{handler: handler}
	c, err := consumer.New(consumer.Params{
		Name:         consumerName,
		Subscription: sub,
		Dedupe:       dedupe,
		Handle:       s.handle,
		Logger:       logg,
	})
	if err != nil {
		return nil, err
	}
	s.consumer = c
	return s, nil
}

// Run consumes until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	return s.consumer.Run(ctx)
}

func (s *Service) handle(ctx context.Context, d consumer.Delivery) error {
	err := s.handler.Handle(ctx, envelopeOf(d))
	if errors.Is(err, router.ErrUnsupportedEventType) || errors.Is(err, router.ErrMalformedPayload) {
		return consumer.Drop(err)
	}
	return err
}

func envelopeOf(d consumer.Delivery) types.Envelope {
	return types.Envelope{
		EventID:       d.EventID.String(),
		Version:       d.Version,
		EventType:     d.EventType,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		OccurredAt:    d.OccurredAt,
		Payload:       d.Data,
	}
}
