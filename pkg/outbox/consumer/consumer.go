package consumer

import (
	"context"
	"errors"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

// Receiver is satisfied by *pubsub.Subscriber.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Deduper remembers which events a consumer has already handled.
type Deduper interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type HandlerFunc func(ctx context.Context, d Delivery) error

type dropError struct{ err error }

func (e dropError) Error() string { return e.err.Error() }
func (e dropError) Unwrap() error { return e.err }

// Drop marks a handler error that redelivery cannot fix. The message is
// acked and stays marked as processed.
func Drop(err error) error {
	if err == nil {
		return nil
	}
	return dropError{err: err}
}

func IsDropped(err error) bool {
	var d dropError
	return errors.As(err, &d)
}

type Params struct {
	// Name scopes the dedupe markers; two consumers of the same event must
	// use different names.
	Name         string
	Subscription Receiver
	Dedupe       Deduper
	Handle       HandlerFunc
	// Accept filters event types before dedupe. Nil accepts everything.
	Accept func(enums.OutboxEventType) bool
	Logger *logger.Logger
}

type Consumer struct {
	name   string
	sub    Receiver
	dedupe Deduper
	handle HandlerFunc
	accept func(enums.OutboxEventType) bool
	logg   *logger.Logger
}

func New(p Params) (*Consumer, error) {
	switch {
	case p.Name == "":
		return nil, errors.New("consumer name is required")
	case p.Subscription == nil:
		return nil, errors.New("subscription is required")
	case p.Dedupe == nil:
		return nil, errors.New("idempotency manager is required")
	case p.Handle == nil:
		return nil, errors.New("handler is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	accept := p.Accept
	if accept == nil {
		accept = func(enums.OutboxEventType) bool { return true }
	}
	return &Consumer{
		name:   p.Name,
		sub:    p.Subscription,
		dedupe: p.Dedupe,
		handle: p.Handle,
		accept: accept,
		logg:   p.Logger,
	}, nil
}

// Run receives until ctx ends or the subscription fails.
func (c *Consumer) Run(ctx context.Context) error {
	return c.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.Process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Process handles one message and reports whether it should be acked.
// Malformed, filtered and duplicate messages are acked; handler failures
// release the dedupe marker and nack so Pub/Sub redelivers.
func (c *Consumer) Process(ctx context.Context, msg *pubsub.Message) bool {
	ctx = c.logg.WithFields(ctx, map[string]any{"consumer": c.name, "message_id": msg.ID})

	d, err := Decode(msg)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dropping undecodable message")
		return true
	}
	ctx = c.logg.WithEvent(ctx, d.EventID.String(), string(d.EventType))
	if !c.accept(d.EventType) {
		c.logg.Debug(ctx, "event not handled by consumer")
		return true
	}

	seen, err := c.dedupe.CheckAndMarkProcessed(ctx, c.name, d.EventID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return false
	}
	if seen {
		c.logg.Info(ctx, "event already processed")
		return true
	}

	err = c.handle(ctx, d)
	switch {
	case err == nil:
		return true
	case IsDropped(err):
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "event dropped by handler")
		return true
	default:
		c.logg.Error(ctx, "event handling failed", err)
		if derr := c.dedupe.Delete(ctx, c.name, d.EventID); derr != nil {
			c.logg.Error(ctx, "releasing idempotency marker failed", derr)
		}
		return false
	}
}
