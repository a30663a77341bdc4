package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/metrics"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/registry"
)

const publishTimeout = 15 * time.Second

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxStore interface {
	ClaimBatchTx(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
	DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, terminalAttempts int) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Outbox     outboxStore
	Registry   eventResolver
	Publishers publisherSet
	Metrics    *metrics.OutboxMetrics
}

// Relay moves committed outbox rows to Pub/Sub. Rows are claimed, published
// and marked inside one transaction, so a crash mid-batch republishes rather
// than loses events; consumers dedupe on event_id.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxStore
	registry    eventResolver
	publishers  publisherSet
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	idle        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("outbox relay: logger is required")
	case p.DB == nil:
		return nil, errors.New("outbox relay: database is required")
	case p.Outbox == nil:
		return nil, errors.New("outbox relay: outbox store is required")
	case p.Registry == nil:
		return nil, errors.New("outbox relay: event registry is required")
	case p.Publishers == nil:
		return nil, errors.New("outbox relay: publishers are required")
	}
	return &Relay{
		logg:        p.Logger,
		db:          p.DB,
		outbox:      p.Outbox,
		registry:    p.Registry,
		publishers:  p.Publishers,
		metrics:     p.Metrics,
		batchSize:   orDefault(p.Config.BatchSize, 50),
		maxAttempts: orDefault(p.Config.MaxAttempts, 10),
		idle:        time.Duration(orDefault(p.Config.PollIntervalMS, 500)) * time.Millisecond,
	}, nil
}

// Run drains the outbox until ctx ends. A non-empty batch is followed
// immediately by the next one; an empty batch waits one poll interval;
// failures back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	wait := newBackoff(r.idle)
	for {
		handled, err := r.drainOnce(ctx)
		var pause time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			pause = wait.fail()
		case handled > 0:
			wait.reset()
			continue
		default:
			wait.reset()
			pause = wait.idle()
		}
		if err := sleepCtx(ctx, pause); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}
	}
}

// drainOnce claims one batch and settles every row in it. It returns the
// number of rows handled.
func (r *Relay) drainOnce(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.outbox.ClaimBatchTx(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		for _, event := range events {
			if err := r.settle(ctx, tx, event, r.deliver(ctx, event)); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

type verdict int

const (
	published verdict = iota
	retryLater
	deadLetter
)

type delivery struct {
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	topic   string
	eventID string
	err     error
}

// deliver resolves and publishes one row and classifies the result.
func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return delivery{verdict: deadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	d := delivery{topic: resolved.Descriptor.Topic, eventID: resolved.Envelope.EventID}

	err = r.publish(ctx, event, resolved)
	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		d.verdict = published
	case errors.As(err, &permanent):
		d.verdict, d.reason, d.err = deadLetter, enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= r.maxAttempts:
		d.verdict, d.reason = deadLetter, enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err)
	default:
		d.verdict, d.err = retryLater, err
	}
	return d
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publishers.For(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	_, err := pub.Publish(ctx, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: orderingKey(event),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	return err
}

// settle records the delivery outcome on the outbox row.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, d delivery) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_id":      d.eventID,
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"topic":         d.topic,
		"attempt_count": event.AttemptCount,
	})

	switch d.verdict {
	case published:
		if err := r.outbox.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		r.metrics.Observe(string(event.EventType), metrics.OutboxPublished)
		r.metrics.ObserveLag(event.CreatedAt)
		r.logg.Debug(ctx, "outbox event published")

	case retryLater:
		if err := r.outbox.MarkFailedTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark %s failed: %w", event.ID, err)
		}
		r.metrics.Observe(string(event.EventType), metrics.OutboxRetry)
		r.logg.Warn(r.logg.WithField(ctx, "error", d.err.Error()), "outbox publish failed; will retry")

	case deadLetter:
		if err := r.outbox.DeadLetterTx(tx, event, d.reason, d.err, r.maxAttempts); err != nil {
			return fmt.Errorf("dead-letter %s: %w", event.ID, err)
		}
		r.metrics.Observe(string(event.EventType), metrics.OutboxDeadLetter)
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"error": d.err.Error(), "error_reason": d.reason}), "outbox event dead-lettered")
	}
	return nil
}

// orderingKey groups every event of one mission, including offer events that
// carry mission_id in their data, so subscribers observe them in commit order.
func orderingKey(event models.OutboxEvent) string {
	if event.AggregateType != enums.AggregateMission {
		var envelope outbox.PayloadEnvelope
		var data struct {
			MissionID uuid.UUID `json:"mission_id"`
		}
		if json.Unmarshal(event.Payload, &envelope) == nil &&
			json.Unmarshal(envelope.Data, &data) == nil &&
			data.MissionID != uuid.Nil {
			return data.MissionID.String()
		}
	}
	return event.AggregateID.String()
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
