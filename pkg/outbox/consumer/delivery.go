// Package consumer receives relayed outbox events from Pub/Sub, dedupes them
// per consumer and hands them to a handler.
package consumer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
)

const defaultVersion = 1

// Delivery is one outbox event as received by a subscriber.
type Delivery struct {
	MessageID     string
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Version       int
	OccurredAt    time.Time
	Actor         *outbox.ActorRef
	Data          json.RawMessage
}

// Decode reads the stored envelope from the message body and the routing
// fields from the attributes the relay sets.
func Decode(msg *pubsub.Message) (Delivery, error) {
	if msg == nil {
		return Delivery{}, errors.New("nil message")
	}
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return Delivery{}, fmt.Errorf("decode payload envelope: %w", err)
	}
	attr := func(name string) string { return strings.TrimSpace(msg.Attributes[name]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return Delivery{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return Delivery{}, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return Delivery{}, errors.New("aggregate_id missing")
	}

	rawID := strings.TrimSpace(env.EventID)
	if rawID == "" {
		rawID = attr("event_id")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return Delivery{}, fmt.Errorf("event_id %q: %w", rawID, err)
	}

	occurredAt := env.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			occurredAt = parsed
		}
	}
	version := env.Version
	if version <= 0 {
		version = defaultVersion
	}

	return Delivery{
		MessageID:     msg.ID,
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       version,
		OccurredAt:    occurredAt.UTC(),
		Actor:         env.Actor,
		Data:          env.Data,
	}, nil
}
