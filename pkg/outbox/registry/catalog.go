// Package registry knows every outbox event type: where it is published and
// how its payload decodes.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never be published as is.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
	}
}

// catalog lists every event the services emit. Offer acceptance is keyed on
// the mission because it settles the whole mission.
var catalog = []EventDescriptor{
	describe[payloads.MissionCreatedEvent](enums.EventMissionCreated, enums.AggregateMission),
	describe[payloads.MissionBoostedEvent](enums.EventMissionBoosted, enums.AggregateMission),
	describe[payloads.MissionProgressEvent](enums.EventMissionPickedUp, enums.AggregateMission),
	describe[payloads.MissionProgressEvent](enums.EventMissionDelivered, enums.AggregateMission),
	describe[payloads.MissionDisputedEvent](enums.EventMissionDisputed, enums.AggregateMission),
	describe[payloads.MissionCostAddedEvent](enums.EventMissionCostAdded, enums.AggregateMission),
	describe[payloads.MissionReceiptConfirmedEvent](enums.EventMissionReceiptConfirmed, enums.AggregateMission),
	describe[payloads.OfferSubmittedEvent](enums.EventOfferSubmitted, enums.AggregateOffer),
	describe[payloads.OfferCounteredEvent](enums.EventOfferCountered, enums.AggregateOffer),
	describe[payloads.OfferRejectedEvent](enums.EventOfferRejected, enums.AggregateOffer),
	describe[payloads.OfferAcceptedEvent](enums.EventOfferAccepted, enums.AggregateMission),
}

type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	validate *validator.Validate
}

// NewEventRegistry routes every event to the missions topic so each
// subscription sees one ordered stream.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.MissionsTopic == "" {
		return nil, errors.New("missions topic is required")
	}
	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor, len(catalog)),
		validate: validator.New(),
	}
	for _, desc := range catalog {
		desc.Topic = cfg.MissionsTopic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// EventTypes lists the registered types in sorted order.
func (r *EventRegistry) EventTypes() []enums.OutboxEventType {
	types := make([]enums.OutboxEventType, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s %s: %w", event.EventType, event.ID, err))
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, errors.New("unsupported event type")
	}
	if desc.AggregateType != event.AggregateType {
		return nil, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, errors.New("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, errors.New("payload missing")
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := r.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
