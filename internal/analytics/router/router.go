package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/maiyom-backend/internal/analytics/types"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/registry"
)

var (
	ErrUnsupportedEventType = errors.New("unsupported analytics event type")
	ErrMalformedPayload     = errors.New("malformed analytics payload")
)

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertMissionEvent(ctx context.Context, row types.MissionEventRow) error
}

// Handler receives an envelope plus a decoded event payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// Router dispatches analytics envelopes to the configured handler per event
// type. Payloads decode through the outbox catalog so both sides agree on
// shapes and required fields.
type Router struct {
	handlers map[enums.OutboxEventType]Handler
	decoder  *registry.Decoder
	logg     *logger.Logger
}

// NewRouter wires the default handlers and allows overrides for specific events.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	row := func(build rowBuilder) Handler {
		return &rowHandler{writer: writer, logg: logg, build: build}
	}
	handlers := map[enums.OutboxEventType]Handler{
		enums.EventMissionCreated:          row(missionCreatedRow),
		enums.EventMissionBoosted:          row(missionBoostedRow),
		enums.EventOfferSubmitted:          row(offerSubmittedRow),
		enums.EventOfferCountered:          row(offerCounteredRow),
		enums.EventOfferRejected:           row(offerRejectedRow),
		enums.EventOfferAccepted:           row(offerAcceptedRow),
		enums.EventMissionPickedUp:         row(missionProgressRow),
		enums.EventMissionDelivered:        row(missionProgressRow),
		enums.EventMissionDisputed:         row(missionDisputedRow),
		enums.EventMissionCostAdded:        row(missionCostAddedRow),
		enums.EventMissionReceiptConfirmed: row(receiptConfirmedRow),
	}
	for event, custom := range overrides {
		if _, ok := handlers[event]; ok && custom != nil {
			handlers[event] = custom
		}
	}

	return &Router{
		handlers: handlers,
		decoder:  registry.NewDecoder(),
		logg:     logg,
	}, nil
}

// Handle dispatches the incoming envelope to the configured handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("%w: empty %s payload", ErrMalformedPayload, envelope.EventType)
	}
	payload, err := r.decoder.Decode(envelope.EventType, max(envelope.Version, registry.PayloadVersion), envelope.Payload)
	switch {
	case errors.Is(err, registry.ErrUnknownPayload):
		return fmt.Errorf("%w: %v", ErrUnsupportedEventType, err)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return handler.Handle(ctx, envelope, payload)
}
