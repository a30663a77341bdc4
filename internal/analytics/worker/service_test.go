package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/maiyom-backend/internal/analytics/router"
	"github.com/angelmondragon/maiyom-backend/internal/analytics/types"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
)

type idleReceiver struct{}

func (idleReceiver) Receive(ctx context.Context, _ func(context.Context, *gcppubsub.Message)) error {
	<-ctx.Done()
	return ctx.Err()
}

type recordingHandler struct {
	envelopes []types.Envelope
	err       error
}

func (h *recordingHandler) Handle(_ context.Context, envelope types.Envelope) error {
	h.envelopes = append(h.envelopes, envelope)
	return h.err
}

type dedupeLog struct {
	seen    map[uuid.UUID]bool
	deleted int
}

func (d *dedupeLog) CheckAndMarkProcessed(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	already := d.seen[id]
	d.seen[id] = true
	return already, nil
}

func (d *dedupeLog) Delete(_ context.Context, _ string, id uuid.UUID) error {
	delete(d.seen, id)
	d.deleted++
	return nil
}

func newTestService(t *testing.T, handler *recordingHandler) (*Service, *dedupeLog) {
	t.Helper()
	dedupe := &dedupeLog{seen: map[uuid.UUID]bool{}}
	svc, err := NewService(idleReceiver{}, handler, dedupe, logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}))
	require.NoError(t, err)
	return svc, dedupe
}

func offerMessage(t *testing.T, eventID uuid.UUID, occurredAt time.Time) *gcppubsub.Message {
	t.Helper()
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: occurredAt,
		Data:       json.RawMessage(`{"mission_id":"m-1"}`),
	})
	require.NoError(t, err)
	return &gcppubsub.Message{
		ID:   "msg-1",
		Data: body,
		Attributes: map[string]string{
			"event_type":     string(enums.EventOfferSubmitted),
			"aggregate_type": string(enums.AggregateOffer),
			"aggregate_id":   "offer-1",
		},
	}
}

func TestHandlerReceivesEnvelope(t *testing.T) {
	handler := &recordingHandler{}
	svc, _ := newTestService(t, handler)
	eventID := uuid.New()
	occurredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, svc.consumer.Process(context.Background(), offerMessage(t, eventID, occurredAt)))
	require.Len(t, handler.envelopes, 1)

	env := handler.envelopes[0]
	assert.Equal(t, eventID.String(), env.EventID)
	assert.Equal(t, enums.EventOfferSubmitted, env.EventType)
	assert.Equal(t, enums.AggregateOffer, env.AggregateType)
	assert.Equal(t, "offer-1", env.AggregateID)
	assert.Equal(t, occurredAt, env.OccurredAt)
	assert.JSONEq(t, `{"mission_id":"m-1"}`, string(env.Payload))
}

func TestRedeliveredEventIsHandledOnce(t *testing.T) {
	handler := &recordingHandler{}
	svc, _ := newTestService(t, handler)
	msg := offerMessage(t, uuid.New(), time.Now())

	assert.True(t, svc.consumer.Process(context.Background(), msg))
	assert.True(t, svc.consumer.Process(context.Background(), msg))
	assert.Len(t, handler.envelopes, 1)
}

func TestUnsupportedEventIsAcked(t *testing.T) {
	handler := &recordingHandler{err: fmt.Errorf("offer_submitted: %w", router.ErrUnsupportedEventType)}
	svc, dedupe := newTestService(t, handler)

	assert.True(t, svc.consumer.Process(context.Background(), offerMessage(t, uuid.New(), time.Now())))
	assert.Zero(t, dedupe.deleted)
}

func TestHandlerFailureIsRetried(t *testing.T) {
	handler := &recordingHandler{err: errors.New("bigquery unavailable")}
	svc, dedupe := newTestService(t, handler)

	assert.False(t, svc.consumer.Process(context.Background(), offerMessage(t, uuid.New(), time.Now())))
	assert.Equal(t, 1, dedupe.deleted)
}

func TestNewServiceRequiresHandler(t *testing.T) {
	_, err := NewService(idleReceiver{}, nil, &dedupeLog{}, logger.New(logger.Options{Output: io.Discard}))
	assert.Error(t, err)
}
