package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
)

type memoryDedupe struct {
	seen    map[uuid.UUID]bool
	err     error
	deleted []uuid.UUID
}

func (m *memoryDedupe) CheckAndMarkProcessed(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[id] {
		return true, nil
	}
	m.seen[id] = true
	return false, nil
}

func (m *memoryDedupe) Delete(_ context.Context, _ string, id uuid.UUID) error {
	delete(m.seen, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type idleReceiver struct{}

func (idleReceiver) Receive(ctx context.Context, _ func(context.Context, *pubsub.Message)) error {
	<-ctx.Done()
	return ctx.Err()
}

func message(t *testing.T, eventID uuid.UUID, eventType enums.OutboxEventType) *pubsub.Message {
	t.Helper()
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    2,
		EventID:    eventID.String(),
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Actor:      &outbox.ActorRef{UserID: uuid.New(), Role: "runner"},
		Data:       json.RawMessage(`{"mission_id":"m-1"}`),
	})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:   "msg-1",
		Data: body,
		Attributes: map[string]string{
			"event_type":     string(eventType),
			"aggregate_type": string(enums.AggregateOffer),
			"aggregate_id":   "offer-1",
		},
	}
}

func newConsumer(t *testing.T, dedupe Deduper, handle HandlerFunc, accept func(enums.OutboxEventType) bool) *Consumer {
	t.Helper()
	c, err := New(Params{
		Name:         "test-consumer",
		Subscription: idleReceiver{},
		Dedupe:       dedupe,
		Handle:       handle,
		Accept:       accept,
		Logger:       logger.New(logger.Options{ServiceName: "consumer-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return c
}

func TestDecodeReadsEnvelopeAndAttributes(t *testing.T) {
	eventID := uuid.New()
	d, err := Decode(message(t, eventID, enums.EventOfferSubmitted))
	require.NoError(t, err)

	assert.Equal(t, eventID, d.EventID)
	assert.Equal(t, enums.EventOfferSubmitted, d.EventType)
	assert.Equal(t, enums.AggregateOffer, d.AggregateType)
	assert.Equal(t, "offer-1", d.AggregateID)
	assert.Equal(t, 2, d.Version)
	assert.Equal(t, "msg-1", d.MessageID)
	require.NotNil(t, d.Actor)
	assert.JSONEq(t, `{"mission_id":"m-1"}`, string(d.Data))
}

func TestDecodeFallsBackToAttributes(t *testing.T) {
	eventID := uuid.New()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := &pubsub.Message{
		Data: []byte(`{"data":{}}`),
		Attributes: map[string]string{
			"event_id":       eventID.String(),
			"event_type":     string(enums.EventMissionCreated),
			"aggregate_type": string(enums.AggregateMission),
			"aggregate_id":   "m-1",
			"created_at":     created.Format(time.RFC3339Nano),
		},
	}
	d, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, eventID, d.EventID)
	assert.Equal(t, created, d.OccurredAt)
	assert.Equal(t, 1, d.Version)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid := message(t, uuid.New(), enums.EventOfferSubmitted)
	cases := map[string]func(m *pubsub.Message){
		"body":           func(m *pubsub.Message) { m.Data = []byte("not json") },
		"event type":     func(m *pubsub.Message) { m.Attributes["event_type"] = "runner_teleported" },
		"aggregate type": func(m *pubsub.Message) { m.Attributes["aggregate_type"] = "" },
		"aggregate id":   func(m *pubsub.Message) { delete(m.Attributes, "aggregate_id") },
		"event id":       func(m *pubsub.Message) { m.Data = []byte(`{"eventId":"evt-1","data":{}}`) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			attrs := map[string]string{}
			for k, v := range valid.Attributes {
				attrs[k] = v
			}
			msg := &pubsub.Message{Data: valid.Data, Attributes: attrs}
			mutate(msg)
			_, err := Decode(msg)
			assert.Error(t, err)
		})
	}
}

func TestProcessHandlesOnce(t *testing.T) {
	dedupe := &memoryDedupe{seen: map[uuid.UUID]bool{}}
	calls := 0
	c := newConsumer(t, dedupe, func(context.Context, Delivery) error { calls++; return nil }, nil)
	msg := message(t, uuid.New(), enums.EventOfferSubmitted)

	assert.True(t, c.Process(context.Background(), msg))
	assert.True(t, c.Process(context.Background(), msg))
	assert.Equal(t, 1, calls)
}

func TestProcessNacksAndReleasesOnFailure(t *testing.T) {
	dedupe := &memoryDedupe{seen: map[uuid.UUID]bool{}}
	fail := true
	c := newConsumer(t, dedupe, func(context.Context, Delivery) error {
		if fail {
			return errors.New("db down")
		}
		return nil
	}, nil)
	eventID := uuid.New()
	msg := message(t, eventID, enums.EventOfferSubmitted)

	assert.False(t, c.Process(context.Background(), msg))
	assert.Equal(t, []uuid.UUID{eventID}, dedupe.deleted)

	fail = false
	assert.True(t, c.Process(context.Background(), msg))
}

func TestProcessAcksDroppedAndFiltered(t *testing.T) {
	dedupe := &memoryDedupe{seen: map[uuid.UUID]bool{}}
	handled := 0
	c := newConsumer(t, dedupe,
		func(context.Context, Delivery) error { handled++; return Drop(errors.New("unsupported")) },
		func(et enums.OutboxEventType) bool { return et != enums.EventMissionCreated })

	assert.True(t, c.Process(context.Background(), message(t, uuid.New(), enums.EventMissionCreated)))
	assert.Equal(t, 0, handled)
	assert.Empty(t, dedupe.seen)

	assert.True(t, c.Process(context.Background(), message(t, uuid.New(), enums.EventOfferSubmitted)))
	assert.Equal(t, 1, handled)
	assert.Empty(t, dedupe.deleted)
}

func TestProcessNacksWhenDedupeUnavailable(t *testing.T) {
	dedupe := &memoryDedupe{seen: map[uuid.UUID]bool{}, err: errors.New("redis down")}
	c := newConsumer(t, dedupe, func(context.Context, Delivery) error { return nil }, nil)
	assert.False(t, c.Process(context.Background(), message(t, uuid.New(), enums.EventOfferSubmitted)))
}

func TestProcessAcksUndecodable(t *testing.T) {
	dedupe := &memoryDedupe{seen: map[uuid.UUID]bool{}}
	c := newConsumer(t, dedupe, func(context.Context, Delivery) error { return nil }, nil)
	assert.True(t, c.Process(context.Background(), &pubsub.Message{Data: []byte("junk")}))
}

func TestNewValidatesParams(t *testing.T) {
	_, err := New(Params{Name: "x"})
	assert.Error(t, err)
	assert.Nil(t, Drop(nil))
	assert.True(t, IsDropped(Drop(errors.New("x"))))
}
