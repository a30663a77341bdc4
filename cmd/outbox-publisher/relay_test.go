package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/registry"
)

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type deadLettered struct {
	eventID  uuid.UUID
	reason   enums.OutboxDLQErrorReason
	cause    error
	attempts int
}

type fakeOutbox struct {
	batch     []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	dead      []deadLettered
}

func (f *fakeOutbox) ClaimBatchTx(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.batch, nil
}

func (f *fakeOutbox) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutbox) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeOutbox) DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, terminalAttempts int) error {
	f.dead = append(f.dead, deadLettered{eventID: event.ID, reason: reason, cause: cause, attempts: terminalAttempts})
	return nil
}

type fakeResolver struct {
	fail map[uuid.UUID]error
}

func (f fakeResolver) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if err := f.fail[event.ID]; err != nil {
		return nil, err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: event.EventType, Topic: "missions"},
		Envelope:   outbox.PayloadEnvelope{EventID: "evt-" + event.ID.String()},
	}, nil
}

type recordingPublisher struct {
	errs map[string]error
	sent []*gcppubsub.Message
}

func (p *recordingPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	p.sent = append(p.sent, msg)
	if err := p.errs[msg.Attributes["aggregate_id"]]; err != nil {
		return "", err
	}
	return "server-id", nil
}

type singleTopic struct {
	pub *recordingPublisher
}

func (s singleTopic) For(string) publisher { return s.pub }

type relayFixture struct {
	relay  *Relay
	outbox *fakeOutbox
	pub    *recordingPublisher
}

func newRelayFixture(t *testing.T, batch []models.OutboxEvent, resolver fakeResolver, pubErrs map[string]error) relayFixture {
	t.Helper()
	fx := relayFixture{
		outbox: &fakeOutbox{batch: batch},
		pub:    &recordingPublisher{errs: pubErrs},
	}
	relay, err := NewRelay(RelayParams{
		Config:     config.OutboxConfig{BatchSize: 10, MaxAttempts: 3},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		DB:         fakeDB{},
		Outbox:     fx.outbox,
		Registry:   resolver,
		Publishers: singleTopic{pub: fx.pub},
	})
	require.NoError(t, err)
	fx.relay = relay
	return fx
}

func missionEvent(attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventMissionCreated,
		AggregateType: enums.AggregateMission,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		CreatedAt:     time.Now().Add(-time.Second),
		AttemptCount:  attempts,
	}
}

func TestDrainContinuesPastFailedEvent(t *testing.T) {
	failing, ok := missionEvent(0), missionEvent(0)
	fx := newRelayFixture(t, []models.OutboxEvent{failing, ok}, fakeResolver{},
		map[string]error{failing.AggregateID.String(): errors.New("deadline exceeded")})

	handled, err := fx.relay.drainOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, handled)
	assert.Equal(t, []uuid.UUID{failing.ID}, fx.outbox.failed)
	assert.Equal(t, []uuid.UUID{ok.ID}, fx.outbox.published)
	assert.Empty(t, fx.outbox.dead)
}

func TestPublishSetsAttributesAndMissionOrderingKey(t *testing.T) {
	event := missionEvent(0)
	fx := newRelayFixture(t, []models.OutboxEvent{event}, fakeResolver{}, nil)

	_, err := fx.relay.drainOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, fx.pub.sent, 1)

	msg := fx.pub.sent[0]
	assert.Equal(t, event.AggregateID.String(), msg.OrderingKey)
	assert.Equal(t, "evt-"+event.ID.String(), msg.Attributes["event_id"])
	assert.Equal(t, string(enums.EventMissionCreated), msg.Attributes["event_type"])
	assert.Equal(t, string(enums.AggregateMission), msg.Attributes["aggregate_type"])
	assert.JSONEq(t, string(event.Payload), string(msg.Data))
}

func TestOrderingKeyUsesMissionOfOfferEvents(t *testing.T) {
	missionID := uuid.New()
	offer := models.OutboxEvent{
		AggregateType: enums.AggregateOffer,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{"mission_id":"` + missionID.String() + `"}}`),
	}
	assert.Equal(t, missionID.String(), orderingKey(offer))

	offer.Payload = json.RawMessage(`{"version":1,"data":{}}`)
	assert.Equal(t, offer.AggregateID.String(), orderingKey(offer))

	offer.Payload = json.RawMessage(`not json`)
	assert.Equal(t, offer.AggregateID.String(), orderingKey(offer))
}

func TestUnresolvableEventIsDeadLettered(t *testing.T) {
	event := missionEvent(0)
	resolver := fakeResolver{fail: map[uuid.UUID]error{event.ID: errors.New("unknown event type")}}
	fx := newRelayFixture(t, []models.OutboxEvent{event}, resolver, nil)

	_, err := fx.relay.drainOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, fx.outbox.dead, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, fx.outbox.dead[0].reason)
	assert.Equal(t, event.ID, fx.outbox.dead[0].eventID)
	assert.Equal(t, 3, fx.outbox.dead[0].attempts)
	assert.Empty(t, fx.pub.sent)
}

func TestNonRetryablePublishErrorIsDeadLettered(t *testing.T) {
	event := missionEvent(0)
	fx := newRelayFixture(t, []models.OutboxEvent{event}, fakeResolver{},
		map[string]error{event.AggregateID.String(): registry.NewNonRetryableError(errors.New("payload too large"))})

	_, err := fx.relay.drainOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, fx.outbox.dead, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, fx.outbox.dead[0].reason)
	assert.Empty(t, fx.outbox.failed)
}

func TestLastAttemptIsDeadLettered(t *testing.T) {
	event := missionEvent(2)
	fx := newRelayFixture(t, []models.OutboxEvent{event}, fakeResolver{},
		map[string]error{event.AggregateID.String(): errors.New("unavailable")})

	_, err := fx.relay.drainOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, fx.outbox.dead, 1)
	entry := fx.outbox.dead[0]
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.reason)
	require.Error(t, entry.cause)
	assert.Contains(t, entry.cause.Error(), "gave up after 3 attempts")
	assert.Equal(t, event.ID, entry.eventID)
}

func TestNewRelayRequiresCollaborators(t *testing.T) {
	_, err := NewRelay(RelayParams{Logger: logger.New(logger.Options{Output: io.Discard})})
	assert.Error(t, err)
}

func TestBackoffDoublesUntilCap(t *testing.T) {
	b := newBackoff(time.Second)
	var last time.Duration
	for range 10 {
		last = b.fail()
	}
	assert.GreaterOrEqual(t, last, maxBackoff)
	assert.Less(t, last, maxBackoff+jitter)

	b.reset()
	first := b.fail()
	assert.GreaterOrEqual(t, first, 2*time.Second)
	assert.Less(t, first, 2*time.Second+jitter)
}
