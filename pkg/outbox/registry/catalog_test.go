package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{MissionsTopic: "missions-topic"})
	require.NoError(t, err)
	return reg
}

func envelopeRow(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, data any) models.OutboxEvent {
	t.Helper()
	raw, ok := data.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(data)
		require.NoError(t, err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err)
}

func TestResolveOfferAccepted(t *testing.T) {
	reg := testRegistry(t)
	runnerID := uuid.New()
	row := envelopeRow(t, enums.EventOfferAccepted, enums.AggregateMission, payloads.OfferAcceptedEvent{
		OfferID:        uuid.New(),
		MissionID:      uuid.New(),
		RequesterID:    uuid.New(),
		RunnerID:       runnerID,
		AgreedPrice:    decimal.RequireFromString("150.50"),
		RejectedOffers: []payloads.RejectedOfferRef{{OfferID: uuid.New(), RunnerID: uuid.New()}},
	})

	resolved, err := reg.Resolve(row)
	require.NoError(t, err)
	assert.Equal(t, "missions-topic", resolved.Descriptor.Topic)
	assert.NotEmpty(t, resolved.Envelope.EventID)

	payload, ok := resolved.Payload.(*payloads.OfferAcceptedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, runnerID, payload.RunnerID)
	assert.Len(t, payload.RejectedOffers, 1)
	assert.True(t, payload.AgreedPrice.Equal(decimal.RequireFromString("150.5")))
}

func TestResolveRejects(t *testing.T) {
	missionID := uuid.New()
	cases := map[string]func(t *testing.T) models.OutboxEvent{
		"unknown type": func(t *testing.T) models.OutboxEvent {
			return envelopeRow(t, enums.OutboxEventType("mission_archived"), enums.AggregateMission, []byte(`{}`))
		},
		"aggregate mismatch": func(t *testing.T) models.OutboxEvent {
			return envelopeRow(t, enums.EventOfferSubmitted, enums.AggregateMission,
				payloads.OfferSubmittedEvent{OfferID: uuid.New(), MissionID: missionID})
		},
		"missing aggregate id": func(t *testing.T) models.OutboxEvent {
			row := envelopeRow(t, enums.EventMissionBoosted, enums.AggregateMission, payloads.MissionBoostedEvent{MissionID: missionID})
			row.AggregateID = uuid.Nil
			return row
		},
		"null payload": func(t *testing.T) models.OutboxEvent {
			return envelopeRow(t, enums.EventMissionCreated, enums.AggregateMission, []byte("null"))
		},
		"broken envelope": func(t *testing.T) models.OutboxEvent {
			row := envelopeRow(t, enums.EventMissionCreated, enums.AggregateMission, []byte(`{}`))
			row.Payload = json.RawMessage(`{"data":`)
			return row
		},
		"missing mission id": func(t *testing.T) models.OutboxEvent {
			return envelopeRow(t, enums.EventMissionBoosted, enums.AggregateMission, payloads.MissionBoostedEvent{RequesterID: uuid.New()})
		},
	}

	reg := testRegistry(t)
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(build(t))
			var permanent NonRetryableError
			assert.ErrorAs(t, err, &permanent)
		})
	}
}

func TestEveryEventTypeIsRegistered(t *testing.T) {
	reg := testRegistry(t)
	want := []enums.OutboxEventType{
		enums.EventMissionCreated,
		enums.EventMissionBoosted,
		enums.EventOfferSubmitted,
		enums.EventOfferCountered,
		enums.EventOfferRejected,
		enums.EventOfferAccepted,
		enums.EventMissionPickedUp,
		enums.EventMissionDelivered,
		enums.EventMissionDisputed,
		enums.EventMissionCostAdded,
		enums.EventMissionReceiptConfirmed,
	}
	assert.ElementsMatch(t, want, reg.EventTypes())
	for _, eventType := range want {
		assert.Equal(t, "missions-topic", reg.entries[eventType].Topic, eventType)
	}
}
