package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateMission OutboxAggregateType = "mission"
	AggregateOffer   OutboxAggregateType = "offer"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMission,
	AggregateOffer,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventMissionCreated          OutboxEventType = "mission_created"
	EventMissionBoosted          OutboxEventType = "mission_boosted"
	EventOfferSubmitted          OutboxEventType = "offer_submitted"
	EventOfferCountered          OutboxEventType = "offer_countered"
	EventOfferRejected           OutboxEventType = "offer_rejected"
	EventOfferAccepted           OutboxEventType = "offer_accepted"
	EventMissionPickedUp         OutboxEventType = "mission_picked_up"
	EventMissionDelivered        OutboxEventType = "mission_delivered"
	EventMissionDisputed         OutboxEventType = "mission_disputed"
	EventMissionCostAdded        OutboxEventType = "mission_cost_added"
	EventMissionReceiptConfirmed OutboxEventType = "mission_receipt_confirmed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventMissionCreated,
	EventMissionBoosted,
	EventOfferSubmitted,
	EventOfferCountered,
	EventOfferRejected,
	EventOfferAccepted,
	EventMissionPickedUp,
	EventMissionDelivered,
	EventMissionDisputed,
	EventMissionCostAdded,
	EventMissionReceiptConfirmed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
