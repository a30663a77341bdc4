package router

import (
	"fmt"

	"github.com/angelmondragon/maiyom-backend/internal/analytics/types"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func baseRow(envelope types.Envelope, missionID uuid.UUID) types.MissionEventRow {
	return types.MissionEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
		MissionID:  missionID.String(),
	}
}

func payloadError(envelope types.Envelope) error {
	return fmt.Errorf("invalid payload for %s", envelope.EventType)
}

func missionCreatedRow(envelope types.Envelope, payload any) (types.MissionEventRow, error) {
	event, ok := payload.(*payloads.MissionCreatedEvent)
	if !ok {
		return types.MissionEventRow{}, payloadError(envelope)
	}
	row := baseRow(envelope, event.MissionID)
	row.RequesterID = uuidPtr(event.RequesterID)
	row.ActorID = uuidPtr(event.RequesterID)
	row.Scenario = stringPtr(string(event.Scenario))
	row.Category = stringPtr(event.Category)
	row.AmountPaise = paise(event.BudgetMax)
	row.IsBoosted = boolPtr(event.IsBoosted)
	return row, nil
}

func missionBoostedRow(envelope types.Envelope, payload any) (types.MissionEventRow, error) {
	event, ok := payload.(*payloads.MissionBoostedEvent)
	if !ok {
		return types.MissionEventRow{}, payloadError(envelope)
	}
	row := baseRow(envelope, event.MissionID)
	row.RequesterID = uuidPtr(event.RequesterID)
	row.ActorID = uuidPtr(event.RequesterID)
	row.IsBoosted = boolPtr(true)
	return row, nil
}

func offerSubmittedRow(envelope types.Envelope, payload any) (types.MissionEventRow, error) {
	event, ok := payload.(*payloads.OfferSubmittedEvent)
	if !ok {
		return types.MissionEventRow{}, payloadError(envelope)
	}
	row := baseRow(envelope, event.MissionID)
	row.OfferID = uuidPtr(event.OfferID)
	row.RequesterID = uuidPtr(event.RequesterID)
	row.RunnerID = uuidPtr(event.RunnerID)
	row.ActorID = uuidPtr(event.RunnerID)
	row.AmountPaise = paise(event.Price)
	return row, nil
}

func offerCounteredRow(envelope types.Envelope, payload any) (types.MissionEventRow, error) {
	event, ok := payload.(*payloads.OfferCounteredEvent)
	if !ok {
		return types.MissionEventRow{}, payloadError(envelope)
	}
	row := baseRow(envelope, event.MissionID)
	row.OfferID = uuidPtr(event.OfferID)
	row.RequesterID = uuidPtr(event.RequesterID)
	row.RunnerID = uuidPtr(event.RunnerID)
	row.ActorID = uuidPtr(event.RequesterID)
	row.AmountPaise = paise(event.CounterPrice)
	return row, nil
}

func offerRejectedRow(envelope types.Envelope, payload any) (types.MissionEventRow, error) {
	event, ok := payload.(*payloads.OfferRejectedEvent)
	if !ok {
		return types.MissionEventRow{}, payloadError(envelope)
	}
	row := baseRow(envelope, event.MissionID)
	row.OfferID = uuidPtr(event.OfferID)
	row.RequesterID = uuidPtr(event.RequesterID)
	row.RunnerID = uuidPtr(event.RunnerID)
	if event.RejectedBy != nil {
		row.ActorID = uuidPtr(*event.RejectedBy)
	}
	row.Reason = stringPtr(event.Reason)
	return row, nil
}

func offerAcceptedRow(envelope types.Envelope, payload any) (types.MissionEventRow, error) {
	event, ok := payload.(*payloads.OfferAcceptedEvent)
	if !ok {
		return types.MissionEventRow{}, payloadError(envelope)
	}
	row := baseRow(envelope, event.MissionID)
	row.OfferID = uuidPtr(event.OfferID)
	row.RequesterID = uuidPtr(event.RequesterID)
	row.RunnerID = uuidPtr(event.RunnerID)
	row.ActorID = uuidPtr(event.RequesterID)
	row.Status = stringPtr("accepted")
	row.AmountPaise = paise(event.AgreedPrice)
	if event.ViaCounter {
		row.Reason = stringPtr("via_counter")
	}
	return row, nil
}

func missionProgressRow(envelope types.Envelope, payload any) (types.MissionEventRow, error) {
	event, ok := payload.(*payloads.MissionProgressEvent)
	if !ok {
		return types.MissionEventRow{}, payloadError(envelope)
	}
	row := baseRow(envelope, event.MissionID)
	row.RequesterID = uuidPtr(event.RequesterID)
	row.RunnerID = uuidPtr(event.RunnerID)
	row.ActorID = uuidPtr(event.RunnerID)
	row.Status = stringPtr(string(event.Status))
	return row, nil
}

func missionDisputedRow(envelope types.Envelope, payload any) (types.MissionEventRow, error) {
	event, ok := payload.(*payloads.MissionDisputedEvent)
	if !ok {
		return types.MissionEventRow{}, payloadError(envelope)
	}
	row := baseRow(envelope, event.MissionID)
	row.RequesterID = uuidPtr(event.RequesterID)
	row.RunnerID = uuidPtr(event.RunnerID)
	row.ActorID = uuidPtr(event.DisputedBy)
	row.Status = stringPtr(string(event.StatusBefore))
	row.Reason = stringPtr(event.Reason)
	return row, nil
}

func missionCostAddedRow(envelope types.Envelope, payload any) (types.MissionEventRow, error) {
	event, ok := payload.(*payloads.MissionCostAddedEvent)
	if !ok {
		return types.MissionEventRow{}, payloadError(envelope)
	}
	row := baseRow(envelope, event.MissionID)
	row.RequesterID = uuidPtr(event.RequesterID)
	row.RunnerID = uuidPtr(event.RunnerID)
	row.ActorID = uuidPtr(event.RunnerID)
	row.Reason = stringPtr(event.Description)
	row.AmountPaise = paise(event.Amount)
	return row, nil
}

func receiptConfirmedRow(envelope types.Envelope, payload any) (types.MissionEventRow, error) {
	event, ok := payload.(*payloads.MissionReceiptConfirmedEvent)
	if !ok {
		return types.MissionEventRow{}, payloadError(envelope)
	}
	row := baseRow(envelope, event.MissionID)
	row.RequesterID = uuidPtr(event.RequesterID)
	row.RunnerID = uuidPtr(event.RunnerID)
	row.ActorID = uuidPtr(event.RequesterID)
	row.AmountPaise = paise(event.ReleasedAmount)
	return row, nil
}

func paise(amount decimal.Decimal) *int64 {
	v := amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return &v
}
