package notifications

import (
	"fmt"

	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func routable(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventMissionCreated, enums.EventMissionBoosted:
		return false
	}
	return eventType.IsValid()
}

// route turns a decoded payload into one row per recipient.
func route(eventID uuid.UUID, payload interface{}) ([]models.Notification, error) {
	switch p := payload.(type) {
	case *payloads.OfferSubmittedEvent:
		return []models.Notification{
			build(eventID, p.RequesterID, p.MissionID, enums.NotificationTypeOfferReceived,
				"New offer", fmt.Sprintf("A runner offered %s for your mission.", rupees(p.Price))),
		}, nil
	case *payloads.OfferCounteredEvent:
		return []models.Notification{
			build(eventID, p.RunnerID, p.MissionID, enums.NotificationTypeOfferCountered,
				"Counter offer", fmt.Sprintf("The requester countered your %s offer with %s.", rupees(p.Price), rupees(p.CounterPrice))),
		}, nil
	case *payloads.OfferRejectedEvent:
		if p.RejectedBy != nil && *p.RejectedBy == p.RunnerID {
			title, message := "Offer withdrawn", "A runner withdrew their offer."
			if p.Reason == payloads.RejectReasonRunnerDecline {
				title, message = "Counter declined", "A runner declined your counter offer."
			}
			return []models.Notification{
				build(eventID, p.RequesterID, p.MissionID, enums.NotificationTypeOfferRejected, title, message),
			}, nil
		}
		message := "Your offer was declined."
		if p.Reason == payloads.RejectReasonMissionClosed {
			message = "The mission is no longer taking offers."
		}
		return []models.Notification{
			build(eventID, p.RunnerID, p.MissionID, enums.NotificationTypeOfferRejected, "Offer declined", message),
		}, nil
	case *payloads.OfferAcceptedEvent:
		out := make([]models.Notification, 0, len(p.RejectedOffers)+1)
		out = append(out, build(eventID, p.RunnerID, p.MissionID, enums.NotificationTypeOfferAccepted,
			"Offer accepted", fmt.Sprintf("Your offer was accepted at %s. Head to pickup.", rupees(p.AgreedPrice))))
		for _, rejected := range p.RejectedOffers {
			out = append(out, build(eventID, rejected.RunnerID, p.MissionID, enums.NotificationTypeOfferRejected,
				"Offer declined", "The requester chose another runner."))
		}
		return out, nil
	case *payloads.MissionProgressEvent:
		if p.Status == enums.MissionStatusDelivered {
			return []models.Notification{
				build(eventID, p.RequesterID, p.MissionID, enums.NotificationTypeMissionDelivered,
					"Delivered", "Your runner completed the delivery. Confirm receipt to release payment."),
			}, nil
		}
		return []models.Notification{
			build(eventID, p.RequesterID, p.MissionID, enums.NotificationTypeMissionPickedUp,
				"Picked up", "Your runner picked up the package."),
		}, nil
	case *payloads.MissionDisputedEvent:
		recipient := p.RequesterID
		if p.DisputedBy == p.RequesterID {
			recipient = p.RunnerID
		}
		return []models.Notification{
			build(eventID, recipient, p.MissionID, enums.NotificationTypeMissionDisputed,
				"Dispute raised", "A dispute was raised on your mission. Support will reach out."),
		}, nil
	case *payloads.MissionCostAddedEvent:
		return []models.Notification{
			build(eventID, p.RequesterID, p.MissionID, enums.NotificationTypeCostAdded,
				"Additional cost", fmt.Sprintf("Your runner added %s: %s", rupees(p.Amount), p.Description)),
		}, nil
	case *payloads.MissionReceiptConfirmedEvent:
		return []models.Notification{
			build(eventID, p.RunnerID, p.MissionID, enums.NotificationTypeReceiptConfirmed,
				"Payment released", fmt.Sprintf("The requester confirmed receipt. %s is on its way to you.", rupees(p.ReleasedAmount))),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported payload %T", payload)
	}
}

func build(eventID, userID, missionID uuid.UUID, kind enums.NotificationType, title, message string) models.Notification {
	event := eventID
	mission := missionID
	link := fmt.Sprintf("/missions/%s", missionID)
	return models.Notification{
		UserID:    userID,
		MissionID: &mission,
		EventID:   &event,
		Type:      kind,
		Title:     title,
		Message:   message,
		Link:      &link,
	}
}

func rupees(amount decimal.Decimal) string {
	return "₹" + amount.StringFixed(2)
}
