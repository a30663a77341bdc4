package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOfferReceived    NotificationType = "offer_received"
	NotificationTypeOfferCountered   NotificationType = "offer_countered"
	NotificationTypeOfferAccepted    NotificationType = "offer_accepted"
	NotificationTypeOfferRejected    NotificationType = "offer_rejected"
	NotificationTypeMissionPickedUp  NotificationType = "mission_picked_up"
	NotificationTypeMissionDelivered NotificationType = "mission_delivered"
	NotificationTypeMissionDisputed  NotificationType = "mission_disputed"
	NotificationTypeCostAdded        NotificationType = "cost_added"
	NotificationTypeReceiptConfirmed NotificationType = "receipt_confirmed"
	NotificationTypeSystem           NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOfferReceived,
	NotificationTypeOfferCountered,
	NotificationTypeOfferAccepted,
	NotificationTypeOfferRejected,
	NotificationTypeMissionPickedUp,
	NotificationTypeMissionDelivered,
	NotificationTypeMissionDisputed,
	NotificationTypeCostAdded,
	NotificationTypeReceiptConfirmed,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
