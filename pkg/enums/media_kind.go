package enums

import "fmt"

// MediaKind determines the storage prefix and who may upload the photo.
type MediaKind string

const (
	MediaKindPickupProof   MediaKind = "pickup_proof"
	MediaKindDeliveryProof MediaKind = "delivery_proof"
	MediaKindOfferPhoto    MediaKind = "offer_photo"
	MediaKindMissionPhoto  MediaKind = "mission_photo"
	MediaKindAvatar        MediaKind = "avatar"
	MediaKindChatPhoto     MediaKind = "chat_photo"
)

var validMediaKinds = []MediaKind{
	MediaKindPickupProof,
	MediaKindDeliveryProof,
	MediaKindOfferPhoto,
	MediaKindMissionPhoto,
	MediaKindAvatar,
	MediaKindChatPhoto,
}

// IsValid reports whether the value is a known MediaKind.
func (k MediaKind) IsValid() bool {
	for _, candidate := range validMediaKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseMediaKind converts raw input into a MediaKind.
func ParseMediaKind(value string) (MediaKind, error) {
	for _, candidate := range validMediaKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid media kind %q", value)
}
