package enums

import "fmt"

// MissionStatus tracks where a delivery mission sits in its lifecycle.
type MissionStatus string

const (
	MissionStatusOpen      MissionStatus = "open"
	MissionStatusOffered   MissionStatus = "offered"
	MissionStatusAccepted  MissionStatus = "accepted"
	MissionStatusInTransit MissionStatus = "in_transit"
	MissionStatusDelivered MissionStatus = "delivered"
	MissionStatusDisputed  MissionStatus = "disputed"
)

var validMissionStatuses = []MissionStatus{
	MissionStatusOpen,
	MissionStatusOffered,
	MissionStatusAccepted,
	MissionStatusInTransit,
	MissionStatusDelivered,
	MissionStatusDisputed,
}

// String implements fmt.Stringer.
func (m MissionStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MissionStatus.
func (m MissionStatus) IsValid() bool {
	for _, candidate := range validMissionStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsBiddable reports whether runners may still place offers.
func (m MissionStatus) IsBiddable() bool {
	return m == MissionStatusOpen || m == MissionStatusOffered
}

// ParseMissionStatus converts raw input into a MissionStatus.
func ParseMissionStatus(value string) (MissionStatus, error) {
	for _, candidate := range validMissionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mission status %q", value)
}
