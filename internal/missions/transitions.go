package missions

import "github.com/angelmondragon/maiyom-backend/pkg/enums"

// transitions lists every legal status change. delivered and disputed are
// terminal apart from the late dispute on a delivered mission.
var transitions = map[enums.MissionStatus][]enums.MissionStatus{
	enums.MissionStatusOpen:      {enums.MissionStatusOffered, enums.MissionStatusAccepted},
	enums.MissionStatusOffered:   {enums.MissionStatusOpen, enums.MissionStatusAccepted},
	enums.MissionStatusAccepted:  {enums.MissionStatusInTransit, enums.MissionStatusDisputed},
	enums.MissionStatusInTransit: {enums.MissionStatusDelivered, enums.MissionStatusDisputed},
	enums.MissionStatusDelivered: {enums.MissionStatusDisputed},
}

var (
	// AcceptableFrom are the statuses an offer acceptance may start from.
	AcceptableFrom = []enums.MissionStatus{enums.MissionStatusOpen, enums.MissionStatusOffered}
	// DisputableFrom are the statuses either participant may dispute.
	DisputableFrom = []enums.MissionStatus{enums.MissionStatusAccepted, enums.MissionStatusInTransit, enums.MissionStatusDelivered}
	// CostableFrom are the statuses in which the runner may add costs.
	CostableFrom = []enums.MissionStatus{enums.MissionStatusAccepted, enums.MissionStatusInTransit}
)

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to enums.MissionStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// OTPPhaseFor returns which code unlocks the next step from status.
func OTPPhaseFor(status enums.MissionStatus) (enums.OTPPhase, bool) {
	switch status {
	case enums.MissionStatusAccepted:
		return enums.OTPPhasePickup, true
	case enums.MissionStatusInTransit:
		return enums.OTPPhaseDelivery, true
	default:
		return "", false
	}
}

// PhaseTransition returns the status change an OTP phase performs.
func PhaseTransition(phase enums.OTPPhase) (from, to enums.MissionStatus) {
	if phase == enums.OTPPhaseDelivery {
		return enums.MissionStatusInTransit, enums.MissionStatusDelivered
	}
	return enums.MissionStatusAccepted, enums.MissionStatusInTransit
}

func containsStatus(list []enums.MissionStatus, status enums.MissionStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}
