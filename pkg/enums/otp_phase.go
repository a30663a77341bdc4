package enums

// OTPPhase names which handshake code is being checked.
type OTPPhase string

const (
	OTPPhasePickup   OTPPhase = "pickup"
	OTPPhaseDelivery OTPPhase = "delivery"
)

func (p OTPPhase) IsValid() bool {
	return p == OTPPhasePickup || p == OTPPhaseDelivery
}
