package enums

import "fmt"

// OfferStatus tracks the negotiation state of a runner's bid.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusCountered OfferStatus = "countered"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
)

var validOfferStatuses = []OfferStatus{
	OfferStatusPending,
	OfferStatusCountered,
	OfferStatusAccepted,
	OfferStatusRejected,
}

// LiveOfferStatuses are the non-terminal statuses still open to negotiation.
var LiveOfferStatuses = []OfferStatus{OfferStatusPending, OfferStatusCountered}

// String implements fmt.Stringer.
func (o OfferStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OfferStatus.
func (o OfferStatus) IsValid() bool {
	for _, candidate := range validOfferStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsLive reports whether the offer can still be countered, accepted or rejected.
func (o OfferStatus) IsLive() bool {
	return o == OfferStatusPending || o == OfferStatusCountered
}

// ParseOfferStatus converts raw input into an OfferStatus.
func ParseOfferStatus(value string) (OfferStatus, error) {
	for _, candidate := range validOfferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer status %q", value)
}
