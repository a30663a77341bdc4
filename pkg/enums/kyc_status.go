package enums

import "fmt"

// KYCStatus tracks identity document verification for a profile.
type KYCStatus string

const (
	KYCStatusNone      KYCStatus = "none"
	KYCStatusSubmitted KYCStatus = "submitted"
	KYCStatusVerified  KYCStatus = "verified"
	KYCStatusRejected  KYCStatus = "rejected"
)

var validKYCStatuses = []KYCStatus{
	KYCStatusNone,
	KYCStatusSubmitted,
	KYCStatusVerified,
	KYCStatusRejected,
}

func (k KYCStatus) IsValid() bool {
	for _, candidate := range validKYCStatuses {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseKYCStatus converts raw input into a KYCStatus.
func ParseKYCStatus(value string) (KYCStatus, error) {
	for _, candidate := range validKYCStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid kyc status %q", value)
}
