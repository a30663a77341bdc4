package profiles

import (
	"regexp"
	"strings"
)

var (
	aadhaarPattern = regexp.MustCompile(`^[2-9][0-9]{11}$`)
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
)

// NormalizeAadhaar strips the spaces and dashes people type between digit groups.
func NormalizeAadhaar(raw string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
}

// ValidAadhaar reports whether raw is a 12 digit Aadhaar number that does not
// start with 0 or 1.
func ValidAadhaar(raw string) bool {
	return aadhaarPattern.MatchString(NormalizeAadhaar(raw))
}

// NormalizePAN upper-cases and trims a PAN.
func NormalizePAN(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidPAN reports whether raw matches the AAAAA9999A layout.
func ValidPAN(raw string) bool {
	return panPattern.MatchString(NormalizePAN(raw))
}
