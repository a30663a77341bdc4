package security

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strconv"
)

const (
	otpMin    = 1000
	otpMax    = 9999
	otpLength = 4
)

// ErrMalformedOTP signals a supplied code that is not exactly four digits.
var ErrMalformedOTP = fmt.Errorf("verification code must be %d digits", otpLength)

// GenerateOTP returns a uniformly random code in [1000, 9999].
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// GenerateOTPPair mints the independent pickup and delivery codes for an acceptance.
func GenerateOTPPair() (pickup string, delivery string, err error) {
	if pickup, err = GenerateOTP(); err != nil {
		return "", "", err
	}
	if delivery, err = GenerateOTP(); err != nil {
		return "", "", err
	}
	return pickup, delivery, nil
}

// ValidOTPFormat reports whether code is a four digit numeral in range.
func ValidOTPFormat(code string) bool {
	if len(code) != otpLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	n, _ := strconv.Atoi(code)
	return n >= otpMin && n <= otpMax
}

// VerifyOTP opens the stored (possibly sealed) code and compares it with the
// supplied digits in constant time.
func VerifyOTP(sealer *Sealer, stored, supplied string) (bool, error) {
	if !ValidOTPFormat(supplied) {
		return false, ErrMalformedOTP
	}
	expected, err := sealer.Open(stored)
	if err != nil {
		return false, err
	}
	if expected == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1, nil
}
