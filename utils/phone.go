package utils

import (
	"fmt"

	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is the region used when a phone number carries no
// country prefix.
var DefaultPhoneRegion = "BR"

// ValidatePhoneNumber parses and validates a phone number for the given
// region ("BR", "US", ...).
func ValidatePhoneNumber(phoneNumber, region string) error {
	p, err := libphonenumber.Parse(phoneNumber, region)
	if err != nil {
		return err
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil
}

// NormalizePhoneNumber validates and returns the number in E.164 form, the
// format stored on client records.
func NormalizePhoneNumber(phoneNumber, region string) (string, error) {
	p, err := libphonenumber.Parse(phoneNumber, region)
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("phone number is not valid")
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}
