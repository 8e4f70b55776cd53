// Package phone validates and normalises international phone numbers.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid is returned for anything that is not a valid number in international format.
var ErrInvalid = errors.New("enter the phone number in the format +79999999999")

// Normalize parses raw without a default region, so the leading "+" and country code
// are required, and returns the number in E.164 form.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "+") {
		return "", ErrInvalid
	}
	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return "", ErrInvalid
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalid
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
