package domain

import (
	"strings"

	dErrors "kiosk/pkg/domain-errors"
)

// PhoneLength is the length of a Vietnamese mobile or landline number without country code.
const PhoneLength = 10

// ParsePhone accepts 10 digits starting with 0. A +84 prefix is rewritten to 0.
// Spaces, dots and dashes are ignored.
func ParsePhone(s string) (string, error) {
	s = strings.NewReplacer(" ", "", ".", "", "-", "").Replace(strings.TrimSpace(s))
	if rest, ok := strings.CutPrefix(s, "+84"); ok {
		s = "0" + rest
	}
	if err := requireDigits(s, PhoneLength, "phone"); err != nil {
		return "", err
	}
	if s[0] != '0' {
		return "", dErrors.New(dErrors.CodeValidation, "phone must start with 0")
	}
	return s, nil
}
