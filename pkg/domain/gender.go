package domain

import (
	"strings"

	dErrors "kiosk/pkg/domain-errors"
)

// Gender is recorded on both the patient and the insurance card.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ParseGender accepts "male" or "female" in any case.
func ParseGender(s string) (Gender, error) {
	g := Gender(strings.ToLower(strings.TrimSpace(s)))
	if !g.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "gender must be male or female")
	}
	return g, nil
}

func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale
}

func (g Gender) String() string { return string(g) }
