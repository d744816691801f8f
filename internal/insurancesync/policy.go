package insurancesync

import (
	"strings"

	insuranceModels "kiosk/internal/insurance/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
)

// Policy decides whether a citizen counts as insured for pricing.
type Policy string

const (
	// PolicyExistence treats any registered card as insurance, expired or not.
	PolicyExistence Policy = "existence"
	// PolicyValidity requires the card to be valid on the day of the sync.
	PolicyValidity Policy = "validity"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyExistence, "":
		return PolicyExistence, nil
	case PolicyValidity:
		return PolicyValidity, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "eligibility policy must be existence or validity")
}

// Eligible applies the policy to a card, which is nil when none is registered.
func (p Policy) Eligible(card *insuranceModels.Insurance, asOf domain.Day) bool {
	if card == nil {
		return false
	}
	if p == PolicyValidity {
		return card.IsValid(asOf)
	}
	return true
}
