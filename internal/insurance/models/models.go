package models

import (
	"strings"
	"time"

	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
)

// Insurance is a health insurance card registered for one citizen.
type Insurance struct {
	CitizenID         domain.CitizenID   `json:"citizen_id"`
	InsuranceID       domain.InsuranceID `json:"insurance_id"`
	FullName          string             `json:"full_name"`
	Gender            domain.Gender      `json:"gender"`
	DOB               domain.Day         `json:"dob"`
	Phone             string             `json:"phone"`
	RegistrationPlace string             `json:"registration_place"`
	ValidFrom         domain.Day         `json:"valid_from"`
	Expired           domain.Day         `json:"expired"`
	CreatedAt         time.Time          `json:"created_at"`
}

// Params carries the already-parsed fields of a new card.
type Params struct {
	CitizenID         domain.CitizenID
	InsuranceID       domain.InsuranceID
	FullName          string
	Gender            domain.Gender
	DOB               domain.Day
	Phone             string
	RegistrationPlace string
	ValidFrom         domain.Day
	Expired           domain.Day
}

// NewInsurance checks the card invariants against asOf and returns the record.
// Violations are validation errors.
func NewInsurance(p Params, asOf domain.Day, now time.Time) (*Insurance, error) {
	citizenID, err := domain.ParseCitizenID(string(p.CitizenID))
	if err != nil {
		return nil, err
	}
	insuranceID, err := domain.ParseInsuranceID(string(p.InsuranceID))
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(p.FullName)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "full_name is required")
	}
	if !p.Gender.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "gender must be male or female")
	}
	if p.DOB.IsZero() || p.ValidFrom.IsZero() || p.Expired.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "dob, valid_from and expired are required")
	}
	if !p.DOB.Before(asOf) {
		return nil, dErrors.New(dErrors.CodeValidation, "dob must be before today")
	}
	if !p.ValidFrom.Before(p.Expired) {
		return nil, dErrors.New(dErrors.CodeValidation, "valid_from must be before expired")
	}
	return &Insurance{
		CitizenID:         citizenID,
		InsuranceID:       insuranceID,
		FullName:          name,
		Gender:            p.Gender,
		DOB:               p.DOB,
		Phone:             strings.TrimSpace(p.Phone),
		RegistrationPlace: strings.TrimSpace(p.RegistrationPlace),
		ValidFrom:         p.ValidFrom,
		Expired:           p.Expired,
		CreatedAt:         now,
	}, nil
}

// IsValid reports whether asOf falls inside the card's validity window, both ends inclusive.
func (i *Insurance) IsValid(asOf domain.Day) bool {
	return !asOf.Before(i.ValidFrom) && !asOf.After(i.Expired)
}

// DaysUntilExpiry is expired − asOf in days; negative once the card has expired.
func (i *Insurance) DaysUntilExpiry(asOf domain.Day) int {
	return asOf.DaysUntil(i.Expired)
}

// Status is the human-readable state of a card on a given day.
type Status string

const (
	StatusValid       Status = "Valid"
	StatusExpired     Status = "Expired"
	StatusNotYetValid Status = "Not yet valid"
)

func (i *Insurance) Status(asOf domain.Day) Status {
	switch {
	case asOf.Before(i.ValidFrom):
		return StatusNotYetValid
	case asOf.After(i.Expired):
		return StatusExpired
	default:
		return StatusValid
	}
}

// Validity is the answer to a validity check.
type Validity struct {
	InsuranceID     domain.InsuranceID `json:"insurance_id"`
	CitizenID       domain.CitizenID   `json:"citizen_id"`
	FullName        string             `json:"full_name"`
	ValidFrom       domain.Day         `json:"valid_from"`
	Expired         domain.Day         `json:"expired"`
	IsValid         bool               `json:"is_valid"`
	DaysUntilExpiry int                `json:"days_until_expiry"`
	StatusText      Status             `json:"status_text"`
	AsOf            domain.Day         `json:"as_of"`
}

// CheckValidity evaluates the card on asOf.
func (i *Insurance) CheckValidity(asOf domain.Day) Validity {
	return Validity{
		InsuranceID:     i.InsuranceID,
		CitizenID:       i.CitizenID,
		FullName:        i.FullName,
		ValidFrom:       i.ValidFrom,
		Expired:         i.Expired,
		IsValid:         i.IsValid(asOf),
		DaysUntilExpiry: i.DaysUntilExpiry(asOf),
		StatusText:      i.Status(asOf),
		AsOf:            asOf,
	}
}

// ListState selects one of the registry list views.
type ListState string

const (
	ListValid        ListState = "valid"
	ListExpired      ListState = "expired"
	ListExpiringSoon ListState = "expiring"
)

func ParseListState(s string) (ListState, error) {
	switch ListState(strings.ToLower(strings.TrimSpace(s))) {
	case ListValid, "":
		return ListValid, nil
	case ListExpired:
		return ListExpired, nil
	case ListExpiringSoon, "expiring_soon":
		return ListExpiringSoon, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "state must be valid, expired or expiring")
}
