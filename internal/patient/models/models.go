package models

import (
	"strings"
	"time"

	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
)

// DefaultEthnicity is recorded when registration leaves ethnicity blank.
const DefaultEthnicity = "Kinh"

const maxAgeYears = 150

// Patient is a person known to the kiosk. IsInsurance is derived from the
// insurance registry and only changes through an explicit sync.
type Patient struct {
	CitizenID   domain.CitizenID `json:"citizen_id"`
	FullName    string           `json:"full_name"`
	DOB         domain.Day       `json:"dob"`
	Gender      domain.Gender    `json:"gender"`
	Phone       string           `json:"phone"`
	Address     string           `json:"address"`
	Occupation  string           `json:"occupation"`
	Ethnicity   string           `json:"ethnicity"`
	IsInsurance bool             `json:"is_insurance"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Params carries the parsed fields of a new patient.
type Params struct {
	CitizenID  domain.CitizenID
	FullName   string
	DOB        domain.Day
	Gender     domain.Gender
	Phone      string
	Address    string
	Occupation string
	Ethnicity  string
}

// NewPatient validates p against asOf. New patients start without insurance.
func NewPatient(p Params, asOf domain.Day, now time.Time) (*Patient, error) {
	if p.CitizenID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "citizen_id is required")
	}
	patient := &Patient{
		CitizenID:  p.CitizenID,
		FullName:   strings.TrimSpace(p.FullName),
		DOB:        p.DOB,
		Gender:     p.Gender,
		Phone:      p.Phone,
		Address:    strings.TrimSpace(p.Address),
		Occupation: strings.TrimSpace(p.Occupation),
		Ethnicity:  strings.TrimSpace(p.Ethnicity),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if patient.Ethnicity == "" {
		patient.Ethnicity = DefaultEthnicity
	}
	if err := patient.validate(asOf); err != nil {
		return nil, err
	}
	return patient, nil
}

func (p *Patient) validate(asOf domain.Day) error {
	if p.FullName == "" {
		return dErrors.New(dErrors.CodeValidation, "full_name is required")
	}
	if !p.Gender.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "gender must be male or female")
	}
	if p.DOB.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "dob is required")
	}
	if p.DOB.After(asOf) {
		return dErrors.New(dErrors.CodeValidation, "dob cannot be in the future")
	}
	if p.Age(asOf) > maxAgeYears {
		return dErrors.New(dErrors.CodeValidation, "dob is not plausible")
	}
	if p.Phone != "" {
		if _, err := domain.ParsePhone(p.Phone); err != nil {
			return err
		}
	}
	return nil
}

// Age is the number of completed years on asOf.
func (p *Patient) Age(asOf domain.Day) int {
	if p.DOB.IsZero() {
		return 0
	}
	by, bm, bd := p.DOB.Time().Date()
	y, m, d := asOf.Time().Date()
	age := y - by
	if m < bm || (m == bm && d < bd) {
		age--
	}
	return age
}

// Patch is the allow-listed partial update. Nil fields are left unchanged;
// citizen id and the insurance flag are not patchable.
type Patch struct {
	FullName   *string
	DOB        *domain.Day
	Gender     *domain.Gender
	Phone      *string
	Address    *string
	Occupation *string
	Ethnicity  *string
}

func (p Patch) IsEmpty() bool {
	return p.FullName == nil && p.DOB == nil && p.Gender == nil && p.Phone == nil &&
		p.Address == nil && p.Occupation == nil && p.Ethnicity == nil
}

// Apply returns a copy of the patient with the patch applied and validated.
// The receiver is not modified.
func (p *Patient) Apply(patch Patch, asOf domain.Day, now time.Time) (*Patient, []string, error) {
	next := *p
	changed := make([]string, 0, 7)
	setString := func(field string, dst *string, v *string) {
		if v == nil {
			return
		}
		if trimmed := strings.TrimSpace(*v); trimmed != *dst {
			*dst = trimmed
			changed = append(changed, field)
		}
	}
	setString("full_name", &next.FullName, patch.FullName)
	setString("phone", &next.Phone, patch.Phone)
	setString("address", &next.Address, patch.Address)
	setString("occupation", &next.Occupation, patch.Occupation)
	setString("ethnicity", &next.Ethnicity, patch.Ethnicity)
	if patch.DOB != nil && !patch.DOB.Equal(next.DOB) {
		next.DOB = *patch.DOB
		changed = append(changed, "dob")
	}
	if patch.Gender != nil && *patch.Gender != next.Gender {
		next.Gender = *patch.Gender
		changed = append(changed, "gender")
	}
	if next.Ethnicity == "" {
		next.Ethnicity = DefaultEthnicity
	}
	if err := next.validate(asOf); err != nil {
		return nil, nil, err
	}
	if len(changed) > 0 {
		next.UpdatedAt = now
	}
	return &next, changed, nil
}
