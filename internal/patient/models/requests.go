package models

import (
	"strings"

	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
)

// RegisterPatientRequest is the body of POST /patients.
type RegisterPatientRequest struct {
	CitizenID  string `json:"citizen_id"`
	FullName   string `json:"full_name"`
	DOB        string `json:"dob"`
	Gender     string `json:"gender"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	Occupation string `json:"occupation"`
	Ethnicity  string `json:"ethnicity"`
}

func (r *RegisterPatientRequest) Normalize() {
	r.CitizenID = strings.TrimSpace(r.CitizenID)
	r.FullName = strings.TrimSpace(r.FullName)
	r.DOB = strings.TrimSpace(r.DOB)
}

func (r *RegisterPatientRequest) Validate() error {
	_, err := r.Params()
	return err
}

func (r *RegisterPatientRequest) Params() (Params, error) {
	citizenID, err := domain.ParseCitizenID(r.CitizenID)
	if err != nil {
		return Params{}, err
	}
	if r.FullName == "" {
		return Params{}, dErrors.New(dErrors.CodeValidation, "full_name is required")
	}
	gender, err := domain.ParseGender(r.Gender)
	if err != nil {
		return Params{}, err
	}
	if r.DOB == "" {
		return Params{}, dErrors.New(dErrors.CodeValidation, "dob is required")
	}
	dob, err := domain.ParseDay(r.DOB)
	if err != nil {
		return Params{}, err
	}
	phone := ""
	if strings.TrimSpace(r.Phone) != "" {
		if phone, err = domain.ParsePhone(r.Phone); err != nil {
			return Params{}, err
		}
	}
	return Params{
		CitizenID:  citizenID,
		FullName:   r.FullName,
		DOB:        dob,
		Gender:     gender,
		Phone:      phone,
		Address:    r.Address,
		Occupation: r.Occupation,
		Ethnicity:  r.Ethnicity,
	}, nil
}

// RegisterFromInsuranceRequest is the body of POST /patients/from-insurance.
// Identity fields are copied from the citizen's insurance card.
type RegisterFromInsuranceRequest struct {
	CitizenID  string `json:"citizen_id"`
	Address    string `json:"address"`
	Occupation string `json:"occupation"`
	Ethnicity  string `json:"ethnicity"`
}

func (r *RegisterFromInsuranceRequest) Normalize() {
	r.CitizenID = strings.TrimSpace(r.CitizenID)
}

func (r *RegisterFromInsuranceRequest) Validate() error {
	_, err := domain.ParseCitizenID(r.CitizenID)
	return err
}

// Extras are the fields the card does not carry.
type Extras struct {
	Address    string
	Occupation string
	Ethnicity  string
}

func (r *RegisterFromInsuranceRequest) Extras() Extras {
	return Extras{Address: r.Address, Occupation: r.Occupation, Ethnicity: r.Ethnicity}
}

// UpdatePatientRequest is the body of PATCH /patients/{citizenID}. Only the
// listed fields are accepted; unknown fields are rejected at decode time.
type UpdatePatientRequest struct {
	FullName   *string `json:"full_name"`
	DOB        *string `json:"dob"`
	Gender     *string `json:"gender"`
	Phone      *string `json:"phone"`
	Address    *string `json:"address"`
	Occupation *string `json:"occupation"`
	Ethnicity  *string `json:"ethnicity"`
}

func (r *UpdatePatientRequest) Validate() error {
	patch, err := r.Patch()
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "no updatable fields supplied")
	}
	return nil
}

func (r *UpdatePatientRequest) Patch() (Patch, error) {
	patch := Patch{
		FullName:   r.FullName,
		Address:    r.Address,
		Occupation: r.Occupation,
		Ethnicity:  r.Ethnicity,
	}
	if r.FullName != nil && strings.TrimSpace(*r.FullName) == "" {
		return Patch{}, dErrors.New(dErrors.CodeValidation, "full_name cannot be empty")
	}
	if r.DOB != nil {
		dob, err := domain.ParseDay(strings.TrimSpace(*r.DOB))
		if err != nil {
			return Patch{}, err
		}
		patch.DOB = &dob
	}
	if r.Gender != nil {
		g, err := domain.ParseGender(*r.Gender)
		if err != nil {
			return Patch{}, err
		}
		patch.Gender = &g
	}
	if r.Phone != nil {
		phone := ""
		if strings.TrimSpace(*r.Phone) != "" {
			var err error
			if phone, err = domain.ParsePhone(*r.Phone); err != nil {
				return Patch{}, err
			}
		}
		patch.Phone = &phone
	}
	return patch, nil
}
