package models

import (
	"strings"

	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
)

// CreateInsuranceRequest is the body of POST /insurance.
type CreateInsuranceRequest struct {
	CitizenID         string `json:"citizen_id"`
	InsuranceID       string `json:"insurance_id"`
	FullName          string `json:"full_name"`
	Gender            string `json:"gender"`
	DOB               string `json:"dob"`
	Phone             string `json:"phone"`
	RegistrationPlace string `json:"registration_place"`
	ValidFrom         string `json:"valid_from"`
	Expired           string `json:"expired"`
}

func (r *CreateInsuranceRequest) Normalize() {
	r.CitizenID = strings.TrimSpace(r.CitizenID)
	r.InsuranceID = strings.TrimSpace(r.InsuranceID)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.RegistrationPlace = strings.TrimSpace(r.RegistrationPlace)
}

// Validate checks presence and formats; date ordering is checked by NewInsurance.
func (r *CreateInsuranceRequest) Validate() error {
	_, err := r.Params()
	return err
}

// Params parses the request into typed fields.
func (r *CreateInsuranceRequest) Params() (Params, error) {
	if r == nil {
		return Params{}, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	citizenID, err := domain.ParseCitizenID(r.CitizenID)
	if err != nil {
		return Params{}, err
	}
	insuranceID, err := domain.ParseInsuranceID(r.InsuranceID)
	if err != nil {
		return Params{}, err
	}
	if strings.TrimSpace(r.FullName) == "" {
		return Params{}, dErrors.New(dErrors.CodeValidation, "full_name is required")
	}
	gender, err := domain.ParseGender(r.Gender)
	if err != nil {
		return Params{}, err
	}
	dob, err := parseField("dob", r.DOB)
	if err != nil {
		return Params{}, err
	}
	validFrom, err := parseField("valid_from", r.ValidFrom)
	if err != nil {
		return Params{}, err
	}
	expired, err := parseField("expired", r.Expired)
	if err != nil {
		return Params{}, err
	}
	return Params{
		CitizenID:         citizenID,
		InsuranceID:       insuranceID,
		FullName:          r.FullName,
		Gender:            gender,
		DOB:               dob,
		Phone:             r.Phone,
		RegistrationPlace: r.RegistrationPlace,
		ValidFrom:         validFrom,
		Expired:           expired,
	}, nil
}

func parseField(field, value string) (domain.Day, error) {
	if strings.TrimSpace(value) == "" {
		return domain.Day{}, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	d, err := domain.ParseDay(strings.TrimSpace(value))
	if err != nil {
		return domain.Day{}, dErrors.New(dErrors.CodeValidation, field+" must use the YYYY-MM-DD format")
	}
	return d, nil
}
