package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
)

// Service is an orderable examination with its two list prices.
type Service struct {
	ID             domain.ServiceID `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	InsurancePrice decimal.Decimal  `json:"insurance_price"`
	ServicePrice   decimal.Decimal  `json:"service_price"`
	Active         bool             `json:"active"`
	CreatedAt      time.Time        `json:"created_at"`
}

// PriceFor returns the insured price for insured patients and the list price otherwise.
func (s *Service) PriceFor(isInsurance bool) decimal.Decimal {
	if isInsurance {
		return s.InsurancePrice
	}
	return s.ServicePrice
}

// NewService validates the prices: both positive, insured not above non-insured.
func NewService(name, description string, insurancePrice, servicePrice decimal.Decimal, now time.Time) (*Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if !insurancePrice.IsPositive() || !servicePrice.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "prices must be positive")
	}
	if insurancePrice.GreaterThan(servicePrice) {
		return nil, dErrors.New(dErrors.CodeValidation, "insurance_price cannot exceed service_price")
	}
	return &Service{
		Name:           name,
		Description:    strings.TrimSpace(description),
		InsurancePrice: insurancePrice.Round(2),
		ServicePrice:   servicePrice.Round(2),
		Active:         true,
		CreatedAt:      now,
	}, nil
}

// CreateServiceRequest is the body of POST /services.
type CreateServiceRequest struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	InsurancePrice decimal.Decimal `json:"insurance_price"`
	ServicePrice   decimal.Decimal `json:"service_price"`
}

func (r *CreateServiceRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

func (r *CreateServiceRequest) Validate() error {
	_, err := NewService(r.Name, r.Description, r.InsurancePrice, r.ServicePrice, time.Time{})
	return err
}

// SetActiveRequest is the body of PATCH /services/{id}/active.
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

func (r *SetActiveRequest) Validate() error {
	if r.Active == nil {
		return dErrors.New(dErrors.CodeValidation, "active is required")
	}
	return nil
}
