package models

import (
	"strings"

	"github.com/shopspring/decimal"

	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
)

// CreateOrderRequest is the body of POST /orders. Price overrides the catalog price when set.
type CreateOrderRequest struct {
	CitizenID     string           `json:"citizen_id"`
	ServiceID     int64            `json:"service_id"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	PaymentMethod string           `json:"payment_method,omitempty"`
}

func (r *CreateOrderRequest) Normalize() {
	r.CitizenID = strings.TrimSpace(r.CitizenID)
	r.PaymentMethod = strings.ToLower(strings.TrimSpace(r.PaymentMethod))
}

func (r *CreateOrderRequest) Validate() error {
	_, err := r.Params()
	return err
}

func (r *CreateOrderRequest) Params() (CreateParams, error) {
	citizenID, err := domain.ParseCitizenID(r.CitizenID)
	if err != nil {
		return CreateParams{}, err
	}
	if r.ServiceID <= 0 {
		return CreateParams{}, dErrors.New(dErrors.CodeValidation, "service_id must be a positive integer")
	}
	if r.Price != nil && r.Price.IsNegative() {
		return CreateParams{}, dErrors.New(dErrors.CodeValidation, "price cannot be negative")
	}
	method, err := ParsePaymentMethod(r.PaymentMethod)
	if err != nil {
		return CreateParams{}, err
	}
	return CreateParams{
		CitizenID:     citizenID,
		ServiceID:     domain.ServiceID(r.ServiceID),
		Price:         r.Price,
		PaymentMethod: method,
	}, nil
}

// UpdateStatusRequest is the body of PATCH /orders/{id}/status. The value is
// checked by the ledger so an unknown status is reported as a validation error.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (r *UpdateStatusRequest) Validate() error {
	if strings.TrimSpace(r.Status) == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

// RecordPaymentRequest is the body of PATCH /orders/{id}/payment.
type RecordPaymentRequest struct {
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

func (r *RecordPaymentRequest) Validate() error {
	if strings.TrimSpace(r.PaymentStatus) == "" {
		return dErrors.New(dErrors.CodeValidation, "payment_status is required")
	}
	return nil
}
