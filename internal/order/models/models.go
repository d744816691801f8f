package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kiosk/pkg/domain"
)

// NumberPrefix starts every formatted order number.
const NumberPrefix = "ORD"

// Order is a booked examination. QueueNumber and Price are fixed at creation.
type Order struct {
	ID            domain.OrderID   `json:"id"`
	QueueNumber   int64            `json:"queue_number"`
	CitizenID     domain.CitizenID `json:"citizen_id"`
	ServiceID     domain.ServiceID `json:"service_id"`
	ServiceDay    domain.Day       `json:"service_day"`
	Status        Status           `json:"status"`
	PaymentMethod PaymentMethod    `json:"payment_method,omitempty"`
	PaymentStatus PaymentStatus    `json:"payment_status"`
	Price         decimal.Decimal  `json:"price"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Number formats the order id for receipts, e.g. ORD000042.
func (o *Order) Number() string {
	return fmt.Sprintf("%s%06d", NumberPrefix, int64(o.ID))
}

// QueueKey identifies the counter an order's queue number is drawn from.
type QueueKey struct {
	ServiceID domain.ServiceID
	Day       domain.Day
}

func (k QueueKey) String() string {
	return k.ServiceID.String() + "/" + k.Day.String()
}

// PriceSource records how an order's price was chosen.
type PriceSource string

const (
	PriceExplicit   PriceSource = "explicit"
	PriceInsured    PriceSource = "insured"
	PriceNonInsured PriceSource = "non_insured"
)

// CreateParams are the validated inputs of order creation.
type CreateParams struct {
	CitizenID     domain.CitizenID
	ServiceID     domain.ServiceID
	Price         *decimal.Decimal
	PaymentMethod PaymentMethod
}
