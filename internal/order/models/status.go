package models

import (
	"strings"

	dErrors "kiosk/pkg/domain-errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions lists the statuses reachable from each state.
// Completed and cancelled orders are final.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusInProgress, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

// ParseStatus accepts the five order states, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation,
			"status must be one of pending, confirmed, in_progress, completed, cancelled")
	}
	return st, nil
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// CanTransitionTo reports whether next may follow s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// PaymentStatus tracks settlement: unpaid, then paid, then optionally refunded.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	ps := PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
	switch ps {
	case PaymentUnpaid, PaymentPaid, PaymentRefunded:
		return ps, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "payment_status must be one of unpaid, paid, refunded")
}

// CanTransitionTo allows unpaid to paid and paid to refunded.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch p {
	case PaymentUnpaid:
		return next == PaymentPaid
	case PaymentPaid:
		return next == PaymentRefunded
	}
	return false
}

// PaymentMethod is how the patient pays. Empty means not yet chosen.
type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "cash"
	PaymentCard      PaymentMethod = "card"
	PaymentTransfer  PaymentMethod = "transfer"
	PaymentInsurance PaymentMethod = "insurance"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	pm := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch pm {
	case "", PaymentCash, PaymentCard, PaymentTransfer, PaymentInsurance:
		return pm, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "payment_method must be one of cash, card, transfer, insurance")
}
