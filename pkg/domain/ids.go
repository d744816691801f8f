package domain

import (
	"strconv"
	"strings"
	"unicode/utf8"

	dErrors "kiosk/pkg/domain-errors"
)

const (
	// CitizenIDLength is the length of a national citizen identity card number.
	CitizenIDLength = 12
	// InsuranceIDLength is the length of a health insurance card number.
	InsuranceIDLength = 10
)

// CitizenID identifies a person across the patient directory and the insurance
// registry. Invariant: exactly CitizenIDLength ASCII digits.
//
// Construct via ParseCitizenID at trust boundaries; direct casting bypasses validation.
type CitizenID string

// InsuranceID is the number printed on an insurance card.
// Invariant: exactly InsuranceIDLength ASCII digits.
type InsuranceID string

// ServiceID identifies a catalog service (examination type).
type ServiceID int64

// OrderID identifies an order. Assigned by the ledger store.
type OrderID int64

// ParseCitizenID validates external input.
//
// Errors: CodeValidation when the value is not CitizenIDLength digits.
func ParseCitizenID(s string) (CitizenID, error) {
	s = strings.TrimSpace(s)
	if err := requireDigits(s, CitizenIDLength, "citizen_id"); err != nil {
		return "", err
	}
	return CitizenID(s), nil
}

// ParseInsuranceID validates external input.
//
// Errors: CodeValidation when the value is not InsuranceIDLength digits.
func ParseInsuranceID(s string) (InsuranceID, error) {
	s = strings.TrimSpace(s)
	if err := requireDigits(s, InsuranceIDLength, "insurance_id"); err != nil {
		return "", err
	}
	return InsuranceID(s), nil
}

// ParseServiceID parses a positive service identifier.
func ParseServiceID(s string) (ServiceID, error) {
	n, err := parsePositive(s, "service_id")
	if err != nil {
		return 0, err
	}
	return ServiceID(n), nil
}

// ParseOrderID parses a positive order identifier.
func ParseOrderID(s string) (OrderID, error) {
	n, err := parsePositive(s, "order_id")
	if err != nil {
		return 0, err
	}
	return OrderID(n), nil
}

func (c CitizenID) String() string   { return string(c) }
func (c CitizenID) IsNil() bool      { return c == "" }
func (i InsuranceID) String() string { return string(i) }
func (s ServiceID) String() string   { return strconv.FormatInt(int64(s), 10) }
func (o OrderID) String() string     { return strconv.FormatInt(int64(o), 10) }

func requireDigits(s string, length int, field string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	if !utf8.ValidString(s) || len(s) != length {
		return dErrors.New(dErrors.CodeValidation, field+" must be exactly "+strconv.Itoa(length)+" digits")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return dErrors.New(dErrors.CodeValidation, field+" must contain digits only")
		}
	}
	return nil
}

func parsePositive(s, field string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, field+" must be a positive integer")
	}
	return n, nil
}
