package store

import (
	"fmt"

	"kiosk/pkg/platform/sentinel"
)

// Both wrap sentinel.ErrAlreadyUsed so callers that only care about
// uniqueness can match the sentinel.
var (
	ErrInsuranceIDTaken    = fmt.Errorf("insurance id %w", sentinel.ErrAlreadyUsed)
	ErrCitizenHasInsurance = fmt.Errorf("citizen insurance %w", sentinel.ErrAlreadyUsed)
)
