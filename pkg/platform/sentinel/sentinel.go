package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally wrapped)
// and services translate them into domain errors:
//   - ErrNotFound: record does not exist in the store
//   - ErrAlreadyUsed: a unique key (citizen id, insurance id) is already taken
//   - ErrSerialization: the database aborted the transaction under contention
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation failures use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyUsed   = errors.New("already used")
	ErrInvalidState  = errors.New("invalid state")
	ErrSerialization = errors.New("serialization failure")
	ErrUnavailable   = errors.New("unavailable")
)
