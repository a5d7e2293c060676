package ledger

import "errors"

// Sentinel errors returned by ledgers.
var (
	ErrInvalidDate  = errors.New("date must be YYYY-MM-DD")
	ErrInvalidEvent = errors.New("attendance event requires an identity id")
)
