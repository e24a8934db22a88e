package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors observed at the core boundary. The HTTP layer maps these
// to status codes; everything else wraps with %w so errors.Is keeps working.
var (
	// ErrAuthFailure indicates token minting or credential validation failed.
	ErrAuthFailure = errors.New("broker authentication failed")

	// ErrNotInitialised indicates the price store holds no bars yet.
	ErrNotInitialised = errors.New("price database not initialised")

	// ErrAlreadyInitialised indicates a full backfill was requested without
	// force_rebuild against a populated store.
	ErrAlreadyInitialised = errors.New("price database already initialised")

	// ErrInvalidInput indicates a malformed request or identifier.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCollectionRunning indicates a backfill or update is already in flight.
	ErrCollectionRunning = errors.New("collection already running")
)

// BrokerError carries the broker's return code and message verbatim.
// The client does not map broker codes to semantic kinds.
type BrokerError struct {
	Code string // rt_cd
	Msg  string // msg1
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker error %s: %s", e.Code, e.Msg)
}

// AsBrokerError unwraps err to a BrokerError if one is in the chain.
func AsBrokerError(err error) (*BrokerError, bool) {
	var be *BrokerError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
