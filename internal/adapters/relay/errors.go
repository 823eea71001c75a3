package relay

import "errors"

// Sentinel errors for relay operations.
var (
	ErrPoolClosed         = errors.New("relay pool closed")
	ErrConnectionLost     = errors.New("relay connection lost")
	ErrSubscriptionClosed = errors.New("subscription closed by relay")
	ErrRelayUnavailable   = errors.New("relay unavailable")
	ErrMalformedFrame     = errors.New("malformed relay frame")
)
