package fanout

import "errors"

// Sentinel errors for fan-out passes.
var (
	ErrNoEndpoints     = errors.New("no relay endpoints")
	ErrAllRelaysFailed = errors.New("every relay endpoint failed")
)
