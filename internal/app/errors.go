package service

import (
	"fmt"

	"github.com/okian/readfeed/internal/domain/types"
)

// Errors returned by the service. They wrap or alias the request errors in
// types so transports can classify them without importing this package.
var (
	ErrNotStarted   = fmt.Errorf("%w: service not started", types.ErrUnavailable)
	ErrInvalidLimit = types.ErrInvalidLimit
	ErrBackpressure = types.ErrBackpressure
)
