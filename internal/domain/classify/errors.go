package classify

import "errors"

// ErrUnknownPolicy is returned by ParsePolicy for unsupported policy names.
var ErrUnknownPolicy = errors.New("unknown classify policy")
