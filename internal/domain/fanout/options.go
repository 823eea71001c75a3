package fanout

import (
	"time"

	"github.com/okian/readfeed/pkg/logger"
)

// Option applies a configuration option to the FanOut.
type Option func(*FanOut)

// WithTimeout sets how long a caller waits for the merged result.
func WithTimeout(d time.Duration) Option {
	return func(f *FanOut) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithEndpointTimeout bounds one endpoint's query. The default is two thirds
// of the caller's wait, so a stalled endpoint fails before the caller gives
// up. A longer value lets slow endpoints finish as stragglers.
func WithEndpointTimeout(d time.Duration) Option {
	return func(f *FanOut) {
		if d > 0 {
			f.endpointTimeout = d
		}
	}
}

// WithStragglerTimeout bounds the network work of one pass, including the
// time it keeps running after its caller gave up.
func WithStragglerTimeout(d time.Duration) Option {
	return func(f *FanOut) {
		if d > 0 {
			f.stragglerTimeout = d
		}
	}
}

// WithMaxConcurrency caps the number of endpoints queried at once.
func WithMaxConcurrency(n int) Option {
	return func(f *FanOut) {
		if n > 0 {
			f.maxConcurrency = n
		}
	}
}

// WithLogger sets the logger used by the fan-out.
func WithLogger(l logger.Logger) Option {
	return func(f *FanOut) {
		if l != nil {
			f.log = l
		}
	}
}
