package relay

import (
	"time"

	"github.com/okian/readfeed/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithDialTimeout bounds one websocket handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// WithDialRetries sets how many times a failed dial is retried with
// exponential backoff.
func WithDialRetries(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.dialRetries = n
		}
	}
}

// WithWriteTimeout bounds one outgoing frame.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.writeTimeout = d
		}
	}
}

// WithReadLimit caps the size of one incoming frame in bytes.
func WithReadLimit(n int64) Option {
	return func(p *Pool) {
		if n > 0 {
			p.readLimit = n
		}
	}
}

// WithEOSETimeout bounds how long a query waits for a relay to signal the
// end of its stored events.
func WithEOSETimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.eoseTimeout = d
		}
	}
}

// WithLogger sets the logger used by the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}
