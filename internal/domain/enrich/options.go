package enrich

import "github.com/okian/readfeed/pkg/logger"

// Option applies a configuration option to the Joiner.
type Option func(*Joiner)

// WithLogger sets the logger used by the joiner.
func WithLogger(l logger.Logger) Option {
	return func(j *Joiner) {
		if l != nil {
			j.log = l
		}
	}
}
