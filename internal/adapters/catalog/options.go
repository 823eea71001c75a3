package catalog

import (
	"strings"
	"time"

	"github.com/okian/readfeed/pkg/logger"
)

// Option applies a configuration option to the OpenLibrary client.
type Option func(*OpenLibrary)

// WithBaseURL points the client at a catalog host.
func WithBaseURL(u string) Option {
	return func(o *OpenLibrary) {
		if u != "" {
			o.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout bounds one HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *OpenLibrary) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetries sets how many times a failed request is retried.
func WithRetries(n int) Option {
	return func(o *OpenLibrary) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(o *OpenLibrary) {
		if minWait > 0 && maxWait >= minWait {
			o.retryWaitMin = minWait
			o.retryWaitMax = maxWait
		}
	}
}

// WithChunkSize caps the identifiers sent in one request.
func WithChunkSize(n int) Option {
	return func(o *OpenLibrary) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(l logger.Logger) Option {
	return func(o *OpenLibrary) {
		if l != nil {
			o.log = l
		}
	}
}
