package cache

import (
	"time"

	"github.com/okian/readfeed/pkg/logger"
)

// Option applies a configuration option to the ShardedStore.
type Option func(*ShardedStore)

// WithTTL sets how long an entry stays valid after it was fetched.
func WithTTL(ttl time.Duration) Option {
	return func(s *ShardedStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithShards sets the number of independently locked shards.
func WithShards(n int) Option {
	return func(s *ShardedStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ShardedStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepInterval enables a background sweep of expired entries.
// Zero disables it; expired entries are then only dropped on read.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *ShardedStore) {
		if interval >= 0 {
			s.sweepInterval = interval
		}
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(l logger.Logger) Option {
	return func(s *ShardedStore) {
		if l != nil {
			s.log = l
		}
	}
}
