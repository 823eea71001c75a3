package service

import (
	"time"

	"github.com/okian/readfeed/internal/domain/classify"
	"github.com/okian/readfeed/internal/domain/enrich"
	"github.com/okian/readfeed/internal/domain/fanout"
	"github.com/okian/readfeed/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRelays sets the relay endpoints every feed query fans out to.
func WithRelays(relays []string) Option {
	return func(s *Service) {
		if len(relays) > 0 {
			s.relays = append([]string(nil), relays...)
		}
	}
}

// WithFetchTimeout sets how long a feed waits for relays.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithEndpointTimeout bounds one relay's part of a fan-out. Zero derives it
// from the fetch timeout.
func WithEndpointTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.endpointTimeout = d
		}
	}
}

// WithFeedTimeout bounds one whole feed pass: follow lookup, relay fetch and
// enrichment. Stages still running at the deadline degrade to placeholders.
func WithFeedTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.feedTimeout = d
		}
	}
}

// WithStragglerTimeout bounds relay work that continues after the fetch timeout.
func WithStragglerTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.stragglerTimeout = d
		}
	}
}

// WithCacheTTL sets how long relay results are reused.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// WithCacheShards sets the number of result cache shards.
func WithCacheShards(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheShards = n
		}
	}
}

// WithCacheClock overrides the result cache clock.
func WithCacheClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.cacheClock = now
		}
	}
}

// WithFeedTag sets the topic tag of the global feed.
func WithFeedTag(tag string) Option {
	return func(s *Service) {
		if tag != "" {
			s.feedTag = tag
		}
	}
}

// WithFetchMultiplier scales the relay limit over the requested feed size.
func WithFetchMultiplier(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fetchMultiplier = n
		}
	}
}

// WithFeedLimits sets the default and maximum feed sizes.
func WithFeedLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if defaultLimit > 0 && maxLimit >= defaultLimit {
			s.defaultLimit = defaultLimit
			s.maxLimit = maxLimit
		}
	}
}

// WithClassifyPolicy selects which activity types reach the feed.
func WithClassifyPolicy(p classify.Policy) Option {
	return func(s *Service) {
		if p != "" {
			s.policy = p
		}
	}
}

// WithKeepUnlinkedPosts keeps posts that reference no book.
func WithKeepUnlinkedPosts(keep bool) Option {
	return func(s *Service) {
		s.keepUnlinked = keep
	}
}

// WithCatalog configures the Open Library subject resolver.
func WithCatalog(baseURL string, timeout time.Duration, retries int) Option {
	return func(s *Service) {
		if baseURL != "" {
			s.catalogURL = baseURL
		}
		if timeout > 0 {
			s.catalogTimeout = timeout
		}
		if retries >= 0 {
			s.catalogRetries = retries
		}
	}
}

// WithWorkerCount sets the number of refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending refreshes.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the set of pending refresh keys.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithQuerier replaces the websocket relay pool.
func WithQuerier(q fanout.Querier) Option {
	return func(s *Service) {
		s.querier = q
	}
}

// WithProfileResolver replaces the relay-backed profile resolver.
func WithProfileResolver(r enrich.ProfileResolver) Option {
	return func(s *Service) {
		s.profiles = r
	}
}

// WithSubjectResolver replaces the Open Library subject resolver.
func WithSubjectResolver(r enrich.SubjectResolver) Option {
	return func(s *Service) {
		s.subjects = r
	}
}

// WithFollowLister replaces the relay-backed follow-list source.
func WithFollowLister(f FollowLister) Option {
	return func(s *Service) {
		s.follows = f
	}
}
