// Package service owns the feed pipeline components and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/readfeed/internal/adapters/cache"
	"github.com/okian/readfeed/internal/adapters/catalog"
	"github.com/okian/readfeed/internal/adapters/mq/queue"
	"github.com/okian/readfeed/internal/adapters/mq/worker"
	"github.com/okian/readfeed/internal/adapters/relay"
	"github.com/okian/readfeed/internal/config"
	"github.com/okian/readfeed/internal/domain/assemble"
	"github.com/okian/readfeed/internal/domain/classify"
	"github.com/okian/readfeed/internal/domain/dedupe"
	"github.com/okian/readfeed/internal/domain/enrich"
	"github.com/okian/readfeed/internal/domain/fanout"
	"github.com/okian/readfeed/internal/domain/model"
	"github.com/okian/readfeed/internal/domain/types"
	"github.com/okian/readfeed/pkg/logger"
	"github.com/okian/readfeed/pkg/metrics"
)

// FollowLister returns the keys a viewer follows.
type FollowLister interface {
	Follows(ctx context.Context, viewer string) ([]string, error)
}

// Service implements the API dependencies for the feed.
type Service struct {
	mu sync.RWMutex

	// Settings
	relays           []string
	fetchTimeout     time.Duration
	endpointTimeout  time.Duration
	stragglerTimeout time.Duration
	feedTimeout      time.Duration
	cacheTTL         time.Duration
	cacheShards      int
	cacheClock       func() time.Time
	feedTag          string
	fetchMultiplier  int
	defaultLimit     int
	maxLimit         int
	policy           classify.Policy
	keepUnlinked     bool
	catalogURL       string
	catalogTimeout   time.Duration
	catalogRetries   int
	workerCount      int
	queueSize        int
	dedupeSize       int

	// Collaborators, injected or built on Start
	querier  fanout.Querier
	profiles enrich.ProfileResolver
	subjects enrich.SubjectResolver
	follows  FollowLister

	// Components owned between Start and Stop
	pool       *relay.Pool
	cache      *cache.ShardedStore
	fan        *fanout.FanOut
	classifier *classify.Classifier
	joiner     *enrich.Joiner
	// activeFollows is follows or the relay-backed default.
	activeFollows FollowLister
	pending       dedupe.Deduper
	queue         queue.Queue
	workers       *worker.Pool

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		relays:           append([]string(nil), config.DefaultRelays...),
		fetchTimeout:     15 * time.Second,
		stragglerTimeout: 30 * time.Second,
		feedTimeout:      45 * time.Second,
		cacheTTL:         2 * time.Minute,
		cacheShards:      8,
		cacheClock:       time.Now,
		feedTag:          "bookstr",
		fetchMultiplier:  2,
		defaultLimit:     20,
		maxLimit:         100,
		policy:           classify.PolicyAll,
		keepUnlinked:     true,
		catalogURL:       "https://openlibrary.org",
		catalogTimeout:   10 * time.Second,
		catalogRetries:   2,
		workerCount:      runtime.NumCPU(),
		queueSize:        1_000,
		dedupeSize:       10_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the pipeline components and starts the refresh workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting feed service...")

	// Components outlive the start-up context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	endpointTimeout := s.endpointTimeout
	if endpointTimeout <= 0 {
		endpointTimeout = s.fetchTimeout * 2 / 3
	}

	querier := s.querier
	if querier == nil {
		// Cut a silent relay off with what it sent before the fan-out drops it.
		s.pool = relay.NewPool(
			relay.WithEOSETimeout(endpointTimeout-endpointTimeout/5),
			relay.WithLogger(s.logger.Named("relay")),
		)
		querier = s.pool
	}

	s.cache = cache.NewShardedStore(runCtx,
		cache.WithTTL(s.cacheTTL),
		cache.WithShards(s.cacheShards),
		cache.WithClock(s.cacheClock),
		cache.WithLogger(s.logger.Named("cache")),
	)
	s.fan = fanout.New(querier, s.cache,
		fanout.WithTimeout(s.fetchTimeout),
		fanout.WithEndpointTimeout(endpointTimeout),
		fanout.WithStragglerTimeout(s.stragglerTimeout),
		fanout.WithLogger(s.logger.Named("fanout")),
	)

	profiles := s.profiles
	if profiles == nil {
		profiles = relay.NewProfileResolver(s.fan, s.relays)
	}
	subjects := s.subjects
	if subjects == nil {
		subjects = catalog.NewOpenLibrary(
			catalog.WithBaseURL(s.catalogURL),
			catalog.WithTimeout(s.catalogTimeout),
			catalog.WithRetries(s.catalogRetries),
			catalog.WithLogger(s.logger.Named("catalog")),
		)
	}
	s.activeFollows = s.follows
	if s.activeFollows == nil {
		s.activeFollows = relay.NewFollowSource(s.fan, s.relays)
	}

	s.classifier = classify.New(
		classify.WithPolicy(s.policy),
		classify.WithKeepUnlinkedPosts(s.keepUnlinked),
		classify.WithFeedTag(s.feedTag),
		classify.WithLogger(s.logger.Named("classify")),
	)
	s.joiner = enrich.New(profiles, subjects, enrich.WithLogger(s.logger.Named("enrich")))

	s.pending = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.workers = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithRefreshTimeout(s.feedTimeout),
		worker.WithLogger(s.logger.Named("worker")),
	)
	s.workers.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "feed service started",
		logger.Int("relays", len(s.relays)),
		logger.Int("workers", s.workers.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.String("policy", string(s.policy)),
	)
	return nil
}

// Stop stops the workers and releases pooled connections.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	workers, store, pool, cancel := s.workers, s.cache, s.pool, s.cancel
	s.pool = nil
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping feed service...")

	// Workers finishing a refresh still read service state.
	if err := workers.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "refresh workers did not stop cleanly", logger.Error(err))
	}
	closeQuietly(ctx, s.logger, "cache", store)
	if pool != nil {
		closeQuietly(ctx, s.logger, "relay pool", pool)
	}
	cancel()

	s.logger.Info(ctx, "feed service stopped")
}

func closeQuietly(ctx context.Context, log logger.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warn(ctx, "close failed", logger.String("component", what), logger.Error(err))
	}
}

// Normalize validates req and fills in the default limit.
func (s *Service) Normalize(req types.FeedRequest) (types.FeedRequest, error) {
	scope, err := types.ParseScope(string(req.Scope))
	if err != nil {
		return req, err
	}
	req.Scope = scope
	switch {
	case req.Limit == 0:
		req.Limit = s.defaultLimit
	case req.Limit < 0 || req.Limit > s.maxLimit:
		return req, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidLimit, req.Limit, s.maxLimit)
	}
	return req, nil
}

// GetFeed runs one aggregation pass within the feed timeout. Relay and
// resolver failures degrade the result; an error is returned only for an
// invalid request.
func (s *Service) GetFeed(ctx context.Context, req types.FeedRequest) ([]types.Activity, error) {
	return s.run(ctx, req, false)
}

// Refresh rebuilds a feed bypassing the relay result cache, so the next
// GetFeed for it is served warm. It implements worker.Refresher.
func (s *Service) Refresh(ctx context.Context, r model.RefreshRequest) error {
	defer s.pendingSet().Unrecord(ctx, r.Key)
	_, err := s.run(ctx, types.FeedRequest{Scope: types.Scope(r.Scope), Limit: r.Limit, Viewer: r.Viewer}, true)
	return err
}

// RequestRefresh schedules a background Refresh. A refresh already pending
// for the same feed absorbs the request.
func (s *Service) RequestRefresh(ctx context.Context, req types.FeedRequest) (types.RefreshStatus, error) {
	req, err := s.Normalize(req)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return 0, ErrNotStarted
	}

	key := req.Key()
	if s.pending.SeenAndRecord(ctx, key) {
		metrics.RecordRefreshCollapsed()
		return types.RefreshPending, nil
	}
	err = s.queue.Enqueue(ctx, model.RefreshRequest{
		Key:    key,
		Scope:  string(req.Scope),
		Limit:  req.Limit,
		Viewer: req.Viewer,
	})
	if err != nil {
		s.pending.Unrecord(ctx, key)
		return 0, fmt.Errorf("%w: %w", ErrBackpressure, err)
	}
	return types.RefreshAccepted, nil
}

func (s *Service) pendingSet() dedupe.Deduper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

type pipeline struct {
	fan        *fanout.FanOut
	classifier *classify.Classifier
	joiner     *enrich.Joiner
	follows    FollowLister
}

func (s *Service) components() (pipeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pipeline{fan: s.fan, classifier: s.classifier, joiner: s.joiner, follows: s.activeFollows}, s.started
}

func (s *Service) run(ctx context.Context, req types.FeedRequest, refresh bool) ([]types.Activity, error) {
	req, err := s.Normalize(req)
	if err != nil {
		return nil, err
	}
	p, ok := s.components()
	if !ok {
		return nil, ErrNotStarted
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.feedTimeout)
	defer cancel()
	ctx = logger.ContextWith(ctx,
		logger.String("pass", uuid.NewString()),
		logger.String("scope", string(req.Scope)),
	)

	filter, ok := s.filterFor(ctx, p, req)
	if !ok {
		metrics.RecordFeedServed(string(req.Scope), 0, float64(time.Since(start).Milliseconds()))
		return []types.Activity{}, nil
	}

	var (
		events  []model.RawEvent
		outcome fanout.Outcome
	)
	if refresh {
		events, outcome = p.fan.Refresh(ctx, filter, s.relays)
	} else {
		events, outcome = p.fan.FetchWithStatus(ctx, filter, s.relays)
	}

	candidates := p.classifier.Classify(ctx, events)
	enriched := p.joiner.Enrich(ctx, candidates)
	feed := assemble.Assemble(enriched, req.Limit)
	if feed == nil {
		feed = []types.Activity{}
	}

	took := time.Since(start)
	metrics.RecordFeedServed(string(req.Scope), len(feed), float64(took.Milliseconds()))
	s.logger.Debug(ctx, "feed assembled",
		logger.String("outcome", outcome.String()),
		logger.Int("events", len(events)),
		logger.Int("candidates", len(candidates)),
		logger.Int("activities", len(feed)),
		logger.Duration("took", took),
	)
	return feed, nil
}

// filterFor builds the relay filter of a feed. It reports false when the
// feed is empty by construction.
func (s *Service) filterFor(ctx context.Context, p pipeline, req types.FeedRequest) (model.Filter, bool) {
	filter := model.Filter{
		Kinds: p.classifier.Kinds(),
		Limit: req.Limit * s.fetchMultiplier,
	}
	if req.Scope == types.ScopeGlobal {
		filter.Tags = map[string][]string{model.TagTopic: {s.feedTag}}
		return filter, true
	}

	if req.Viewer == "" {
		s.logger.Debug(ctx, "followers feed without viewer")
		return filter, false
	}
	follows, err := p.follows.Follows(ctx, req.Viewer)
	if err != nil {
		s.logger.Warn(ctx, "follow list unavailable", logger.Error(err))
		return filter, false
	}
	if len(follows) == 0 {
		return filter, false
	}
	filter.Authors = follows
	return filter, true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"relays":      len(s.relays),
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"policy":      string(s.policy),
	}
	if s.started {
		entries := s.cache.Len()
		stats["cacheEntries"] = entries
		stats["queueLength"] = s.queue.Len(context.Background())
		stats["pendingRefreshes"] = s.pending.Size()
		metrics.UpdateCacheEntries(entries)
		if s.pool != nil {
			conns := s.pool.Len()
			stats["relayConnections"] = conns
			metrics.UpdateRelayConnections(conns)
		}
	}
	return stats
}
