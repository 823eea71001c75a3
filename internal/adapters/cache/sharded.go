package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/readfeed/internal/domain/model"
	"github.com/okian/readfeed/pkg/logger"
	"github.com/okian/readfeed/pkg/metrics"
)

const (
	defaultTTL           = 2 * time.Minute
	defaultShards        = 8
	defaultSweepInterval = 30 * time.Second
)

type shard struct {
	mu      sync.RWMutex
	entries map[model.Fingerprint]*Entry
}

// ShardedStore is an in-memory Store split into shards selected by the
// xxhash of the fingerprint. Reads never observe a partially written entry:
// entries are built before they are published under the shard lock.
type ShardedStore struct {
	shards        []*shard
	shardCount    int
	ttl           time.Duration
	now           func() time.Time
	sweepInterval time.Duration
	log           logger.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*ShardedStore)(nil)

// NewShardedStore constructs a store and, unless disabled, starts the
// background sweeper bound to ctx.
func NewShardedStore(ctx context.Context, opts ...Option) *ShardedStore {
	s := &ShardedStore{
		shardCount:    defaultShards,
		ttl:           defaultTTL,
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("cache")
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[model.Fingerprint]*Entry)}
	}

	if s.sweepInterval > 0 {
		s.startSweeper(ctx)
	}
	return s
}

func (s *ShardedStore) shardFor(fp model.Fingerprint) *shard {
	return s.shards[xxhash.Sum64String(string(fp))%uint64(len(s.shards))]
}

func (s *ShardedStore) expired(e *Entry) bool {
	return s.now().Sub(e.FetchedAt) >= s.ttl
}

// Get implements Store.Get.
func (s *ShardedStore) Get(ctx context.Context, fp model.Fingerprint) ([]model.RawEvent, bool) {
	sh := s.shardFor(fp)

	sh.mu.RLock()
	e, ok := sh.entries[fp]
	sh.mu.RUnlock()

	if !ok {
		metrics.RecordCacheMiss()
		return nil, false
	}
	if s.expired(e) {
		sh.mu.Lock()
		// Only drop the entry we judged expired; a concurrent Put wins.
		if cur, ok := sh.entries[fp]; ok && cur == e {
			delete(sh.entries, fp)
			metrics.RecordCacheEviction(1)
		}
		sh.mu.Unlock()
		metrics.RecordCacheMiss()
		s.log.Debug(ctx, "cache entry expired",
			logger.String("fingerprint", string(fp)),
			logger.Duration("age", s.now().Sub(e.FetchedAt)))
		return nil, false
	}

	metrics.RecordCacheHit()
	return slices.Clone(e.Events), true
}

// Put implements Store.Put. The last write wins.
func (s *ShardedStore) Put(_ context.Context, fp model.Fingerprint, events []model.RawEvent) {
	e := &Entry{
		Fingerprint: fp,
		Events:      slices.Clone(events),
		FetchedAt:   s.now(),
	}
	if e.Events == nil {
		e.Events = []model.RawEvent{}
	}

	sh := s.shardFor(fp)
	sh.mu.Lock()
	sh.entries[fp] = e
	sh.mu.Unlock()
	metrics.RecordCacheWrite()
}

// Entry returns the entry currently held for fp, expired or not.
func (s *ShardedStore) Entry(_ context.Context, fp model.Fingerprint) (Entry, bool) {
	sh := s.shardFor(fp)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[fp]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of held entries, expired ones included.
func (s *ShardedStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Sweep removes expired entries and returns how many were removed.
func (s *ShardedStore) Sweep(ctx context.Context) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for fp, e := range sh.entries {
			if s.expired(e) {
				delete(sh.entries, fp)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		metrics.RecordCacheEviction(removed)
		s.log.Debug(ctx, "swept expired cache entries", logger.Int("removed", removed))
	}
	metrics.UpdateCacheEntries(s.Len())
	return removed
}

func (s *ShardedStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Close stops the background sweeper.
func (s *ShardedStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}
