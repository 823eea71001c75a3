// Package fanout queries a set of relay endpoints concurrently and memoizes
// the merged result.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/okian/readfeed/internal/domain/dedupe"
	"github.com/okian/readfeed/internal/domain/model"
	"github.com/okian/readfeed/pkg/logger"
	"github.com/okian/readfeed/pkg/metrics"
)

const (
	defaultTimeout          = 15 * time.Second
	defaultStragglerTimeout = 30 * time.Second
)

// Querier runs one filter against one relay endpoint.
type Querier interface {
	Query(ctx context.Context, endpoint string, filter model.Filter) ([]model.RawEvent, error)
}

// Cache memoizes query results by fingerprint.
type Cache interface {
	Get(ctx context.Context, fp model.Fingerprint) ([]model.RawEvent, bool)
	Put(ctx context.Context, fp model.Fingerprint, events []model.RawEvent)
}

// Outcome describes how a fetch was resolved.
type Outcome int

// Fetch outcomes.
const (
	OutcomeCacheHit Outcome = iota
	OutcomeSuccess
	OutcomeTimeout
	OutcomeUnavailable
	OutcomeCanceled
)

var outcomeNames = [...]string{"cache_hit", "success", "timeout", "unavailable", "canceled"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// FanOut resolves filters through a cache and a relay querier.
type FanOut struct {
	querier          Querier
	cache            Cache
	timeout          time.Duration
	endpointTimeout  time.Duration
	stragglerTimeout time.Duration
	maxConcurrency   int
	log              logger.Logger
}

// New constructs a FanOut.
func New(q Querier, c Cache, opts ...Option) *FanOut {
	f := &FanOut{
		querier:          q,
		cache:            c,
		timeout:          defaultTimeout,
		stragglerTimeout: defaultStragglerTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.stragglerTimeout < f.timeout {
		f.stragglerTimeout = f.timeout
	}
	if f.endpointTimeout <= 0 {
		f.endpointTimeout = f.timeout * 2 / 3
	}
	if f.log == nil {
		f.log = logger.Get().Named("fanout")
	}
	return f
}

// Fetch returns the events matching filter. It never fails: timeouts and
// relay errors resolve to an empty result.
func (f *FanOut) Fetch(ctx context.Context, filter model.Filter, endpoints []string) []model.RawEvent {
	events, _ := f.FetchWithStatus(ctx, filter, endpoints)
	return events
}

type passResult struct {
	events []model.RawEvent
	err    error
}

// FetchWithStatus is Fetch that also reports how the result was obtained.
func (f *FanOut) FetchWithStatus(ctx context.Context, filter model.Filter, endpoints []string) ([]model.RawEvent, Outcome) {
	return f.fetch(ctx, filter, endpoints, true)
}

// Refresh queries the relays even when a cached result exists and replaces
// the cached entry on success.
func (f *FanOut) Refresh(ctx context.Context, filter model.Filter, endpoints []string) ([]model.RawEvent, Outcome) {
	return f.fetch(ctx, filter, endpoints, false)
}

func (f *FanOut) fetch(ctx context.Context, filter model.Filter, endpoints []string, useCache bool) ([]model.RawEvent, Outcome) {
	start := time.Now()
	fp := filter.Fingerprint()
	log := f.log.With(logger.String("fingerprint", string(fp)))

	if useCache {
		if events, ok := f.cache.Get(ctx, fp); ok {
			f.record(OutcomeCacheHit, start)
			return events, OutcomeCacheHit
		}
	}
	if len(endpoints) == 0 {
		log.Warn(ctx, "relays unavailable", logger.Error(ErrNoEndpoints))
		f.record(OutcomeUnavailable, start)
		return nil, OutcomeUnavailable
	}

	var abandoned atomic.Bool
	done := make(chan passResult, 1)

	// The network pass outlives the caller on purpose: a straggler that
	// completes still warms the cache for the next call.
	netCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.stragglerTimeout)
	go func() {
		defer cancel()
		events, err := f.query(netCtx, filter, endpoints)
		if err == nil {
			f.cache.Put(netCtx, fp, events)
			if abandoned.Load() {
				metrics.RecordStragglerWrite()
				log.Debug(netCtx, "late fan-out result cached", logger.Int("events", len(events)))
			}
		}
		done <- passResult{events: events, err: err}
	}()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			log.Warn(ctx, "relays unavailable", logger.Error(r.err))
			f.record(OutcomeUnavailable, start)
			return nil, OutcomeUnavailable
		}
		metrics.RecordEventsFetched(len(r.events))
		f.record(OutcomeSuccess, start)
		return r.events, OutcomeSuccess
	case <-timer.C:
		abandoned.Store(true)
		log.Warn(ctx, "fan-out timed out", logger.Duration("timeout", f.timeout))
		f.record(OutcomeTimeout, start)
		return nil, OutcomeTimeout
	case <-ctx.Done():
		abandoned.Store(true)
		f.record(OutcomeCanceled, start)
		return nil, OutcomeCanceled
	}
}

// query runs filter against every endpoint and merges the results. Each
// endpoint gets its own deadline, so a stalled one counts as a failure and
// the rest still merge. It fails only when no endpoint succeeded or the pass
// itself ran out of time.
func (f *FanOut) query(ctx context.Context, filter model.Filter, endpoints []string) ([]model.RawEvent, error) {
	var (
		mu        sync.Mutex
		merged    []model.RawEvent
		succeeded atomic.Int32
		seen      = dedupe.NewInMemoryDeduper()
	)

	limit := f.maxConcurrency
	if limit <= 0 || limit > len(endpoints) {
		limit = len(endpoints)
	}
	p := pool.New().WithContext(ctx).WithMaxGoroutines(limit)
	for _, endpoint := range endpoints {
		endpoint := endpoint
		p.Go(func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, f.endpointTimeout)
			defer cancel()
			events, err := f.querier.Query(ctx, endpoint, filter)
			if err != nil {
				metrics.RecordRelayError(endpoint)
				f.log.Debug(ctx, "relay query failed",
					logger.String("endpoint", endpoint),
					logger.Error(err))
				return fmt.Errorf("%s: %w", endpoint, err)
			}
			succeeded.Add(1)

			mu.Lock()
			defer mu.Unlock()
			for _, e := range events {
				if e.ID == "" || seen.SeenAndRecord(ctx, e.ID) {
					continue
				}
				merged = append(merged, e)
			}
			return nil
		})
	}
	err := p.Wait()

	if ctx.Err() != nil {
		// Endpoints cut off by the deadline make the merge partial.
		return nil, errors.Join(ctx.Err(), err)
	}
	if succeeded.Load() == 0 {
		return nil, errors.Join(ErrAllRelaysFailed, err)
	}
	if merged == nil {
		merged = []model.RawEvent{}
	}
	return merged, nil
}

func (f *FanOut) record(o Outcome, start time.Time) {
	metrics.RecordFanoutQuery(o.String())
	metrics.RecordFanoutLatency(float64(time.Since(start).Milliseconds()))
}
