package feedprobe

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/okian/readfeed/pkg/logger"
)

// Run executes a probe against the configured service.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	cfg := withDefaults(*config)
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("feedprobe")

	log.Info(ctx, "starting feed probe",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("scope", cfg.Scope),
		logger.Int("limit", cfg.Limit),
		logger.Int("requests", cfg.Requests),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Optionally warm the feed
	if cfg.Refresh {
		ack, err := client.Refresh(ctx, FeedRequest{Scope: cfg.Scope, Limit: cfg.Limit, Viewer: cfg.Viewer})
		if err != nil {
			return stats, err
		}
		stats.RefreshSent = true
		log.Info(ctx, "refresh requested", logger.String("status", ack.Status), logger.Bool("duplicate", ack.Duplicate))
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(RefreshSettleDelay):
		}
	}

	// Step 3: Fetch and verify feeds concurrently
	latencies := fetchFeeds(ctx, log, client, &cfg, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	stats.LatencyP50 = percentile(latencies, percentile50)
	stats.LatencyP95 = percentile(latencies, percentile95)
	if len(latencies) > 0 {
		stats.LatencyMax = latencies[len(latencies)-1]
	}
	displayFinalStats(ctx, log, stats)

	switch {
	case stats.Successful == 0:
		return stats, ErrNoSuccess
	case stats.Violations > 0:
		return stats, fmt.Errorf("%w: %d in %d feeds", ErrFeedViolations, stats.Violations, stats.Invalid)
	}
	log.Info(ctx, "probe completed successfully")
	return stats, nil
}

// fetchFeeds issues the configured requests and returns sorted latencies of
// the successful ones.
func fetchFeeds(ctx context.Context, log logger.Logger, client *HTTPClient, cfg *Config, stats *Stats) []time.Duration {
	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, cfg.Requests)
	)

	p := pool.New().WithMaxGoroutines(cfg.Workers)
	for i := 0; i < cfg.Requests; i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		p.Go(func() {
			start := time.Now()
			feed, err := client.Feed(ctx, cfg.Scope, cfg.Viewer, cfg.Limit)
			elapsed := time.Since(start)
			violations := VerifyFeed(feed, cfg.Limit)

			mu.Lock()
			defer mu.Unlock()
			stats.Requests++
			if err != nil {
				stats.Failed++
				if cfg.Verbose {
					log.Warn(ctx, "feed request failed", logger.Int("request", i), logger.Error(err))
				}
				return
			}
			stats.Successful++
			stats.Activities += len(feed)
			latencies = append(latencies, elapsed)
			if len(violations) > 0 {
				stats.Invalid++
				stats.Violations += len(violations)
				if cfg.Verbose {
					for _, v := range violations {
						log.Warn(ctx, "feed violation", logger.Int("request", i), logger.String("violation", v.String()))
					}
				}
			}
		})
	}
	p.Wait()

	slices.Sort(latencies)
	return latencies
}

// percentile returns the nearest-rank percentile of sorted durations.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	rank = max(rank, 1)
	return sorted[rank-1]
}

func withDefaults(c Config) Config {
	if c.Scope == "" {
		c.Scope = DefaultScope
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Requests <= 0 {
		c.Requests = DefaultRequests
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// displayFinalStats logs the final probe statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var successRate, requestsPerSecond float64
	if stats.Requests > 0 {
		successRate = float64(stats.Successful) / float64(stats.Requests) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.Requests) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("requests", stats.Requests),
		logger.Int("successful", stats.Successful),
		logger.Int("failed", stats.Failed),
		logger.Int("invalidFeeds", stats.Invalid),
		logger.Int("violations", stats.Violations),
		logger.Int("activities", stats.Activities),
		logger.Duration("p50", stats.LatencyP50),
		logger.Duration("p95", stats.LatencyP95),
		logger.Duration("max", stats.LatencyMax),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))
}
