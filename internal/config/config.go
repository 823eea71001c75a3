// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"runtime"
	"time"
)

// DefaultRelays are queried when no relay list is configured.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Relays lists the relay endpoints every feed query fans out to.
	Relays []string `koanf:"relays"`

	// FetchTimeout is how long a feed request waits for relays.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// EndpointTimeout bounds one relay's answer within a fetch. Zero uses
	// two thirds of FetchTimeout, so one stalled relay cannot empty a feed.
	EndpointTimeout time.Duration `koanf:"endpoint_timeout"`

	// FeedTimeout bounds a whole feed pass, enrichment included. The HTTP
	// write timeout is derived from it.
	FeedTimeout time.Duration `koanf:"feed_timeout"`

	// StragglerTimeout bounds relay work that continues after FetchTimeout
	// so late answers can still warm the cache.
	StragglerTimeout time.Duration `koanf:"straggler_timeout"`

	// CacheTTL is how long a relay result is reused.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// CacheShards sets the number of result cache shards.
	CacheShards int `koanf:"cache_shards"`

	// FeedTag is the topic tag of the global feed.
	FeedTag string `koanf:"feed_tag"`

	// FetchMultiplier scales the relay limit over the requested feed size,
	// since classification drops and expands events.
	FetchMultiplier int `koanf:"fetch_multiplier"`

	// DefaultFeedLimit applies when a request names no limit.
	DefaultFeedLimit int `koanf:"default_feed_limit"`

	// MaxFeedLimit caps GET /feed?limit.
	MaxFeedLimit int `koanf:"max_feed_limit"`

	// ClassifyPolicy is "all" or "reading_status".
	ClassifyPolicy string `koanf:"classify_policy"`

	// KeepUnlinkedPosts keeps feed posts that reference no book.
	KeepUnlinkedPosts bool `koanf:"keep_unlinked_posts"`

	// CatalogURL is the Open Library base URL.
	CatalogURL string `koanf:"catalog_url"`

	// CatalogTimeout bounds one catalog HTTP attempt.
	CatalogTimeout time.Duration `koanf:"catalog_timeout"`

	// CatalogRetries is the number of catalog retries.
	CatalogRetries int `koanf:"catalog_retries"`

	// QueueSize bounds the background refresh queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of refresh workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the set of pending refresh keys.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		Relays:            append([]string(nil), DefaultRelays...),
		FetchTimeout:      15 * time.Second,
		StragglerTimeout:  30 * time.Second,
		FeedTimeout:       45 * time.Second,
		CacheTTL:          2 * time.Minute,
		CacheShards:       8,
		FeedTag:           "bookstr",
		FetchMultiplier:   2,
		DefaultFeedLimit:  20,
		MaxFeedLimit:      100,
		ClassifyPolicy:    "all",
		KeepUnlinkedPosts: true,
		CatalogURL:        "https://openlibrary.org",
		CatalogTimeout:    10 * time.Second,
		CatalogRetries:    2,
		QueueSize:         1_000,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        10_000,
	}
}
