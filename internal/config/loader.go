package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "READFEED_"
	envFileVar = "READFEED_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if READFEED_CONFIG is set
//  3. env (prefix READFEED_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like READFEED_CACHE_TTL -> cache_ttl (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(envPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy. Slices are replaced rather than merged.
	cfg := *base
	if k.Exists("relays") {
		cfg.Relays = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	cfg.Relays = cleanList(cfg.Relays)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case len(c.Relays) == 0:
		return fmt.Errorf("%w: at least one relay is required", ErrInvalidConfig)
	case c.FetchTimeout <= 0:
		return fmt.Errorf("%w: fetch_timeout must be positive", ErrInvalidConfig)
	case c.EndpointTimeout < 0:
		return fmt.Errorf("%w: endpoint_timeout must not be negative", ErrInvalidConfig)
	case c.FeedTimeout < c.FetchTimeout:
		return fmt.Errorf("%w: feed_timeout must not be shorter than fetch_timeout", ErrInvalidConfig)
	case c.StragglerTimeout < c.FetchTimeout:
		return fmt.Errorf("%w: straggler_timeout must not be shorter than fetch_timeout", ErrInvalidConfig)
	case c.CacheTTL <= 0:
		return fmt.Errorf("%w: cache_ttl must be positive", ErrInvalidConfig)
	case c.FetchMultiplier < 1:
		return fmt.Errorf("%w: fetch_multiplier must be at least 1", ErrInvalidConfig)
	case c.MaxFeedLimit < 1 || c.DefaultFeedLimit < 1 || c.DefaultFeedLimit > c.MaxFeedLimit:
		return fmt.Errorf("%w: feed limits must satisfy 1 <= default_feed_limit <= max_feed_limit", ErrInvalidConfig)
	case c.ClassifyPolicy != "all" && c.ClassifyPolicy != "reading_status":
		return fmt.Errorf("%w: unknown classify_policy %q", ErrInvalidConfig, c.ClassifyPolicy)
	}
	return nil
}

func cleanList(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
