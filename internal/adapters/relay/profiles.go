package relay

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/okian/readfeed/internal/domain/model"
	"github.com/okian/readfeed/internal/domain/types"
)

// Fetcher runs a filter against a set of endpoints. The fan-out satisfies
// it, so lookups share its cache and timeout handling.
type Fetcher interface {
	Fetch(ctx context.Context, filter model.Filter, endpoints []string) []model.RawEvent
}

// ProfileResolver resolves author keys to profile summaries from metadata
// events.
type ProfileResolver struct {
	fetcher   Fetcher
	endpoints []string
}

// NewProfileResolver constructs a ProfileResolver.
func NewProfileResolver(f Fetcher, endpoints []string) *ProfileResolver {
	return &ProfileResolver{fetcher: f, endpoints: endpoints}
}

// ResolveProfiles returns the summaries of the keys that have a metadata
// event. The newest event per author wins.
func (r *ProfileResolver) ResolveProfiles(ctx context.Context, keys []string) ([]types.ProfileSummary, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	events := r.fetcher.Fetch(ctx, model.Filter{
		Kinds:   []int{model.KindMetadata},
		Authors: keys,
		Limit:   len(keys),
	}, r.endpoints)

	latest := make(map[string]model.RawEvent, len(events))
	for _, e := range events {
		if e.Kind != model.KindMetadata {
			continue
		}
		if cur, ok := latest[e.AuthorKey]; !ok || e.CreatedAt > cur.CreatedAt {
			latest[e.AuthorKey] = e
		}
	}

	out := make([]types.ProfileSummary, 0, len(latest))
	for _, k := range keys {
		e, ok := latest[k]
		if !ok || !gjson.Valid(e.Content) {
			continue
		}
		out = append(out, parseProfile(k, e.Content))
	}
	return out, nil
}

func parseProfile(key, content string) types.ProfileSummary {
	fields := gjson.GetMany(content, "name", "display_name", "displayName", "picture", "image", "nip05")
	p := types.ProfileSummary{
		Key:         key,
		Name:        fields[0].String(),
		DisplayName: fields[1].String(),
		Picture:     fields[3].String(),
		NIP05:       fields[5].String(),
	}
	if p.DisplayName == "" {
		p.DisplayName = fields[2].String()
	}
	if p.Picture == "" {
		p.Picture = fields[4].String()
	}
	return p
}
