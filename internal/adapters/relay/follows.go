package relay

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/okian/readfeed/internal/domain/model"
)

// FollowSource looks up the keys a viewer follows from their latest
// contacts event.
type FollowSource struct {
	fetcher   Fetcher
	endpoints []string
	group     singleflight.Group
}

// NewFollowSource constructs a FollowSource.
func NewFollowSource(f Fetcher, endpoints []string) *FollowSource {
	return &FollowSource{fetcher: f, endpoints: endpoints}
}

// Follows returns the followed keys of viewer, or nothing when no contacts
// event is found. Concurrent lookups of one viewer share a single fetch.
func (s *FollowSource) Follows(ctx context.Context, viewer string) ([]string, error) {
	if viewer == "" {
		return nil, nil
	}
	v, err, _ := s.group.Do(viewer, func() (any, error) {
		events := s.fetcher.Fetch(ctx, model.Filter{
			Kinds:   []int{model.KindContacts},
			Authors: []string{viewer},
			Limit:   1,
		}, s.endpoints)

		var latest *model.RawEvent
		for i := range events {
			e := &events[i]
			if e.Kind != model.KindContacts || e.AuthorKey != viewer {
				continue
			}
			if latest == nil || e.CreatedAt > latest.CreatedAt {
				latest = e
			}
		}
		if latest == nil {
			return []string(nil), nil
		}
		return model.ReferencedKeys(latest.Tags, model.TagPubkey), nil
	})
	if err != nil {
		return nil, err
	}
	keys := v.([]string)
	return append([]string(nil), keys...), nil
}
