// Package assemble builds the final, ordered feed from enriched candidates.
package assemble

import (
	"cmp"
	"slices"

	"github.com/okian/readfeed/internal/domain/enrich"
	"github.com/okian/readfeed/internal/domain/types"
)

// Assemble converts items to activities, drops duplicate ids (first wins),
// orders them newest first with ties broken by id, and only then truncates
// to limit. A non-positive limit keeps everything.
func Assemble(items []enrich.Enriched, limit int) []types.Activity {
	out := make([]types.Activity, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		a := activityOf(it)
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}

	slices.SortFunc(out, func(a, b types.Activity) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit:limit]
	}
	return out
}

func activityOf(it enrich.Enriched) types.Activity {
	c := it.Candidate
	a := types.Activity{
		ID:        c.ActivityID(),
		AuthorKey: c.Event.AuthorKey,
		Type:      c.Type,
		Subject:   it.Subject,
		Content:   c.Event.Content,
		CreatedAt: c.Event.CreatedAtMillis(),
		Author:    it.Author,
		Spoiler:   c.Spoiler,
	}
	if c.Rating != nil {
		r := *c.Rating
		a.Rating = &r
	}
	if c.Media != nil {
		m := *c.Media
		a.Media = &m
	}
	return a
}
