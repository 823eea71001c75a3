package classify

import (
	"github.com/okian/readfeed/internal/domain/model"
	"github.com/okian/readfeed/internal/domain/types"
)

// List names carried in the d tag of generic list events.
const (
	listTBR     = "tbr"
	listReading = "reading"
	listRead    = "read-books"
)

var kindTypes = map[int]types.ActivityType{
	model.KindBookTBR:     types.AddedToList,
	model.KindBookReading: types.Started,
	model.KindBookRead:    types.Finished,
	model.KindBookRating:  types.Rated,
	model.KindReview:      types.Reviewed,
	model.KindTextNote:    types.Posted,
}

// TypeOf maps an event to its activity type. Unrecognized kinds map to
// types.Ignored.
func TypeOf(e model.RawEvent) types.ActivityType {
	if e.Kind == model.KindGenericList {
		d, _ := model.TagValue(e.Tags, model.TagDTag)
		switch d {
		case listTBR:
			return types.AddedToList
		case listReading:
			return types.Started
		case listRead:
			return types.Finished
		default:
			return types.Ignored
		}
	}
	if t, ok := kindTypes[e.Kind]; ok {
		return t
	}
	return types.Ignored
}

// FeedKinds returns the kinds a feed query must request.
func FeedKinds() []int {
	return []int{
		model.KindTextNote,
		model.KindReview,
		model.KindBookTBR,
		model.KindBookReading,
		model.KindBookRead,
		model.KindGenericList,
		model.KindBookRating,
	}
}

// Kinds returns the feed kinds that can yield an activity under p. Generic
// lists are always requested since they carry reading status.
func (p Policy) Kinds() []int {
	all := FeedKinds()
	out := make([]int, 0, len(all))
	for _, k := range all {
		if t, ok := kindTypes[k]; ok && !p.allows(t) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Kinds returns the relay kinds worth requesting under the active policy.
func (c *Classifier) Kinds() []int {
	return c.policy.Kinds()
}
