// Package model contains domain models passed between layers.
package model

// Event kinds understood by the feed pipeline.
const (
	KindMetadata    = 0
	KindTextNote    = 1
	KindContacts    = 3
	KindReview      = 1111
	KindBookTBR     = 10073
	KindBookReading = 10074
	KindBookRead    = 10075
	KindGenericList = 30000
	KindBookRating  = 31985
)

// RawEvent is a signed event as delivered by a relay. Signatures are checked
// by the transport; the pipeline treats events as trusted and immutable.
type RawEvent struct {
	ID        string // content-addressed id, unique across relays
	AuthorKey string // hex public key of the author
	Kind      int    // semantic discriminator
	CreatedAt int64  // unix seconds, author supplied
	Content   string
	Tags      []Tag
}

// CreatedAtMillis converts the author supplied timestamp to milliseconds.
func (e RawEvent) CreatedAtMillis() int64 {
	return e.CreatedAt * 1000
}

// RefreshRequest describes a background feed refresh flowing through the
// refresh queue.
type RefreshRequest struct {
	Key    string // pending-refresh key, see types.FeedRequest.Key
	Scope  string
	Limit  int
	Viewer string
}
