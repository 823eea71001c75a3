// Package cache memoizes relay query results keyed by filter fingerprint.
package cache

import (
	"context"
	"time"

	"github.com/okian/readfeed/internal/domain/model"
)

// Entry is one memoized query result. Entries are immutable; a refresh
// replaces the whole entry.
type Entry struct {
	Fingerprint model.Fingerprint
	Events      []model.RawEvent
	FetchedAt   time.Time
}

// Store provides read/write access to memoized query results.
type Store interface {
	// Get returns the events of a non-expired entry. Expired entries are
	// reported as absent.
	Get(ctx context.Context, fp model.Fingerprint) ([]model.RawEvent, bool)

	// Put replaces any entry held for fp.
	Put(ctx context.Context, fp model.Fingerprint, events []model.RawEvent)
}
