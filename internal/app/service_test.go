package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/readfeed/internal/app"
	"github.com/okian/readfeed/internal/domain/classify"
	"github.com/okian/readfeed/internal/domain/model"
	"github.com/okian/readfeed/internal/domain/types"
	"github.com/okian/readfeed/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const (
	alice = "a11ce0000000000000000000000000000000000000000000000000000000a11c"
	bob   = "b0b0000000000000000000000000000000000000000000000000000000000b0b"
	isbnA = "9780441013593"
	isbnB = "9780553283686"
)

type fakeQuerier struct {
	mu      sync.Mutex
	global  []model.RawEvent
	byAuth  map[string][]model.RawEvent
	filters []model.Filter
	calls   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{byAuth: map[string][]model.RawEvent{}, entered: make(chan struct{}, 64)}
}

func (q *fakeQuerier) Query(ctx context.Context, _ string, f model.Filter) ([]model.RawEvent, error) {
	q.calls.Add(1)
	q.entered <- struct{}{}
	if q.gate != nil {
		select {
		case <-q.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.filters = append(q.filters, f)
	if len(f.Authors) == 0 {
		return append([]model.RawEvent(nil), q.global...), nil
	}
	var out []model.RawEvent
	for _, a := range f.Authors {
		out = append(out, q.byAuth[a]...)
	}
	return out, nil
}

func (q *fakeQuerier) lastFilter() model.Filter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.filters[len(q.filters)-1]
}

type fakeProfiles map[string]types.ProfileSummary

func (p fakeProfiles) ResolveProfiles(_ context.Context, keys []string) ([]types.ProfileSummary, error) {
	var out []types.ProfileSummary
	for _, k := range keys {
		if s, ok := p[k]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeSubjects map[string]types.SubjectMetadata

func (c fakeSubjects) ResolveSubjects(_ context.Context, ids []string) ([]types.SubjectMetadata, error) {
	var out []types.SubjectMetadata
	for _, id := range ids {
		if m, ok := c[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// stalledSubjects answers only when the caller gives up.
type stalledSubjects struct{}

func (stalledSubjects) ResolveSubjects(ctx context.Context, _ []string) ([]types.SubjectMetadata, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeFollows map[string][]string

func (f fakeFollows) Follows(_ context.Context, viewer string) ([]string, error) {
	if viewer == "broken" {
		return nil, errors.New("relay down")
	}
	return f[viewer], nil
}

func event(id, author string, kind int, createdAt int64, tags ...model.Tag) model.RawEvent {
	return model.RawEvent{ID: id, AuthorKey: author, Kind: kind, CreatedAt: createdAt, Tags: tags}
}

func newService(q *fakeQuerier, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithRelays([]string{"wss://one", "wss://two"}),
		service.WithQuerier(q),
		service.WithProfileResolver(fakeProfiles{
			alice: {Key: alice, Name: "alice", Picture: "https://img/alice.png"},
		}),
		service.WithSubjectResolver(fakeSubjects{
			isbnA: {ID: isbnA, Title: "Dune", Author: "Frank Herbert"},
		}),
		service.WithFollowLister(fakeFollows{bob: {alice}}),
		service.WithFetchTimeout(time.Second),
		service.WithStragglerTimeout(2 * time.Second),
		service.WithWorkerCount(1),
		service.WithLogger(logger.Nop()),
	}
	return service.New(append(base, opts...)...)
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := newService(newFakeQuerier())

		Convey("Then stats report it stopped", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["relays"], ShouldEqual, 2)
			So(stats["policy"], ShouldEqual, "all")
		})

		Convey("Then feeds are refused before start", func() {
			_, err := svc.GetFeed(context.Background(), types.FeedRequest{Scope: types.ScopeGlobal})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When started and stopped", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["cacheEntries"], ShouldEqual, 0)
			So(stats["queueLength"], ShouldEqual, 0)

			svc.Stop()
			svc.Stop()

			Convey("Then it is marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("Then it can start again", func() {
				So(svc.Start(ctx), ShouldBeNil)
				defer svc.Stop()
				_, err := svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeGlobal})
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestService_GetFeed(t *testing.T) {
	Convey("Given a started service over a fake relay network", t, func() {
		ctx := context.Background()
		q := newFakeQuerier()
		q.global = []model.RawEvent{
			event("e1", alice, model.KindBookTBR, 100, model.NewTag("i", "isbn:"+isbnA)),
			event("e2", bob, model.KindBookRating, 300, model.NewTag("i", "isbn:"+isbnB), model.NewTag("rating", "4")),
			event("e3", bob, model.KindTextNote, 200, model.NewTag("t", "bookstr")),
			event("e4", bob, 7, 400),
			event("e5", alice, model.KindBookRead, 50, model.NewTag("i", "isbn:"+isbnA), model.NewTag("i", "isbn:"+isbnB)),
		}
		svc := newService(q)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When the global feed is requested", func() {
			feed, err := svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeGlobal, Limit: 10})
			So(err, ShouldBeNil)

			Convey("Then the relay filter is tag constrained and over-fetches", func() {
				f := q.lastFilter()
				So(f.Tags["t"], ShouldResemble, []string{"bookstr"})
				So(f.Authors, ShouldBeEmpty)
				So(f.Limit, ShouldEqual, 20)
				So(f.Kinds, ShouldResemble, classify.FeedKinds())
			})

			Convey("Then activities are expanded, enriched and sorted newest first", func() {
				ids := make([]string, len(feed))
				for i, a := range feed {
					ids[i] = a.ID
				}
				So(ids, ShouldResemble, []string{"e2", "e3", "e1", "e5:" + isbnA, "e5:" + isbnB})

				So(feed[0].Type, ShouldEqual, types.Rated)
				So(*feed[0].Rating, ShouldEqual, 4.0)
				So(feed[0].Subject.Placeholder, ShouldBeTrue)
				So(feed[0].Subject.CoverURL, ShouldContainSubstring, isbnB)
				So(feed[0].Author.Placeholder, ShouldBeTrue)

				So(feed[1].Type, ShouldEqual, types.Posted)
				So(feed[1].Subject.Title, ShouldEqual, "Book Discussion")

				So(feed[2].Subject.Title, ShouldEqual, "Dune")
				So(feed[2].Author.Name, ShouldEqual, "alice")
				So(feed[2].CreatedAt, ShouldEqual, int64(100_000))
			})

			Convey("Then a second request within the ttl is served from the cache", func() {
				calls := q.calls.Load()
				again, err := svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeGlobal, Limit: 10})
				So(err, ShouldBeNil)
				So(again, ShouldResemble, feed)
				So(q.calls.Load(), ShouldEqual, calls)
				So(svc.GetStats()["cacheEntries"], ShouldEqual, 1)
			})
		})

		Convey("When the limit is smaller than the feed", func() {
			feed, err := svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeGlobal, Limit: 2})
			So(err, ShouldBeNil)
			So(feed, ShouldHaveLength, 2)
			So(feed[0].ID, ShouldEqual, "e2")
		})

		Convey("When no limit is given the default applies", func() {
			_, err := svc.GetFeed(ctx, types.FeedRequest{})
			So(err, ShouldBeNil)
			So(q.lastFilter().Limit, ShouldEqual, 40)
		})

		Convey("When the request is invalid", func() {
			_, err := svc.GetFeed(ctx, types.FeedRequest{Scope: "friends"})
			So(errors.Is(err, types.ErrInvalidScope), ShouldBeTrue)

			_, err = svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeGlobal, Limit: -1})
			So(errors.Is(err, service.ErrInvalidLimit), ShouldBeTrue)

			_, err = svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeGlobal, Limit: 101})
			So(errors.Is(err, service.ErrInvalidLimit), ShouldBeTrue)
		})
	})
}

func TestService_FollowersFeed(t *testing.T) {
	Convey("Given a viewer following alice", t, func() {
		ctx := context.Background()
		q := newFakeQuerier()
		q.byAuth[alice] = []model.RawEvent{
			event("a1", alice, model.KindReview, 10, model.NewTag("i", "isbn:"+isbnA)),
		}
		svc := newService(q)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When the followers feed is requested", func() {
			feed, err := svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeFollowers, Limit: 5, Viewer: bob})
			So(err, ShouldBeNil)

			Convey("Then the filter is author constrained", func() {
				f := q.lastFilter()
				So(f.Authors, ShouldResemble, []string{alice})
				So(f.Tags, ShouldBeEmpty)
			})

			Convey("Then only followed authors appear", func() {
				So(feed, ShouldHaveLength, 1)
				So(feed[0].Type, ShouldEqual, types.Reviewed)
				So(feed[0].AuthorKey, ShouldEqual, alice)
			})
		})

		Convey("When the viewer is unknown, missing or the follow list fails", func() {
			for _, viewer := range []string{"nobody", "", "broken"} {
				feed, err := svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeFollowers, Viewer: viewer})
				So(err, ShouldBeNil)
				So(feed, ShouldNotBeNil)
				So(feed, ShouldBeEmpty)
			}
			So(q.calls.Load(), ShouldEqual, 0)
		})
	})
}

func TestService_ReadingStatusPolicy(t *testing.T) {
	Convey("Given a service limited to reading status", t, func() {
		ctx := context.Background()
		q := newFakeQuerier()
		q.global = []model.RawEvent{
			event("e1", alice, model.KindBookTBR, 100, model.NewTag("i", "isbn:"+isbnA)),
			event("e2", bob, model.KindTextNote, 200, model.NewTag("t", "bookstr")),
		}
		svc := newService(q, service.WithClassifyPolicy(classify.PolicyReadingStatus))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		feed, err := svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeGlobal, Limit: 10})
		So(err, ShouldBeNil)

		Convey("Then the relay budget is spent only on kinds the policy keeps", func() {
			kinds := q.lastFilter().Kinds
			So(kinds, ShouldResemble, classify.PolicyReadingStatus.Kinds())
			So(kinds, ShouldNotContain, model.KindTextNote)
			So(kinds, ShouldNotContain, model.KindBookRating)
		})

		Convey("Then only reading status activities are served", func() {
			So(feed, ShouldHaveLength, 1)
			So(feed[0].ID, ShouldEqual, "e1")
		})
	})
}

func TestService_RelayTimeout(t *testing.T) {
	Convey("Given relays that never answer in time", t, func() {
		ctx := context.Background()
		q := newFakeQuerier()
		q.gate = make(chan struct{})
		svc := newService(q,
			service.WithFetchTimeout(20*time.Millisecond),
			service.WithStragglerTimeout(40*time.Millisecond),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		feed, err := svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeGlobal})

		Convey("Then the feed is empty and no error surfaces", func() {
			So(err, ShouldBeNil)
			So(feed, ShouldBeEmpty)
		})

		Convey("Then nothing is cached", func() {
			time.Sleep(60 * time.Millisecond)
			So(svc.GetStats()["cacheEntries"], ShouldEqual, 0)
		})
	})
}

func TestService_FeedDeadline(t *testing.T) {
	Convey("Given a catalog that stalls past the feed deadline", t, func() {
		ctx := context.Background()
		q := newFakeQuerier()
		q.global = []model.RawEvent{
			event("e1", alice, model.KindBookTBR, 100, model.NewTag("i", "isbn:"+isbnA)),
		}
		svc := newService(q,
			service.WithSubjectResolver(stalledSubjects{}),
			service.WithFeedTimeout(100*time.Millisecond),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		start := time.Now()
		feed, err := svc.GetFeed(ctx, types.FeedRequest{Scope: types.ScopeGlobal, Limit: 10})
		took := time.Since(start)

		Convey("Then the pass ends at the deadline with placeholder books", func() {
			So(err, ShouldBeNil)
			So(took, ShouldBeLessThan, time.Second)
			So(feed, ShouldHaveLength, 1)
			So(feed[0].ID, ShouldEqual, "e1")
			So(feed[0].Subject.Placeholder, ShouldBeTrue)
			So(feed[0].Author.Name, ShouldEqual, "alice")
		})
	})
}

func TestService_RequestRefresh(t *testing.T) {
	Convey("Given a service whose relays are held back", t, func() {
		ctx := context.Background()
		q := newFakeQuerier()
		q.global = []model.RawEvent{
			event("e1", alice, model.KindBookTBR, 100, model.NewTag("i", "isbn:"+isbnA)),
		}
		q.gate = make(chan struct{})
		svc := newService(q, service.WithQueueSize(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		req := types.FeedRequest{Scope: types.ScopeGlobal, Limit: 5}
		status, err := svc.RequestRefresh(ctx, req)
		So(err, ShouldBeNil)
		So(status, ShouldEqual, types.RefreshAccepted)

		// The single worker is now inside the refresh.
		<-q.entered

		Convey("When the same feed is requested again", func() {
			status, err := svc.RequestRefresh(ctx, req)

			Convey("Then it is collapsed into the pending refresh", func() {
				So(err, ShouldBeNil)
				So(status, ShouldEqual, types.RefreshPending)
				So(svc.GetStats()["pendingRefreshes"], ShouldEqual, 1)
			})
		})

		Convey("When distinct refreshes pile up behind the busy worker", func() {
			var (
				err      error
				accepted int64
			)
			for limit := 6; limit <= 12 && err == nil; limit++ {
				if _, err = svc.RequestRefresh(ctx, types.FeedRequest{Scope: types.ScopeGlobal, Limit: limit}); err == nil {
					accepted++
				}
			}

			Convey("Then the bounded queue pushes back", func() {
				So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)
				So(accepted, ShouldBeLessThanOrEqualTo, 2)
				So(svc.GetStats()["pendingRefreshes"], ShouldEqual, accepted+1)
			})
		})

		Convey("When the relays answer", func() {
			close(q.gate)
			deadline := time.Now().Add(2 * time.Second)
			for svc.GetStats()["pendingRefreshes"] != int64(0) && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}

			Convey("Then the refreshed feed is served from the cache", func() {
				So(svc.GetStats()["pendingRefreshes"], ShouldEqual, 0)
				calls := q.calls.Load()
				feed, err := svc.GetFeed(ctx, req)
				So(err, ShouldBeNil)
				So(feed, ShouldHaveLength, 1)
				So(q.calls.Load(), ShouldEqual, calls)
			})
		})

		Convey("When the request is invalid", func() {
			_, err := svc.RequestRefresh(ctx, types.FeedRequest{Scope: "nope"})
			So(errors.Is(err, types.ErrInvalidScope), ShouldBeTrue)
		})
	})
}
