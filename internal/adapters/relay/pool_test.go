package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/readfeed/internal/domain/model"
	"github.com/okian/readfeed/pkg/logger"
)

// fakeRelay is a minimal relay: it answers REQ with every stored event
// whose kind was requested, followed by EOSE.
type fakeRelay struct {
	events []map[string]any
	mode   string // "", "closed", "silent", "trickle", "hangup"
	conns  atomic.Int32
	reqs   atomic.Int32
	closes atomic.Int32
}

func (r *fakeRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	c, err := websocket.Accept(w, req, nil)
	if err != nil {
		return
	}
	defer func() { _ = c.CloseNow() }()
	r.conns.Add(1)

	ctx := req.Context()
	send := func(v any) {
		b, _ := json.Marshal(v)
		_ = c.Write(ctx, websocket.MessageText, b)
	}

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var msg []json.RawMessage
		if json.Unmarshal(data, &msg) != nil || len(msg) < 2 {
			continue
		}
		var label, sub string
		_ = json.Unmarshal(msg[0], &label)
		_ = json.Unmarshal(msg[1], &sub)

		switch label {
		case "CLOSE":
			r.closes.Add(1)
		case "REQ":
			r.reqs.Add(1)
			var f struct {
				Kinds []int `json:"kinds"`
			}
			if len(msg) > 2 {
				_ = json.Unmarshal(msg[2], &f)
			}

			switch r.mode {
			case "closed":
				send([]string{"CLOSED", sub, "blocked: not allowed"})
			case "silent":
			case "trickle":
				for _, ev := range r.events {
					send([]any{"EVENT", sub, ev})
				}
			case "hangup":
				_ = c.Close(websocket.StatusGoingAway, "bye")
				return
			default:
				_ = c.Write(ctx, websocket.MessageText, []byte("not json"))
				send([]any{"EVENT", sub, map[string]any{"id": ""}})
				send([]any{"NOTICE", "welcome"})
				send([]any{"EVENT", "someone-else", r.events[0]})
				for _, ev := range r.events {
					for _, k := range f.Kinds {
						if ev["kind"].(int) == k {
							send([]any{"EVENT", sub, ev})
						}
					}
				}
				send([]string{"EOSE", sub})
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func bookEvent(id string, kind int) map[string]any {
	return map[string]any{
		"id":         id,
		"pubkey":     "pk-" + id,
		"kind":       kind,
		"created_at": 1700000000,
		"content":    "content " + id,
		"tags":       [][]string{{"i", "isbn:9780441172719"}, {"t", "bookstr"}},
		"sig":        "sig",
	}
}

func newTestPool() *Pool {
	return NewPool(WithDialRetries(0), WithDialTimeout(2*time.Second), WithLogger(logger.Nop()))
}

func TestPoolQuery(t *testing.T) {
	filter := model.Filter{Kinds: []int{model.KindBookRead}, Limit: 10}

	Convey("Given a relay holding book events", t, func() {
		relay := &fakeRelay{events: []map[string]any{
			bookEvent("a", model.KindBookRead),
			bookEvent("b", model.KindBookRead),
			bookEvent("c", model.KindTextNote),
		}}
		srv := httptest.NewServer(relay)
		pool := newTestPool()
		Reset(func() {
			_ = pool.Close()
			srv.Close()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		Convey("When querying one kind", func() {
			events, err := pool.Query(ctx, wsURL(srv), filter)

			Convey("Then only well-formed matching events of the subscription arrive", func() {
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 2)
				So(events[0].ID, ShouldEqual, "a")
				So(events[0].AuthorKey, ShouldEqual, "pk-a")
				So(events[0].CreatedAt, ShouldEqual, int64(1700000000))
				So(events[0].Tags, ShouldHaveLength, 2)
				So(events[0].Tags[0].Value(0), ShouldEqual, "isbn:9780441172719")
			})

			Convey("Then the subscription is closed after EOSE", func() {
				So(waitFor(func() bool { return relay.closes.Load() == 1 }), ShouldBeTrue)
			})
		})

		Convey("When querying twice", func() {
			_, err1 := pool.Query(ctx, wsURL(srv), filter)
			_, err2 := pool.Query(ctx, wsURL(srv), filter)

			Convey("Then a single connection is reused", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(relay.conns.Load(), ShouldEqual, 1)
				So(relay.reqs.Load(), ShouldEqual, 2)
				So(pool.Len(), ShouldEqual, 1)
			})
		})

		Convey("When the pool is closed", func() {
			_, err := pool.Query(ctx, wsURL(srv), filter)
			So(err, ShouldBeNil)
			So(pool.Close(), ShouldBeNil)

			Convey("Then connections are gone and queries fail", func() {
				So(pool.Len(), ShouldEqual, 0)
				_, err := pool.Query(ctx, wsURL(srv), filter)
				So(errors.Is(err, ErrPoolClosed), ShouldBeTrue)
			})
		})
	})

	Convey("Given a relay that refuses the subscription", t, func() {
		srv := httptest.NewServer(&fakeRelay{mode: "closed"})
		pool := newTestPool()
		Reset(func() {
			_ = pool.Close()
			srv.Close()
		})

		_, err := pool.Query(context.Background(), wsURL(srv), filter)
		So(errors.Is(err, ErrSubscriptionClosed), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "blocked")
	})

	Convey("Given a relay that never finishes", t, func() {
		relay := &fakeRelay{mode: "silent"}
		srv := httptest.NewServer(relay)
		pool := newTestPool()
		Reset(func() {
			_ = pool.Close()
			srv.Close()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := pool.Query(ctx, wsURL(srv), filter)

		So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		So(waitFor(func() bool { return relay.closes.Load() == 1 }), ShouldBeTrue)
	})

	Convey("Given a relay that sends events but never signals their end", t, func() {
		relay := &fakeRelay{mode: "trickle", events: []map[string]any{
			bookEvent("a", model.KindBookRead),
			bookEvent("b", model.KindBookRead),
		}}
		srv := httptest.NewServer(relay)
		pool := NewPool(WithDialRetries(0), WithEOSETimeout(100*time.Millisecond), WithLogger(logger.Nop()))
		Reset(func() {
			_ = pool.Close()
			srv.Close()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		events, err := pool.Query(ctx, wsURL(srv), filter)

		Convey("Then the query is cut off with what arrived", func() {
			So(err, ShouldBeNil)
			So(events, ShouldHaveLength, 2)
			So(time.Since(start), ShouldBeLessThan, 2*time.Second)
			So(waitFor(func() bool { return relay.closes.Load() == 1 }), ShouldBeTrue)
		})
	})

	Convey("Given a relay that hangs up", t, func() {
		srv := httptest.NewServer(&fakeRelay{mode: "hangup"})
		pool := newTestPool()
		Reset(func() {
			_ = pool.Close()
			srv.Close()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := pool.Query(ctx, wsURL(srv), filter)

		So(err, ShouldNotBeNil)
		So(waitFor(func() bool { return pool.Len() == 0 }), ShouldBeTrue)
	})

	Convey("Given an unreachable relay", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := wsURL(srv)
		srv.Close()
		pool := newTestPool()
		Reset(func() { _ = pool.Close() })

		_, err := pool.Query(context.Background(), url, filter)
		So(errors.Is(err, ErrRelayUnavailable), ShouldBeTrue)
		So(pool.Len(), ShouldEqual, 0)
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
