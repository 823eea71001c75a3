package model_test

import (
	"encoding/json"
	"testing"

	model "github.com/okian/readfeed/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestTagExtraction(t *testing.T) {
	convey.Convey("Given tags of a list update naming several books", t, func() {
		tags := []model.Tag{
			model.NewTag("d", "tbr"),
			model.NewTag("i", "isbn:978-0-441-17271-9"),
			model.NewTag("k", "isbn"),
			model.NewTag("i", "isbn:9780553293357"),
			model.NewTag("i", "isbn:9780441172719"), // duplicate after normalization
			model.NewTag("i", "url:https://example.com"),
			model.NewTag("isbn", "080442957x"),
		}

		convey.Convey("When extracting all subject identifiers", func() {
			ids := model.SubjectIDs(tags)

			convey.Convey("Then they are distinct, normalized and ordered", func() {
				convey.So(ids, convey.ShouldResemble, []string{"9780441172719", "9780553293357", "080442957X"})
			})
		})

		convey.Convey("When extracting the first identifier", func() {
			id, ok := model.FirstSubjectID(tags)

			convey.Convey("Then it is the first isbn reference", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(id, convey.ShouldEqual, "9780441172719")
			})
		})

		convey.Convey("When the tag list has no identifiers", func() {
			ids := model.SubjectIDs([]model.Tag{model.NewTag("t", "bookstr"), {}})
			_, ok := model.FirstSubjectID(nil)

			convey.Convey("Then nothing is returned", func() {
				convey.So(ids, convey.ShouldBeEmpty)
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When an identifier contains garbage", func() {
			ids := model.SubjectIDs([]model.Tag{model.NewTag("i", "isbn:97804?41")})

			convey.Convey("Then it is rejected", func() {
				convey.So(ids, convey.ShouldBeEmpty)
			})
		})
	})

	convey.Convey("Given rating tags", t, func() {
		convey.Convey("Then star values are kept", func() {
			v, ok := model.Rating([]model.Tag{model.NewTag("rating", "4")})
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(v, convey.ShouldEqual, 4.0)
		})

		convey.Convey("And the short key is accepted", func() {
			v, ok := model.Rating([]model.Tag{model.NewTag("r", "5")})
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(v, convey.ShouldEqual, 5.0)
		})

		convey.Convey("And fractions are scaled to stars", func() {
			v, ok := model.Rating([]model.Tag{model.NewTag("rating", "0.8")})
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(v, convey.ShouldAlmostEqual, 4.0, 0.0001)
		})

		convey.Convey("And one star reads the same in any textual form", func() {
			for _, raw := range []string{"1", "1.0", " 1.00 "} {
				v, ok := model.Rating([]model.Tag{model.NewTag("rating", raw)})
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(v, convey.ShouldEqual, 1.0)
			}
		})

		convey.Convey("And out of range or malformed values are ignored", func() {
			_, ok := model.Rating([]model.Tag{model.NewTag("rating", "7"), model.NewTag("r", "abc"), model.NewTag("rating", "-1")})
			convey.So(ok, convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given side-channel tags", t, func() {
		tags := []model.Tag{
			model.NewTag("media", "image", "https://img.example/cover.png"),
			model.NewTag("spoiler", "true"),
			model.NewTag("p", "alice"),
			model.NewTag("p", "bob"),
			model.NewTag("p", "alice"),
		}

		convey.Convey("Then media and spoiler markers are extracted", func() {
			media, ok := model.MediaOf(tags)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(media, convey.ShouldResemble, model.Media{Type: "image", URL: "https://img.example/cover.png"})
			convey.So(model.IsSpoiler(tags), convey.ShouldBeTrue)
			convey.So(model.IsSpoiler(nil), convey.ShouldBeFalse)
		})

		convey.Convey("And referenced keys are distinct", func() {
			convey.So(model.ReferencedKeys(tags, "p"), convey.ShouldResemble, []string{"alice", "bob"})
		})

		convey.Convey("And a media tag without url is ignored", func() {
			_, ok := model.MediaOf([]model.Tag{model.NewTag("media", "image")})
			convey.So(ok, convey.ShouldBeFalse)
		})
	})
}

func TestTag(t *testing.T) {
	convey.Convey("Given a tag built from its wire form", t, func() {
		tag := model.NewTag("i", "isbn:1", "hint")

		convey.Convey("Then positional access is bounds safe", func() {
			convey.So(tag.Key, convey.ShouldEqual, "i")
			convey.So(tag.Value(0), convey.ShouldEqual, "isbn:1")
			convey.So(tag.Value(1), convey.ShouldEqual, "hint")
			convey.So(tag.Value(2), convey.ShouldEqual, "")
			convey.So(tag.Value(-1), convey.ShouldEqual, "")
			convey.So(tag.Strings(), convey.ShouldResemble, []string{"i", "isbn:1", "hint"})
		})

		convey.Convey("And an empty wire form yields the zero tag", func() {
			convey.So(model.NewTag(), convey.ShouldResemble, model.Tag{})
		})
	})
}

func TestRawEvent(t *testing.T) {
	convey.Convey("Given a raw event", t, func() {
		e := model.RawEvent{ID: "e1", CreatedAt: 1_700_000_000}

		convey.Convey("Then its timestamp converts to milliseconds", func() {
			convey.So(e.CreatedAtMillis(), convey.ShouldEqual, int64(1_700_000_000_000))
		})
	})
}

func TestFilterFingerprint(t *testing.T) {
	convey.Convey("Given two semantically equal filters built in different order", t, func() {
		a := model.Filter{
			Kinds:   []int{1, 1111, 10073},
			Authors: []string{"bob", "alice"},
			Tags:    map[string][]string{"t": {"bookstr", "books"}, "k": {"isbn"}},
			Limit:   40,
		}
		b := model.Filter{
			Kinds:   []int{10073, 1, 1111, 1},
			Authors: []string{"alice", "bob"},
			Tags:    map[string][]string{"k": {"isbn"}, "t": {"books", "bookstr"}},
			Limit:   40,
		}

		convey.Convey("Then they fingerprint identically", func() {
			convey.So(a.Fingerprint(), convey.ShouldEqual, b.Fingerprint())
			convey.So(string(a.Fingerprint()), convey.ShouldEqual, `{"kinds":[1,1111,10073],"authors":["alice","bob"],"tags":[["k","isbn"],["t","books","bookstr"]],"limit":40}`)
		})

		convey.Convey("When the limit differs", func() {
			b.Limit = 20

			convey.Convey("Then the fingerprints differ", func() {
				convey.So(a.Fingerprint(), convey.ShouldNotEqual, b.Fingerprint())
			})
		})

		convey.Convey("When a tag constraint differs", func() {
			b.Tags = map[string][]string{"t": {"bookstr"}}

			convey.Convey("Then the fingerprints differ", func() {
				convey.So(a.Fingerprint(), convey.ShouldNotEqual, b.Fingerprint())
			})
		})

		convey.Convey("When an empty tag constraint is present", func() {
			c := a
			c.Tags = map[string][]string{"t": {"bookstr", "books"}, "k": {"isbn"}, "p": {}}

			convey.Convey("Then it does not change the fingerprint", func() {
				convey.So(c.Fingerprint(), convey.ShouldEqual, a.Fingerprint())
			})
		})
	})

	convey.Convey("Given filters whose values contain separator characters", t, func() {
		joined := model.Filter{Kinds: []int{1}, Authors: []string{"x,y"}, Limit: 10}
		split := model.Filter{Kinds: []int{1}, Authors: []string{"x", "y"}, Limit: 10}
		smuggled := model.Filter{Kinds: []int{1}, Tags: map[string][]string{"t": {"a|#u=b"}}, Limit: 10}
		twoTags := model.Filter{Kinds: []int{1}, Tags: map[string][]string{"t": {"a"}, "u": {"b"}}, Limit: 10}
		keyed := model.Filter{Kinds: []int{1}, Tags: map[string][]string{"t": {"a", "b"}}, Limit: 10}
		valued := model.Filter{Kinds: []int{1}, Tags: map[string][]string{"t": {"a"}, "b": {}}, Limit: 10}

		convey.Convey("Then distinct filters never share a fingerprint", func() {
			convey.So(joined.Fingerprint(), convey.ShouldNotEqual, split.Fingerprint())
			convey.So(smuggled.Fingerprint(), convey.ShouldNotEqual, twoTags.Fingerprint())
			convey.So(keyed.Fingerprint(), convey.ShouldNotEqual, valued.Fingerprint())
		})
	})

	convey.Convey("Given a filter encoded for the wire", t, func() {
		f := model.Filter{Kinds: []int{1}, Tags: map[string][]string{"t": {"bookstr"}}, Limit: 10}

		raw, err := json.Marshal(f)

		convey.Convey("Then tag constraints use the #key form", func() {
			convey.So(err, convey.ShouldBeNil)
			var decoded map[string]any
			convey.So(json.Unmarshal(raw, &decoded), convey.ShouldBeNil)
			convey.So(decoded["#t"], convey.ShouldResemble, []any{"bookstr"})
			convey.So(decoded["limit"], convey.ShouldEqual, 10.0)
			_, hasAuthors := decoded["authors"]
			convey.So(hasAuthors, convey.ShouldBeFalse)
		})
	})
}
