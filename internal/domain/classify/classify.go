// Package classify turns raw relay events into candidate activities.
//
// Each recognized event yields one candidate per referenced subject, so a
// list update naming three books becomes three candidates. Events of
// unknown kinds, events without subjects and malformed events are dropped.
package classify

import (
	"context"
	"fmt"

	"github.com/okian/readfeed/internal/domain/model"
	"github.com/okian/readfeed/internal/domain/types"
	"github.com/okian/readfeed/pkg/logger"
	"github.com/okian/readfeed/pkg/metrics"
)

// Policy selects which activity types are kept.
type Policy string

// Supported policies.
const (
	PolicyAll           Policy = "all"
	PolicyReadingStatus Policy = "reading_status"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyAll, PolicyReadingStatus:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

func (p Policy) allows(t types.ActivityType) bool {
	if p == PolicyReadingStatus {
		return t.IsReadingStatus()
	}
	return t != types.Ignored
}

// Drop reasons reported to metrics.
const (
	ReasonUnknownKind  = "unknown_kind"
	ReasonNoSubject    = "no_subject"
	ReasonUnlinkedPost = "unlinked_post"
	ReasonPolicy       = "policy"
	ReasonMalformed    = "malformed"
)

// Candidate is an event paired with one of its subjects. SubjectID is empty
// for unlinked posts.
type Candidate struct {
	Event     model.RawEvent
	SubjectID string
	Type      types.ActivityType
	Expanded  bool // the event produced more than one candidate
	Rating    *float64
	Media     *model.Media
	Spoiler   bool
}

// ActivityID is the event id, joined with the subject id when the event was
// expanded into several candidates.
func (c Candidate) ActivityID() string {
	if c.Expanded {
		return c.Event.ID + ":" + c.SubjectID
	}
	return c.Event.ID
}

// Classifier maps events to candidates under one policy.
type Classifier struct {
	policy       Policy
	keepUnlinked bool
	feedTag      string
	log          logger.Logger
}

// New constructs a Classifier. Defaults: PolicyAll, unlinked posts kept,
// feed tag "bookstr".
func New(opts ...Option) *Classifier {
	c := &Classifier{
		policy:       PolicyAll,
		keepUnlinked: true,
		feedTag:      "bookstr",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("classify")
	}
	return c
}

// Classify returns the candidates of events in input order.
func (c *Classifier) Classify(ctx context.Context, events []model.RawEvent) []Candidate {
	out := make([]Candidate, 0, len(events))
	drops := make(map[string]int)

	for _, e := range events {
		cands, reason := c.classifyOne(e)
		if reason != "" {
			drops[reason]++
			metrics.RecordClassifierDrop(reason)
			continue
		}
		out = append(out, cands...)
	}

	metrics.RecordClassifierCandidates(len(out))
	if len(drops) > 0 {
		c.log.Debug(ctx, "classified events",
			logger.Int("events", len(events)),
			logger.Int("candidates", len(out)),
			logger.Any("dropped", drops))
	}
	return out
}

func (c *Classifier) classifyOne(e model.RawEvent) ([]Candidate, string) {
	if e.ID == "" {
		return nil, ReasonMalformed
	}

	t := TypeOf(e)
	if t == types.Ignored {
		return nil, ReasonUnknownKind
	}
	if !c.policy.allows(t) {
		return nil, ReasonPolicy
	}

	base := Candidate{Event: e, Type: t, Spoiler: model.IsSpoiler(e.Tags)}
	if m, ok := model.MediaOf(e.Tags); ok {
		base.Media = &m
	}
	if r, ok := model.Rating(e.Tags); ok {
		base.Rating = &r
	} else if t == types.Rated {
		return nil, ReasonMalformed
	}

	subjects := model.SubjectIDs(e.Tags)
	if t == types.Posted && !c.isFeedPost(e, subjects) {
		return nil, ReasonUnlinkedPost
	}

	switch {
	case len(subjects) == 0 && t == types.Posted:
		if !c.keepUnlinked {
			return nil, ReasonUnlinkedPost
		}
		return []Candidate{base}, ""
	case len(subjects) == 0:
		return nil, ReasonNoSubject
	}

	out := make([]Candidate, len(subjects))
	for i, id := range subjects {
		cand := base
		cand.SubjectID = id
		cand.Expanded = len(subjects) > 1
		out[i] = cand
	}
	return out, ""
}

// isFeedPost reports whether a text note belongs to the reading feed: it
// carries the feed topic, references a subject, or is scoped to isbn kinds.
func (c *Classifier) isFeedPost(e model.RawEvent, subjects []string) bool {
	return len(subjects) > 0 ||
		model.HasTag(e.Tags, model.TagTopic, c.feedTag) ||
		model.HasTag(e.Tags, model.TagKind, model.TagISBN)
}
