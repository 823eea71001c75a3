// Package enrich resolves the authors and subjects referenced by candidate
// activities. Each pass makes at most one batch call per resolver and falls
// back to placeholders for anything left unresolved.
package enrich

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/readfeed/internal/domain/classify"
	"github.com/okian/readfeed/internal/domain/types"
	"github.com/okian/readfeed/pkg/logger"
	"github.com/okian/readfeed/pkg/metrics"
)

// ProfileResolver returns the profiles it knows for keys. Partial results
// are allowed.
type ProfileResolver interface {
	ResolveProfiles(ctx context.Context, keys []string) ([]types.ProfileSummary, error)
}

// SubjectResolver returns the catalog metadata it knows for ids. Partial
// results are allowed.
type SubjectResolver interface {
	ResolveSubjects(ctx context.Context, ids []string) ([]types.SubjectMetadata, error)
}

// Enriched is a candidate with its author and subject rendered.
type Enriched struct {
	Candidate classify.Candidate
	Author    types.Author
	Subject   types.Subject
}

// Joiner enriches candidates through batch resolvers.
type Joiner struct {
	profiles ProfileResolver
	subjects SubjectResolver
	log      logger.Logger
}

// New constructs a Joiner.
func New(profiles ProfileResolver, subjects SubjectResolver, opts ...Option) *Joiner {
	j := &Joiner{profiles: profiles, subjects: subjects}
	for _, opt := range opts {
		opt(j)
	}
	if j.log == nil {
		j.log = logger.Get().Named("enrich")
	}
	return j
}

// Enrich renders every candidate. It never fails; resolver errors turn into
// placeholders.
func (j *Joiner) Enrich(ctx context.Context, cands []classify.Candidate) []Enriched {
	keys, ids := references(cands)

	var (
		profiles map[string]types.ProfileSummary
		subjects map[string]types.SubjectMetadata
		g        errgroup.Group
	)
	g.Go(func() error {
		profiles = j.resolveProfiles(ctx, keys)
		return nil
	})
	g.Go(func() error {
		subjects = j.resolveSubjects(ctx, ids)
		return nil
	})
	_ = g.Wait()

	out := make([]Enriched, len(cands))
	var missingAuthors, missingSubjects int
	for i, c := range cands {
		out[i] = Enriched{Candidate: c}

		if p, ok := profiles[c.Event.AuthorKey]; ok {
			out[i].Author = authorFrom(p)
		} else {
			out[i].Author = PlaceholderAuthor(c.Event.AuthorKey)
			missingAuthors++
		}

		switch m, ok := subjects[c.SubjectID]; {
		case c.SubjectID == "":
			out[i].Subject = GenericSubject()
		case ok:
			out[i].Subject = subjectFrom(c.SubjectID, m)
		default:
			out[i].Subject = PlaceholderSubject(c.SubjectID)
			missingSubjects++
		}
	}

	if missingAuthors+missingSubjects > 0 {
		metrics.RecordPlaceholders("author", missingAuthors)
		metrics.RecordPlaceholders("subject", missingSubjects)
		j.log.Debug(ctx, "placeholders substituted",
			logger.Int("authors", missingAuthors),
			logger.Int("subjects", missingSubjects))
	}
	return out
}

// references collects the distinct author keys and subject ids of cands in
// first-seen order.
func references(cands []classify.Candidate) (keys, ids []string) {
	seenKeys := make(map[string]struct{})
	seenIDs := make(map[string]struct{})
	for _, c := range cands {
		if k := c.Event.AuthorKey; k != "" {
			if _, dup := seenKeys[k]; !dup {
				seenKeys[k] = struct{}{}
				keys = append(keys, k)
			}
		}
		if id := c.SubjectID; id != "" {
			if _, dup := seenIDs[id]; !dup {
				seenIDs[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return keys, ids
}

func (j *Joiner) resolveProfiles(ctx context.Context, keys []string) map[string]types.ProfileSummary {
	out := make(map[string]types.ProfileSummary, len(keys))
	if len(keys) == 0 || j.profiles == nil {
		return out
	}
	res, err := guard(ctx, j, "profiles", func() ([]types.ProfileSummary, error) {
		return j.profiles.ResolveProfiles(ctx, keys)
	})
	if err != nil {
		return out
	}
	for _, p := range res {
		if p.Key != "" {
			out[p.Key] = p
		}
	}
	return out
}

func (j *Joiner) resolveSubjects(ctx context.Context, ids []string) map[string]types.SubjectMetadata {
	out := make(map[string]types.SubjectMetadata, len(ids))
	if len(ids) == 0 || j.subjects == nil {
		return out
	}
	res, err := guard(ctx, j, "subjects", func() ([]types.SubjectMetadata, error) {
		return j.subjects.ResolveSubjects(ctx, ids)
	})
	if err != nil {
		return out
	}
	for _, m := range res {
		if m.ID != "" {
			out[m.ID] = m
		}
	}
	return out
}

// guard runs one batch call, turning panics into errors and recording the
// call. Failures are logged and reported as an empty batch.
func guard[T any](ctx context.Context, j *Joiner, resolver string, call func() ([]T, error)) (res []T, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%s resolver panicked: %v", resolver, r)
		}
		metrics.RecordResolverCall(resolver, float64(time.Since(start).Milliseconds()), err)
		if err != nil {
			j.log.Warn(ctx, "resolver failed, using placeholders",
				logger.String("resolver", resolver),
				logger.Error(err))
		}
	}()
	return call()
}

func authorFrom(p types.ProfileSummary) types.Author {
	name := p.DisplayedName()
	if name == "" {
		name = ShortKey(p.Key)
	}
	return types.Author{Key: p.Key, Name: name, Picture: p.Picture}
}

func subjectFrom(id string, m types.SubjectMetadata) types.Subject {
	s := types.Subject{
		ID:       SubjectKey(id),
		ISBN:     id,
		Title:    m.Title,
		Author:   m.Author,
		CoverURL: m.CoverURL,
	}
	if s.Title == "" {
		s.Title = UnknownTitle
	}
	if s.Author == "" {
		s.Author = UnknownAuthor
	}
	if s.CoverURL == "" {
		s.CoverURL = CoverURL(id)
	}
	return s
}
