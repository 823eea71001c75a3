package model

import (
	"strconv"
	"strings"
)

// Tag keys and markers used by book events.
const (
	TagIdentifier = "i"
	TagISBN       = "isbn"
	TagKind       = "k"
	TagTopic      = "t"
	TagPubkey     = "p"
	TagDTag       = "d"
	TagRating     = "rating"
	TagRatingAlt  = "r"
	TagMedia      = "media"
	TagSpoiler    = "spoiler"

	isbnPrefix = "isbn:"
	maxStars   = 5.0
)

// Tag is one entry of an event's tag list: a key followed by positional values.
type Tag struct {
	Key    string
	Values []string
}

// NewTag builds a Tag from its wire form, e.g. NewTag("i", "isbn:123").
func NewTag(parts ...string) Tag {
	if len(parts) == 0 {
		return Tag{}
	}
	values := make([]string, len(parts)-1)
	copy(values, parts[1:])
	return Tag{Key: parts[0], Values: values}
}

// Value returns the i-th positional value or "" when absent.
func (t Tag) Value(i int) string {
	if i < 0 || i >= len(t.Values) {
		return ""
	}
	return t.Values[i]
}

// Strings returns the wire form of the tag.
func (t Tag) Strings() []string {
	out := make([]string, 0, len(t.Values)+1)
	out = append(out, t.Key)
	return append(out, t.Values...)
}

// Media is an attachment reference carried by a media tag.
type Media struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// SubjectIDs returns every distinct subject identifier referenced by tags, in
// tag order.
func SubjectIDs(tags []Tag) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, t := range tags {
		id, ok := subjectID(t)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// FirstSubjectID returns the first subject identifier referenced by tags.
func FirstSubjectID(tags []Tag) (string, bool) {
	for _, t := range tags {
		if id, ok := subjectID(t); ok {
			return id, true
		}
	}
	return "", false
}

func subjectID(t Tag) (string, bool) {
	var raw string
	switch t.Key {
	case TagIdentifier:
		v := t.Value(0)
		if !strings.HasPrefix(strings.ToLower(v), isbnPrefix) {
			return "", false
		}
		raw = v[len(isbnPrefix):]
	case TagISBN:
		raw = t.Value(0)
	default:
		return "", false
	}
	id := NormalizeSubjectID(raw)
	return id, id != ""
}

// NormalizeSubjectID strips separators from an ISBN-like identifier.
func NormalizeSubjectID(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		case r == '-' || r == ' ':
		default:
			return ""
		}
	}
	return b.String()
}

// Rating extracts a star rating in (0, 5]. Values below one star are read as
// a fraction of five stars; the textual form does not matter.
func Rating(tags []Tag) (float64, bool) {
	for _, t := range tags {
		if t.Key != TagRating && t.Key != TagRatingAlt {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(t.Value(0)), 64)
		if err != nil || v <= 0 || v > maxStars {
			continue
		}
		if v < 1 {
			v *= maxStars
		}
		return v, true
	}
	return 0, false
}

// MediaOf returns the first media attachment, ["media", type, url].
func MediaOf(tags []Tag) (Media, bool) {
	for _, t := range tags {
		if t.Key == TagMedia && t.Value(1) != "" {
			return Media{Type: t.Value(0), URL: t.Value(1)}, true
		}
	}
	return Media{}, false
}

// IsSpoiler reports whether the event is marked ["spoiler", "true"].
func IsSpoiler(tags []Tag) bool {
	return HasTag(tags, TagSpoiler, "true")
}

// HasTag reports whether a tag with key and first value exists.
func HasTag(tags []Tag, key, value string) bool {
	for _, t := range tags {
		if t.Key == key && t.Value(0) == value {
			return true
		}
	}
	return false
}

// TagValue returns the first value of the first tag with key.
func TagValue(tags []Tag, key string) (string, bool) {
	for _, t := range tags {
		if t.Key == key {
			return t.Value(0), true
		}
	}
	return "", false
}

// ReferencedKeys returns the distinct first values of tags with key, e.g. the
// followed keys of a contacts event.
func ReferencedKeys(tags []Tag, key string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, t := range tags {
		if t.Key != key || t.Value(0) == "" {
			continue
		}
		if _, dup := seen[t.Value(0)]; dup {
			continue
		}
		seen[t.Value(0)] = struct{}{}
		out = append(out, t.Value(0))
	}
	return out
}
