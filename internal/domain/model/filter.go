package model

import (
	"encoding/json"
	"sort"
)

// Fingerprint is the canonical, order independent key of a Filter.
type Fingerprint string

// Filter selects events on relays.
type Filter struct {
	Kinds   []int
	Authors []string
	// Tags maps a single-letter tag key (without '#') to accepted values.
	Tags  map[string][]string
	Limit int
}

// canonicalFilter is the fingerprint encoding of a Filter. Tag constraints
// are [key, values...] arrays sorted by key.
type canonicalFilter struct {
	Kinds   []int      `json:"kinds"`
	Authors []string   `json:"authors,omitempty"`
	Tags    [][]string `json:"tags,omitempty"`
	Limit   int        `json:"limit"`
}

// Fingerprint returns the canonical form of the filter. Filters that differ
// only in element order or duplicates fingerprint identically. Values are
// JSON encoded, so separators inside a value cannot alias another filter.
func (f Filter) Fingerprint() Fingerprint {
	kinds := make([]int, 0, len(f.Kinds))
	seen := make(map[int]struct{}, len(f.Kinds))
	for _, k := range f.Kinds {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kinds = append(kinds, k)
	}
	sort.Ints(kinds)

	c := canonicalFilter{Kinds: kinds, Limit: f.Limit}
	if authors := canonicalStrings(f.Authors); len(authors) > 0 {
		c.Authors = authors
	}

	keys := make([]string, 0, len(f.Tags))
	for k, v := range f.Tags {
		if len(v) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Tags = append(c.Tags, append([]string{k}, canonicalStrings(f.Tags[k])...))
	}

	// Marshaling ints and strings cannot fail.
	b, _ := json.Marshal(c)
	return Fingerprint(b)
}

func canonicalStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the filter in relay wire form:
// {"kinds":[...],"authors":[...],"#t":[...],"limit":n}.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(f.Tags)+3)
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	for k, v := range f.Tags {
		if len(v) > 0 {
			m["#"+k] = v
		}
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}
