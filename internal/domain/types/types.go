// Package types contains the activity feed types shared across the application.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/readfeed/internal/domain/model"
)

// ActivityType is the closed set of activity kinds a feed can contain.
type ActivityType int

// Activity types. Ignored marks events that produce no activity.
const (
	Ignored ActivityType = iota
	AddedToList
	Started
	Finished
	Rated
	Reviewed
	Posted
)

var activityTypeNames = [...]string{
	Ignored:     "ignored",
	AddedToList: "added-to-list",
	Started:     "started",
	Finished:    "finished",
	Rated:       "rated",
	Reviewed:    "reviewed",
	Posted:      "posted",
}

// ErrUnknownActivityType is returned when parsing an unknown type name.
var ErrUnknownActivityType = errors.New("unknown activity type")

func (t ActivityType) String() string {
	if t < Ignored || int(t) >= len(activityTypeNames) {
		return "ActivityType(" + strconv.Itoa(int(t)) + ")"
	}
	return activityTypeNames[t]
}

// IsReadingStatus reports whether t tracks reading progress.
func (t ActivityType) IsReadingStatus() bool {
	return t == AddedToList || t == Started || t == Finished
}

// MarshalText implements encoding.TextMarshaler.
func (t ActivityType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ActivityType) UnmarshalText(b []byte) error {
	parsed, err := ParseActivityType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseActivityType parses the text form of an ActivityType.
func ParseActivityType(s string) (ActivityType, error) {
	for i, name := range activityTypeNames {
		if name == s {
			return ActivityType(i), nil
		}
	}
	return Ignored, fmt.Errorf("%w: %q", ErrUnknownActivityType, s)
}

// Subject is the book an activity refers to.
type Subject struct {
	ID          string `json:"id"`
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	CoverURL    string `json:"cover_url"`
	Placeholder bool   `json:"placeholder"`
}

// Author is the rendered profile of an activity's author.
type Author struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Picture     string `json:"picture"`
	Placeholder bool   `json:"placeholder"`
}

// ReactionSummary is the reaction state of an activity for the current viewer.
type ReactionSummary struct {
	Count         int  `json:"count"`
	ViewerReacted bool `json:"viewer_reacted"`
}

// Activity is one entry of a feed. Activities are values: never mutate one
// after construction, derive a new one instead.
type Activity struct {
	ID        string          `json:"id"`
	AuthorKey string          `json:"author_key"`
	Type      ActivityType    `json:"type"`
	Subject   Subject         `json:"subject"`
	Content   string          `json:"content"`
	Rating    *float64        `json:"rating,omitempty"`
	CreatedAt int64           `json:"created_at"` // milliseconds
	Author    Author          `json:"author"`
	Reactions ReactionSummary `json:"reactions"`
	Media     *model.Media    `json:"media,omitempty"`
	Spoiler   bool            `json:"spoiler"`
}

// WithReaction returns a copy of a with the viewer's reaction applied.
func (a Activity) WithReaction(viewerReacted bool) Activity {
	out := a
	if viewerReacted && !a.Reactions.ViewerReacted {
		out.Reactions.Count++
	}
	if !viewerReacted && a.Reactions.ViewerReacted && out.Reactions.Count > 0 {
		out.Reactions.Count--
	}
	out.Reactions.ViewerReacted = viewerReacted
	if a.Rating != nil {
		r := *a.Rating
		out.Rating = &r
	}
	if a.Media != nil {
		m := *a.Media
		out.Media = &m
	}
	return out
}

// ProfileSummary is an author profile as returned by a profile resolver.
type ProfileSummary struct {
	Key         string
	Name        string
	DisplayName string
	Picture     string
	NIP05       string
}

// DisplayedName prefers the short name and falls back to the display name.
func (p ProfileSummary) DisplayedName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.DisplayName
}

// SubjectMetadata is book metadata as returned by a subject resolver.
type SubjectMetadata struct {
	ID       string // normalized identifier, e.g. an ISBN
	Title    string
	Author   string
	CoverURL string
}

// Scope selects whose activities a feed contains.
type Scope string

// Feed scopes.
const (
	ScopeFollowers Scope = "followers"
	ScopeGlobal    Scope = "global"
)

// Request errors shared by the service and its transports.
var (
	ErrInvalidScope = errors.New("invalid scope")
	ErrInvalidLimit = errors.New("invalid limit")
	ErrBackpressure = errors.New("refresh queue full")
	ErrUnavailable  = errors.New("feed unavailable")
)

// ParseScope parses a scope name; the empty string selects the global feed.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeFollowers:
		return ScopeFollowers, nil
	case ScopeGlobal, "":
		return ScopeGlobal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// FeedRequest asks for one aggregation pass.
type FeedRequest struct {
	Scope  Scope  `json:"scope"`
	Limit  int    `json:"limit"`
	Viewer string `json:"viewer,omitempty"` // required for the followers scope
}

// Key identifies requests that produce the same feed.
func (r FeedRequest) Key() string {
	return string(r.Scope) + "|" + strconv.Itoa(r.Limit) + "|" + r.Viewer
}

// RefreshStatus reports what happened to a refresh request.
type RefreshStatus int

// Refresh statuses.
const (
	RefreshAccepted RefreshStatus = iota
	RefreshPending                // an identical refresh was already queued
)
