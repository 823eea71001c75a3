package classify

import "github.com/okian/readfeed/pkg/logger"

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithPolicy selects which activity types reach the feed.
func WithPolicy(p Policy) Option {
	return func(c *Classifier) {
		if p != "" {
			c.policy = p
		}
	}
}

// WithKeepUnlinkedPosts keeps posts that reference no subject. They are
// later rendered with a generic subject.
func WithKeepUnlinkedPosts(keep bool) Option {
	return func(c *Classifier) {
		c.keepUnlinked = keep
	}
}

// WithFeedTag sets the topic tag that marks a text note as a feed post.
func WithFeedTag(tag string) Option {
	return func(c *Classifier) {
		if tag != "" {
			c.feedTag = tag
		}
	}
}

// WithLogger sets the logger used by the classifier.
func WithLogger(l logger.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.log = l
		}
	}
}
