package feedprobe

import (
	"fmt"
	"strings"

	"github.com/okian/readfeed/internal/domain/types"
)

// Violation describes one broken feed property.
type Violation struct {
	Index  int
	ID     string
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("#%d %s: %s", v.Index, v.ID, v.Reason)
}

// VerifyFeed checks the properties every served feed must have: at most
// limit entries, newest first, unique ids, and rendered subject and author.
func VerifyFeed(feed []types.Activity, limit int) []Violation {
	var out []Violation
	if limit > 0 && len(feed) > limit {
		out = append(out, Violation{Index: -1, Reason: fmt.Sprintf("%d activities exceed limit %d", len(feed), limit)})
	}

	seen := make(map[string]int, len(feed))
	for i, a := range feed {
		if a.ID == "" {
			out = append(out, Violation{Index: i, Reason: "empty id"})
		} else if prev, dup := seen[a.ID]; dup {
			out = append(out, Violation{Index: i, ID: a.ID, Reason: fmt.Sprintf("duplicate of #%d", prev)})
		} else {
			seen[a.ID] = i
		}

		if i > 0 && a.CreatedAt > feed[i-1].CreatedAt {
			out = append(out, Violation{Index: i, ID: a.ID, Reason: "newer than previous activity"})
		}
		if a.Type == types.Ignored {
			out = append(out, Violation{Index: i, ID: a.ID, Reason: "ignored activity type"})
		}
		if strings.TrimSpace(a.Subject.ID) == "" || strings.TrimSpace(a.Subject.Title) == "" {
			out = append(out, Violation{Index: i, ID: a.ID, Reason: "subject not rendered"})
		}
		if strings.TrimSpace(a.Author.Name) == "" {
			out = append(out, Violation{Index: i, ID: a.ID, Reason: "author not rendered"})
		}
	}
	return out
}
