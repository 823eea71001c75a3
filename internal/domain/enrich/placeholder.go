package enrich

import (
	"fmt"

	"github.com/okian/readfeed/internal/domain/types"
)

// Placeholder values used when enrichment cannot resolve a reference.
const (
	UnknownTitle   = "Unknown Book"
	UnknownAuthor  = "Unknown Author"
	GenericID      = "generic"
	GenericTitle   = "Book Discussion"
	anonymous      = "Anonymous"
	coverURLFormat = "https://covers.openlibrary.org/b/isbn/%s-L.jpg"

	shortKeyHead = 8
	shortKeyTail = 4
)

// SubjectKey is the subject id an activity carries for identifier id.
func SubjectKey(id string) string {
	return "isbn:" + id
}

// CoverURL is the catalog cover image for identifier id.
func CoverURL(id string) string {
	return fmt.Sprintf(coverURLFormat, id)
}

// ShortKey abbreviates an author key for display, e.g. "3bf0c63f...459d".
func ShortKey(key string) string {
	if len(key) <= shortKeyHead+shortKeyTail+3 {
		return key
	}
	return key[:shortKeyHead] + "..." + key[len(key)-shortKeyTail:]
}

// PlaceholderAuthor renders an author whose profile could not be resolved.
func PlaceholderAuthor(key string) types.Author {
	name := ShortKey(key)
	if name == "" {
		name = anonymous
	}
	return types.Author{Key: key, Name: name, Placeholder: true}
}

// PlaceholderSubject renders a subject the catalog did not know. The
// identifier stays recoverable from both the id and the cover URL.
func PlaceholderSubject(id string) types.Subject {
	return types.Subject{
		ID:          SubjectKey(id),
		ISBN:        id,
		Title:       UnknownTitle,
		Author:      UnknownAuthor,
		CoverURL:    CoverURL(id),
		Placeholder: true,
	}
}

// GenericSubject is attached to posts that reference no subject.
func GenericSubject() types.Subject {
	return types.Subject{ID: GenericID, Title: GenericTitle, Placeholder: true}
}
