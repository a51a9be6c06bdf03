package domain

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SlugSeparator joins the alphanumeric runs of a slug.
const SlugSeparator = "-"

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases keyword and collapses every maximal run of characters
// outside [a-z0-9] into a single separator. Leading and trailing separators
// are dropped, so Slug(Slug(k)) == Slug(k).
func Slug(keyword string) string {
	lower := cases.Lower(language.Und).String(keyword)
	slug := nonSlugRun.ReplaceAllString(lower, SlugSeparator)
	return strings.Trim(slug, SlugSeparator)
}
