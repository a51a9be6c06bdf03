package artifact

import (
	"fmt"
	"strings"
	"time"
)

const (
	NamespaceKeywords = "keywords"
	NamespacePosts    = "posts"
	NamespaceLogs     = "logs"
)

// Fixed stage output names under keywords/{slug}/.
const (
	StageStructure           = "structure"
	StageStructureParseError = "structure_parse_error"
	StageImages              = "images"
	StageContentInput        = "content_input"
	StageRawContent          = "raw_content"
	StageParseError          = "parse_error"
	StageContent             = "content"
	StageComposed            = "composed"
	StagePublished           = "published"
)

const (
	PreCreation    = "pre_creation"
	CreationResult = "creation_result"
)

// DateLayout is the day granularity used for posts/ and logs/ partitions.
const DateLayout = "2006-01-02"

// DateKey formats t as a partition date.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// KeywordPath returns keywords/{slug}/{name}.
func KeywordPath(slug, name string) string {
	return join(NamespaceKeywords, slug, name)
}

// PostPath returns posts/{key}/{name}; key is a date or a remote post id.
func PostPath(key, name string) string {
	return join(NamespacePosts, key, name)
}

func ErrorLogPrefix(date string) string {
	return join(NamespaceLogs, date, "errors")
}

func RecoveryErrorLogPrefix(date string) string {
	return join(NamespaceLogs, "recovery", date, "errors")
}

// ImageLogPrefix returns logs/image_operations/{date}/{status}.
func ImageLogPrefix(date, status string) string {
	return join(NamespaceLogs, "image_operations", date, status)
}

func PublisherErrorLogPrefix(date string) string {
	return join(NamespaceLogs, "wordpress", date, "errors")
}

// composedTemplates lists every layout a composed package has been stored
// under, in the order recovery must probe them. keywords/ is the current
// layout; posts/ and content/ are older ones still present in long-lived
// stores.
var composedTemplates = []string{
	"keywords/%s/composed",
	"posts/%s/composed",
	"content/%s/composed",
}

// ComposedCandidates returns the probe list for slug.
func ComposedCandidates(slug string) []string {
	out := make([]string, 0, len(composedTemplates))
	for _, tmpl := range composedTemplates {
		out = append(out, fmt.Sprintf(tmpl, slug))
	}
	return out
}

// entryName builds the append-only suffix for a log entry. The timestamp
// sorts lexicographically; id breaks ties between writers in the same instant.
func entryName(t time.Time, id string) string {
	return t.UTC().Format("20060102T150405.000000000Z") + "-" + id
}

func join(parts ...string) string {
	return strings.Join(parts, "/")
}

// namespaceOf returns the first segment of path.
func namespaceOf(path string) string {
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[:idx]
	}
	return path
}
