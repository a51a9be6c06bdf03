package pipeline

import (
	"context"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/rs/zerolog"

	"seoforge/internal/artifact"
	"seoforge/internal/domain"
)

const excerptWords = 55

var (
	mdLink     = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	mdEmphasis = regexp.MustCompile("[*_`~]+")
)

// Composer assembles the publish-ready package from the body and images.
type Composer struct {
	store     *artifact.Store
	converter *md.Converter
	logger    zerolog.Logger
	now       func() time.Time
}

func NewComposer(store *artifact.Store, logger zerolog.Logger) *Composer {
	return &Composer{
		store:     store,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
		now:       time.Now,
	}
}

// Compose persists the package at keywords/{slug}/composed.
func (c *Composer) Compose(ctx context.Context, keyword string, body domain.ContentBody, images domain.ImageResolution) (*domain.PostPackage, error) {
	pkg := domain.PostPackage{
		Keyword:         keyword,
		Title:           body.Title,
		Slug:            body.Slug,
		Metadata:        body.Metadata,
		HTML:            body.HTML,
		Images:          []domain.ResolvedImage{},
		FeaturedMissing: images.FeaturedMissing,
		ComposedAt:      c.now().UTC(),
	}
	if pkg.Slug == "" {
		pkg.Slug = domain.Slug(keyword)
	}
	if pkg.Metadata.FocusKeyword == "" {
		pkg.Metadata.FocusKeyword = keyword
	}
	for _, img := range images.Images {
		if img.Complete() {
			pkg.Images = append(pkg.Images, img)
		}
	}
	if reasons := pkg.Validate(); len(reasons) > 0 {
		return nil, &domain.SchemaError{Reasons: reasons}
	}

	excerpt, err := c.Excerpt(pkg.HTML)
	if err != nil {
		c.logger.Warn().Err(err).Str("slug", pkg.Slug).Msg("composer: excerpt unavailable")
	}
	pkg.Excerpt = excerpt
	if pkg.Excerpt == "" {
		pkg.Excerpt = pkg.Metadata.Description
	}

	tags := artifact.Tags{"type": artifact.StageComposed, "keyword": keyword}
	if err := c.store.Put(ctx, artifact.KeywordPath(pkg.Slug, artifact.StageComposed), pkg, tags); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// Excerpt returns the first prose paragraph of html as plain text, cut to
// excerptWords words.
func (c *Composer) Excerpt(html string) (string, error) {
	markdown, err := c.converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	for _, para := range strings.Split(markdown, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" || !isProse(para) {
			continue
		}
		text := mdLink.ReplaceAllString(para, "$1")
		text = mdEmphasis.ReplaceAllString(text, "")
		words := strings.Fields(text)
		if len(words) == 0 {
			continue
		}
		if len(words) > excerptWords {
			return strings.Join(words[:excerptWords], " ") + "…", nil
		}
		return strings.Join(words, " "), nil
	}
	return "", nil
}

// isProse skips headings, lists, quotes, tables, images and code.
func isProse(para string) bool {
	switch para[0] {
	case '#', '-', '*', '+', '>', '|', '!', '{', '<', '`':
		return false
	}
	if len(para) > 1 && para[0] >= '0' && para[0] <= '9' && strings.Contains(para[:min(4, len(para))], ".") {
		return false
	}
	return true
}
