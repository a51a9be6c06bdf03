package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"seoforge/internal/artifact"
	"seoforge/internal/domain"
	"seoforge/internal/llmjson"
)

const imageDisplayAttrs = `class="wp-image aligncenter" style="max-width: 800px; height: auto;"`

var (
	imgTag       = regexp.MustCompile(`(?i)<img\b((?:[^>"']|"[^"]*"|'[^']*')*?)\s*/?>`)
	classOrStyle = regexp.MustCompile(`(?i)\s+(?:class|style)\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`)
)

// ContentGenerator expands a plan and its resolved images into the article body.
type ContentGenerator struct {
	gen     domain.GenerativeClient
	store   *artifact.Store
	prompts *Prompts
	logger  zerolog.Logger
	now     func() time.Time
}

func NewContentGenerator(gen domain.GenerativeClient, store *artifact.Store, prompts *Prompts, logger zerolog.Logger) *ContentGenerator {
	return &ContentGenerator{gen: gen, store: store, prompts: prompts, logger: logger, now: time.Now}
}

// Generate writes content_input and raw_content before decoding, parse_error
// when the response is rejected, and content on success. Only complete images
// are offered to the model and required in the html.
func (g *ContentGenerator) Generate(ctx context.Context, plan domain.ContentPlan, images []domain.ResolvedImage) (*domain.ContentBody, error) {
	complete := make([]domain.ResolvedImage, 0, len(images))
	for _, img := range images {
		if img.Complete() {
			complete = append(complete, img)
		}
	}
	tags := func(kind string) artifact.Tags {
		return artifact.Tags{"type": kind, "keyword": plan.Keyword}
	}

	input := map[string]any{"structure": plan, "images": complete, "timestamp": g.now().UTC()}
	if err := g.store.Put(ctx, artifact.KeywordPath(plan.Slug, artifact.StageContentInput), input, tags(artifact.StageContentInput)); err != nil {
		return nil, err
	}

	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	imagesJSON, err := json.MarshalIndent(complete, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}
	bundle, err := g.prompts.Content.Render("content", struct {
		Keyword string
		Plan    string
		Images  string
	}{Keyword: plan.Keyword, Plan: string(planJSON), Images: string(imagesJSON)})
	if err != nil {
		return nil, err
	}

	g.logger.Info().Str("slug", plan.Slug).Int("images", len(complete)).Msg("content: requesting body")
	raw, err := g.gen.GenerateStructured(ctx, bundle)
	if err != nil {
		return nil, err
	}
	rawEntry := map[string]any{"original": raw, "timestamp": g.now().UTC()}
	if err := g.store.Put(ctx, artifact.KeywordPath(plan.Slug, artifact.StageRawContent), rawEntry, tags(artifact.StageRawContent)); err != nil {
		return nil, err
	}

	res := llmjson.Parse(raw, func(b domain.ContentBody) []string { return b.Validate(complete) })
	if res.Outcome != llmjson.OutcomeOK {
		failure := res.Failure()
		g.logger.Warn().Err(failure).Str("slug", plan.Slug).Str("outcome", res.Outcome.String()).Msg("content: rejected body")
		diag := map[string]any{
			"timestamp":       g.now().UTC(),
			"outcome":         res.Outcome.String(),
			"error":           failure.Error(),
			"reasons":         res.Reasons,
			"raw_content":     res.Raw,
			"cleaned_content": res.Cleaned,
		}
		if err := g.store.Put(ctx, artifact.KeywordPath(plan.Slug, artifact.StageParseError), diag, tags(artifact.StageParseError)); err != nil {
			return nil, errors.Join(failure, err)
		}
		return nil, failure
	}
	if res.Pass != "" {
		g.logger.Debug().Str("slug", plan.Slug).Str("pass", res.Pass).Msg("content: body decoded after normalization")
	}

	body := res.Value
	body.Slug = plan.Slug
	body.HTML = NormalizeImageTags(body.HTML)
	if err := g.store.Put(ctx, artifact.KeywordPath(plan.Slug, artifact.StageContent), body, tags(artifact.StageContent)); err != nil {
		return nil, err
	}
	return &body, nil
}

// NormalizeImageTags gives every img tag the same display attributes,
// replacing any class or style it already had.
func NormalizeImageTags(html string) string {
	return imgTag.ReplaceAllStringFunc(html, func(tag string) string {
		m := imgTag.FindStringSubmatch(tag)
		attrs := classOrStyle.ReplaceAllString(m[1], "")
		return "<img" + attrs + " " + imageDisplayAttrs + ">"
	})
}
