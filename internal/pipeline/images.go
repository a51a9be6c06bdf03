package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"seoforge/internal/artifact"
	"seoforge/internal/domain"
)

const (
	stepGenerate = "generate"
	stepUpload   = "upload"

	imageLogSuccess = "success"
	imageLogError   = "error"
)

// ImagePipeline generates and uploads every planned image, one at a time.
// A failing item is logged and skipped; the run continues with the rest.
type ImagePipeline struct {
	gen     domain.GenerativeClient
	pub     domain.Publisher
	store   *artifact.Store
	prompts *Prompts
	size    string
	logger  zerolog.Logger
	now     func() time.Time
}

func NewImagePipeline(gen domain.GenerativeClient, pub domain.Publisher, store *artifact.Store, prompts *Prompts, size string, logger zerolog.Logger) *ImagePipeline {
	if strings.TrimSpace(size) == "" {
		size = "1024x1024"
	}
	return &ImagePipeline{gen: gen, pub: pub, store: store, prompts: prompts, size: size, logger: logger, now: time.Now}
}

// Resolve returns only the images that were both generated and uploaded.
// Only a cancelled context aborts the loop.
func (p *ImagePipeline) Resolve(ctx context.Context, plan domain.ContentPlan) (*domain.ImageResolution, error) {
	res := &domain.ImageResolution{Images: []domain.ResolvedImage{}}
	for idx, item := range plan.ImagePlans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resolved, step, err := p.resolveOne(ctx, plan.Slug, idx, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			failure := domain.ImageFailure{Index: idx, Item: item, Step: step, Error: err.Error()}
			res.Failures = append(res.Failures, failure)
			p.logger.Warn().Err(err).Str("slug", plan.Slug).Int("index", idx).Str("step", step).Msg("images: item failed")
			p.logOperation(ctx, plan, imageLogError, map[string]any{
				"index":   idx,
				"step":    step,
				"error":   err.Error(),
				"details": domain.UpstreamPayload(err),
			}, item)
			continue
		}
		res.Images = append(res.Images, *resolved)
		p.logOperation(ctx, plan, imageLogSuccess, map[string]any{
			"index":               idx,
			"published_asset_id":  resolved.PublishedAssetID,
			"published_asset_url": resolved.PublishedAssetURL,
		}, item)
	}
	_, hasFeatured := res.Featured()
	res.FeaturedMissing = !hasFeatured
	if res.FeaturedMissing {
		p.logger.Warn().Str("slug", plan.Slug).Msg("images: no featured image resolved")
	}
	p.logger.Info().Str("slug", plan.Slug).Int("resolved", len(res.Images)).Int("failed", len(res.Failures)).Msg("images: resolution finished")
	return res, nil
}

func (p *ImagePipeline) resolveOne(ctx context.Context, slug string, idx int, item domain.ImagePlanItem) (*domain.ResolvedImage, string, error) {
	prompt, err := p.imagePrompt(item)
	if err != nil {
		return nil, stepGenerate, err
	}
	img, err := p.gen.GenerateImage(ctx, prompt, p.size)
	if err != nil {
		return nil, stepGenerate, err
	}
	if img == nil || (img.URL == "" && len(img.Data) == 0) {
		return nil, stepGenerate, errors.New("generator returned no image")
	}
	asset, err := p.pub.UploadAsset(ctx, *img, imageFilename(slug, idx, item.Type))
	if err != nil {
		return nil, stepUpload, err
	}
	resolved := domain.ResolvedImage{ImagePlanItem: item, RawAssetURL: img.URL}
	if asset != nil {
		resolved.PublishedAssetID = asset.ID
		resolved.PublishedAssetURL = asset.URL
	}
	if !resolved.Complete() {
		return nil, stepUpload, errors.New("upload returned an incomplete asset reference")
	}
	return &resolved, "", nil
}

func (p *ImagePipeline) imagePrompt(item domain.ImagePlanItem) (string, error) {
	if p.prompts == nil || strings.TrimSpace(p.prompts.Image.User) == "" {
		return item.Prompt, nil
	}
	prompt, err := renderText("image.user", p.prompts.Image.User, item)
	if err != nil {
		return "", err
	}
	return prompt, nil
}

func (p *ImagePipeline) logOperation(ctx context.Context, plan domain.ContentPlan, status string, result map[string]any, item domain.ImagePlanItem) {
	now := p.now()
	entry := map[string]any{
		"timestamp":  now.UTC(),
		"status":     status,
		"keyword":    plan.Keyword,
		"slug":       plan.Slug,
		"image_plan": item,
		"result":     result,
	}
	tags := artifact.Tags{"type": "image_operation_log", "slug": plan.Slug}
	if _, err := p.store.Append(ctx, artifact.ImageLogPrefix(artifact.DateKey(now), status), entry, tags); err != nil {
		p.logger.Error().Err(err).Str("slug", plan.Slug).Msg("images: could not store operation log")
	}
}

// imageFilename names uploads {slug}-{type}-{n}, one-based.
func imageFilename(slug string, idx int, kind domain.ImageType) string {
	if kind == "" {
		kind = domain.ImageTypeContent
	}
	return fmt.Sprintf("%s-%s-%d", slug, kind, idx+1)
}
