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
	"seoforge/internal/llmjson"
)

// Planner turns a keyword into a validated ContentPlan.
type Planner struct {
	gen     domain.GenerativeClient
	store   *artifact.Store
	prompts *Prompts
	logger  zerolog.Logger
	now     func() time.Time
}

func NewPlanner(gen domain.GenerativeClient, store *artifact.Store, prompts *Prompts, logger zerolog.Logger) *Planner {
	return &Planner{gen: gen, store: store, prompts: prompts, logger: logger, now: time.Now}
}

// Plan requests a structure for keyword and persists it at
// keywords/{slug}/structure. The slug always derives from keyword, whatever
// the model proposed.
func (p *Planner) Plan(ctx context.Context, keyword string) (*domain.ContentPlan, error) {
	slug := domain.Slug(keyword)
	if slug == "" {
		return nil, fmt.Errorf("keyword %q has no slug characters", keyword)
	}
	bundle, err := p.prompts.Structure.Render("structure", struct{ Keyword string }{Keyword: keyword})
	if err != nil {
		return nil, err
	}

	p.logger.Info().Str("keyword", keyword).Str("slug", slug).Msg("planner: requesting structure")
	raw, err := p.gen.GenerateStructured(ctx, bundle)
	if err != nil {
		return nil, err
	}

	res := llmjson.Parse(raw, domain.ContentPlan.Validate)
	if res.Outcome != llmjson.OutcomeOK {
		failure := res.Failure()
		p.logger.Warn().Err(failure).Str("slug", slug).Str("outcome", res.Outcome.String()).Msg("planner: rejected structure")
		diag := map[string]any{
			"timestamp": p.now().UTC(),
			"keyword":   keyword,
			"outcome":   res.Outcome.String(),
			"error":     failure.Error(),
			"reasons":   res.Reasons,
			"raw":       res.Raw,
			"cleaned":   res.Cleaned,
		}
		if err := p.store.Put(ctx, artifact.KeywordPath(slug, artifact.StageStructureParseError), diag, artifact.Tags{"type": artifact.StageStructureParseError, "keyword": keyword}); err != nil {
			return nil, errors.Join(failure, err)
		}
		return nil, failure
	}

	plan := res.Value
	plan.Keyword = keyword
	plan.Slug = slug
	if strings.TrimSpace(plan.Title) == "" {
		plan.Title = keyword
	}
	if plan.Metadata.FocusKeyword == "" {
		plan.Metadata.FocusKeyword = keyword
	}
	if err := p.store.Put(ctx, artifact.KeywordPath(slug, artifact.StageStructure), plan, artifact.Tags{"type": artifact.StageStructure, "keyword": keyword}); err != nil {
		return nil, err
	}
	p.logger.Info().Str("slug", slug).Int("images", len(plan.ImagePlans)).Int("sections", len(plan.Outline)).Msg("planner: structure stored")
	return &plan, nil
}
