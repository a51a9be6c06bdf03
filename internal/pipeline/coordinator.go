// Package pipeline runs the article stages (plan, images, body, compose,
// publish) for one keyword at a time, checkpointing each stage's output in
// the artifact store before the next one starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"seoforge/internal/artifact"
	"seoforge/internal/domain"
	"seoforge/internal/lock"
)

// Deps are the collaborators shared by Coordinator and Recovery.
type Deps struct {
	Source    domain.KeywordSource
	Generator domain.GenerativeClient
	Publisher domain.Publisher
	Store     *artifact.Store
	Locker    lock.Locker
	Prompts   *Prompts
	ImageSize string
	Logger    zerolog.Logger
	Now       func() time.Time
	NewRunID  func() string
}

// RunResult describes a finished run.
type RunResult struct {
	RunID           string                `json:"run_id"`
	Keyword         string                `json:"keyword"`
	Slug            string                `json:"slug"`
	State           domain.RunState       `json:"state"`
	Transitions     []domain.RunState     `json:"transitions"`
	Post            *domain.PublishedPost `json:"post,omitempty"`
	FeaturedMissing bool                  `json:"featured_missing"`
	ImageFailures   int                   `json:"image_failures"`
	Resumed         bool                  `json:"resumed,omitempty"`
	FailedStage     domain.Stage          `json:"failed_stage,omitempty"`
	Error           string                `json:"error,omitempty"`
}

// Coordinator drives the stage state machine:
// started -> planned -> images_resolved -> body_generated -> published -> completed,
// with failed reachable from every state.
type Coordinator struct {
	source    domain.KeywordSource
	publisher domain.Publisher
	store     *artifact.Store
	locker    lock.Locker
	planner   *Planner
	images    *ImagePipeline
	content   *ContentGenerator
	composer  *Composer
	logger    zerolog.Logger
	now       func() time.Time
	newRunID  func() string
}

func NewCoordinator(d Deps) (*Coordinator, error) {
	switch {
	case d.Source == nil:
		return nil, errors.New("pipeline: keyword source is required")
	case d.Generator == nil:
		return nil, errors.New("pipeline: generative client is required")
	case d.Publisher == nil:
		return nil, errors.New("pipeline: publisher is required")
	case d.Store == nil:
		return nil, errors.New("pipeline: artifact store is required")
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	if d.Prompts == nil {
		d.Prompts = DefaultPrompts()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
	c := &Coordinator{
		source:    d.Source,
		publisher: d.Publisher,
		store:     d.Store,
		locker:    d.Locker,
		planner:   NewPlanner(d.Generator, d.Store, d.Prompts, d.Logger),
		images:    NewImagePipeline(d.Generator, d.Publisher, d.Store, d.Prompts, d.ImageSize, d.Logger),
		content:   NewContentGenerator(d.Generator, d.Store, d.Prompts, d.Logger),
		composer:  NewComposer(d.Store, d.Logger),
		logger:    d.Logger,
		now:       d.Now,
		newRunID:  d.NewRunID,
	}
	c.planner.now = d.Now
	c.images.now = d.Now
	c.content.now = d.Now
	c.composer.now = d.Now
	return c, nil
}

// RunNext processes the next pending keyword. It returns an error wrapping
// domain.ErrSourceExhausted when the worklist is empty.
func (c *Coordinator) RunNext(ctx context.Context) (*RunResult, error) {
	task, err := c.source.Next(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSourceExhausted) {
			c.logger.Info().Msg("pipeline: no pending keyword")
		}
		return nil, err
	}
	return c.Process(ctx, *task)
}

// Process runs every stage for task and records the outcome on its worklist
// row. A held slug lock returns domain.ErrRunInProgress and leaves the row
// untouched.
func (c *Coordinator) Process(ctx context.Context, task domain.KeywordTask) (*RunResult, error) {
	r := c.newRun(task.Keyword)
	if r.result.Slug == "" {
		err := &domain.StageError{Stage: domain.StagePlan, Keyword: task.Keyword, Err: fmt.Errorf("keyword %q has no slug characters", task.Keyword)}
		r.fail(domain.StagePlan, err)
		c.logFailure(ctx, artifact.ErrorLogPrefix(artifact.DateKey(c.now())), r, err)
		c.mark(ctx, task, domain.StatusError, err.Error())
		return r.result, err
	}

	release, err := c.locker.Acquire(ctx, r.result.Slug)
	if err != nil {
		return nil, err
	}
	defer c.release(ctx, release, r.result.Slug)

	if err := c.resumeOrExecute(ctx, r); err != nil {
		c.logFailure(ctx, artifact.ErrorLogPrefix(artifact.DateKey(c.now())), r, err)
		c.mark(ctx, task, domain.StatusError, err.Error())
		return r.result, err
	}

	if err := c.source.MarkProcessed(ctx, task.Locator, domain.StatusSuccess, ""); err != nil {
		stageErr := &domain.StageError{Stage: domain.StageSource, Keyword: task.Keyword, Err: err}
		r.fail(domain.StageSource, stageErr)
		c.logFailure(ctx, artifact.ErrorLogPrefix(artifact.DateKey(c.now())), r, stageErr)
		return r.result, stageErr
	}
	if err := r.advance(domain.StateCompleted); err != nil {
		return r.result, err
	}
	c.logger.Info().Str("run_id", r.result.RunID).Str("slug", r.result.Slug).Str("remote_id", r.result.Post.RemoteID).Msg("pipeline: run completed")
	return r.result, nil
}

// resumeOrExecute skips every stage when an earlier run already published
// the slug, so a row left pending after publishing never yields a second post.
func (c *Coordinator) resumeOrExecute(ctx context.Context, r *run) error {
	post, err := c.published(ctx, r.result.Slug)
	if err != nil {
		wrapped := &domain.StageError{Stage: domain.StagePublish, Keyword: r.result.Keyword, Err: err}
		r.fail(domain.StagePublish, wrapped)
		return wrapped
	}
	if post == nil {
		_, err := c.execute(ctx, r)
		return err
	}
	c.logger.Info().Str("run_id", r.result.RunID).Str("slug", r.result.Slug).Str("remote_id", post.RemoteID).Msg("pipeline: post already published, skipping stages")
	return r.resume(post)
}

// published returns the keywords/{slug}/published checkpoint, or nil when the
// slug has not been published.
func (c *Coordinator) published(ctx context.Context, slug string) (*domain.PublishedPost, error) {
	var post domain.PublishedPost
	err := c.store.Get(ctx, artifact.KeywordPath(slug, artifact.StagePublished), &post)
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	case post.RemoteID == "":
		return nil, nil
	}
	return &post, nil
}

// execute runs plan through publish. Errors come back as *domain.StageError.
func (c *Coordinator) execute(ctx context.Context, r *run) (*domain.PublishedPost, error) {
	keyword, slug := r.result.Keyword, r.result.Slug
	stageErr := func(stage domain.Stage, err error) error {
		wrapped := &domain.StageError{Stage: stage, Keyword: keyword, Err: err}
		r.fail(stage, wrapped)
		return wrapped
	}

	marker := map[string]any{
		"run_id":     r.result.RunID,
		"keyword":    keyword,
		"slug":       slug,
		"started_at": c.now().UTC(),
	}
	if err := c.store.Put(ctx, artifact.PostPath(artifact.DateKey(c.now()), artifact.PreCreation), marker, artifact.Tags{"type": artifact.PreCreation, "keyword": keyword}); err != nil {
		return nil, stageErr(domain.StagePlan, err)
	}

	plan, err := c.planner.Plan(ctx, keyword)
	if err != nil {
		return nil, stageErr(domain.StagePlan, err)
	}
	if err := r.advance(domain.StatePlanned); err != nil {
		return nil, stageErr(domain.StagePlan, err)
	}

	resolution, err := c.images.Resolve(ctx, *plan)
	if err != nil {
		return nil, stageErr(domain.StageImages, err)
	}
	if err := c.store.Put(ctx, artifact.KeywordPath(slug, artifact.StageImages), resolution, artifact.Tags{"type": artifact.StageImages, "keyword": keyword}); err != nil {
		return nil, stageErr(domain.StageImages, err)
	}
	r.result.FeaturedMissing = resolution.FeaturedMissing
	r.result.ImageFailures = len(resolution.Failures)
	if err := r.advance(domain.StateImagesResolved); err != nil {
		return nil, stageErr(domain.StageImages, err)
	}

	body, err := c.content.Generate(ctx, *plan, resolution.Images)
	if err != nil {
		return nil, stageErr(domain.StageBody, err)
	}
	if err := r.advance(domain.StateBodyGenerated); err != nil {
		return nil, stageErr(domain.StageBody, err)
	}

	pkg, err := c.composer.Compose(ctx, keyword, *body, *resolution)
	if err != nil {
		return nil, stageErr(domain.StageCompose, err)
	}

	post, err := c.publish(ctx, slug, *pkg)
	if err != nil {
		return nil, stageErr(domain.StagePublish, err)
	}
	r.result.Post = post
	if err := r.advance(domain.StatePublished); err != nil {
		return nil, stageErr(domain.StagePublish, err)
	}
	return post, nil
}

// publish creates the post and checkpoints it at keywords/{slug}/published.
func (c *Coordinator) publish(ctx context.Context, slug string, pkg domain.PostPackage) (*domain.PublishedPost, error) {
	post, err := c.publisher.CreatePost(ctx, pkg)
	if err != nil {
		return nil, err
	}
	if post == nil || post.RemoteID == "" {
		return nil, &domain.UpstreamError{Kind: domain.ErrPublishFailure, Op: "create post", Err: errors.New("publisher returned no post id")}
	}
	tags := artifact.Tags{"type": artifact.StagePublished, "keyword": pkg.Keyword, "remote_id": post.RemoteID}
	if err := c.store.Put(ctx, artifact.KeywordPath(slug, artifact.StagePublished), post, tags); err != nil {
		c.logger.Error().Err(err).Str("slug", slug).Str("remote_id", post.RemoteID).Msg("pipeline: post created but checkpoint failed")
		return nil, err
	}
	c.logger.Info().Str("slug", slug).Str("remote_id", post.RemoteID).Str("remote_url", post.RemoteURL).Msg("pipeline: post published")
	return post, nil
}

func (c *Coordinator) mark(ctx context.Context, task domain.KeywordTask, status domain.ProcessStatus, message string) {
	if task.Locator == "" {
		return
	}
	if err := c.source.MarkProcessed(ctx, task.Locator, status, message); err != nil {
		c.logger.Error().Err(err).Str("keyword", task.Keyword).Str("status", string(status)).Msg("pipeline: could not update worklist")
	}
}

// logFailure appends the failure with its stage, keyword and upstream payload.
func (c *Coordinator) logFailure(ctx context.Context, prefix string, r *run, err error) {
	var stage domain.Stage
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		stage = stageErr.Stage
	}
	entry := map[string]any{
		"timestamp":   c.now().UTC(),
		"run_id":      r.result.RunID,
		"keyword":     r.result.Keyword,
		"slug":        r.result.Slug,
		"stage":       stage,
		"transitions": r.result.Transitions,
		"error":       err.Error(),
		"payload":     domain.UpstreamPayload(err),
	}
	c.logger.Error().Err(err).Str("run_id", r.result.RunID).Str("keyword", r.result.Keyword).Str("stage", string(stage)).Msg("pipeline: run failed")
	tags := artifact.Tags{"type": "pipeline_error", "keyword": r.result.Keyword, "stage": string(stage)}
	if _, logErr := c.store.Append(ctx, prefix, entry, tags); logErr != nil {
		c.logger.Error().Err(logErr).Str("prefix", prefix).Msg("pipeline: could not store error log")
	}
}

// release frees the slug lock even when ctx is already cancelled.
func (c *Coordinator) release(ctx context.Context, release lock.Release, slug string) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn().Err(err).Str("slug", slug).Msg("pipeline: could not release slug lock")
	}
}
