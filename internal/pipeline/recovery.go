package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"seoforge/internal/artifact"
	"seoforge/internal/domain"
)

// Recovery sources, from the most to the least advanced.
const (
	RecoveredPublished   = "published"
	RecoveredComposed    = "composed"
	RecoveredRegenerated = "regenerated"
)

// RecoveryResult describes what a recovery did.
type RecoveryResult struct {
	Keyword string                `json:"keyword"`
	Slug    string                `json:"slug"`
	From    string                `json:"from"`
	Path    string                `json:"path,omitempty"`
	Post    *domain.PublishedPost `json:"post"`
	Run     *RunResult            `json:"run,omitempty"`
}

// Recovery resumes an interrupted run from the most advanced stored artifact.
type Recovery struct {
	c      *Coordinator
	logger zerolog.Logger
}

func NewRecovery(c *Coordinator) *Recovery {
	return &Recovery{c: c, logger: c.logger}
}

// Recover returns the stored post when one exists, republishes a stored
// composed package when one is found, and otherwise reruns every stage from
// scratch. date partitions the recovery error log.
func (rc *Recovery) Recover(ctx context.Context, date, keyword string) (*RecoveryResult, error) {
	if _, err := time.Parse(artifact.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: recovery date %q must be %s: %v", domain.ErrInvalidInput, date, artifact.DateLayout, err)
	}
	slug := domain.Slug(keyword)
	if slug == "" {
		return nil, fmt.Errorf("%w: keyword %q has no slug characters", domain.ErrInvalidInput, keyword)
	}

	release, err := rc.c.locker.Acquire(ctx, slug)
	if err != nil {
		return nil, err
	}
	defer rc.c.release(ctx, release, slug)

	rc.logger.Info().Str("keyword", keyword).Str("slug", slug).Str("date", date).Msg("recovery: starting")
	task := rc.findTask(ctx, keyword)

	res, err := rc.recover(ctx, keyword, slug)
	if err != nil {
		rc.logFailure(ctx, date, keyword, slug, err)
		if task != nil {
			rc.c.mark(ctx, *task, domain.StatusError, err.Error())
		}
		return nil, err
	}
	if task != nil {
		rc.c.mark(ctx, *task, domain.StatusSuccess, "")
	}
	rc.logger.Info().Str("slug", slug).Str("from", res.From).Str("remote_id", res.Post.RemoteID).Msg("recovery: finished")
	return res, nil
}

func (rc *Recovery) recover(ctx context.Context, keyword, slug string) (*RecoveryResult, error) {
	res := &RecoveryResult{Keyword: keyword, Slug: slug}

	published, err := rc.c.published(ctx, slug)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StagePublish, Keyword: keyword, Err: err}
	}
	if published != nil {
		rc.logger.Info().Str("slug", slug).Str("remote_id", published.RemoteID).Msg("recovery: post already published")
		res.From, res.Path, res.Post = RecoveredPublished, artifact.KeywordPath(slug, artifact.StagePublished), published
		return res, nil
	}

	pkg, path, err := rc.findComposed(ctx, keyword, slug)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageCompose, Keyword: keyword, Err: err}
	}
	if pkg != nil {
		post, err := rc.c.publish(ctx, slug, *pkg)
		if err != nil {
			return nil, &domain.StageError{Stage: domain.StagePublish, Keyword: keyword, Err: err}
		}
		res.From, res.Path, res.Post = RecoveredComposed, path, post
		return res, nil
	}

	rc.logger.Info().Str("slug", slug).Msg("recovery: no composed package, regenerating")
	r := rc.c.newRun(keyword)
	res.Run = r.result
	post, err := rc.c.execute(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrArtifactNotFound, slug, err)
	}
	if err := r.advance(domain.StateCompleted); err != nil {
		return nil, err
	}
	res.From, res.Post = RecoveredRegenerated, post
	return res, nil
}

// findComposed probes artifact.ComposedCandidates in order. Candidates that
// fail to decode or validate are skipped.
func (rc *Recovery) findComposed(ctx context.Context, keyword, slug string) (*domain.PostPackage, string, error) {
	for _, path := range artifact.ComposedCandidates(slug) {
		env, err := rc.c.store.Envelope(ctx, path)
		if errors.Is(err, artifact.ErrNotFound) {
			rc.logger.Debug().Str("path", path).Msg("recovery: composed package not found")
			continue
		}
		if err != nil {
			return nil, "", err
		}
		var pkg domain.PostPackage
		if err := json.Unmarshal(env.Payload, &pkg); err != nil {
			rc.logger.Warn().Err(err).Str("path", path).Msg("recovery: skipping unreadable composed package")
			continue
		}
		if pkg.Keyword == "" {
			pkg.Keyword = keyword
		}
		if pkg.Slug == "" {
			pkg.Slug = slug
		}
		if reasons := pkg.Validate(); len(reasons) > 0 {
			rc.logger.Warn().Str("path", path).Strs("reasons", reasons).Msg("recovery: skipping incomplete composed package")
			continue
		}
		rc.logger.Info().Str("path", path).Msg("recovery: found composed package")
		return &pkg, path, nil
	}
	return nil, "", nil
}

// findTask looks the worklist row up by keyword text. A missing row or a
// failing worklist only produces a warning.
func (rc *Recovery) findTask(ctx context.Context, keyword string) *domain.KeywordTask {
	task, err := rc.c.source.FindByKeyword(ctx, keyword)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		rc.logger.Warn().Str("keyword", keyword).Msg("recovery: keyword not in worklist, continuing without status update")
		return nil
	case err != nil:
		rc.logger.Warn().Err(err).Str("keyword", keyword).Msg("recovery: worklist lookup failed, continuing without status update")
		return nil
	}
	return task
}

func (rc *Recovery) logFailure(ctx context.Context, date, keyword, slug string, err error) {
	r := &run{result: &RunResult{Keyword: keyword, Slug: slug}}
	rc.c.logFailure(ctx, artifact.RecoveryErrorLogPrefix(date), r, err)
}
