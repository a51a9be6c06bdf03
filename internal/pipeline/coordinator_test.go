package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"seoforge/internal/artifact"
	"seoforge/internal/domain"
)

const pocketWatch = "antique pocket watch value"

func TestCoordinatorEndToEnd(t *testing.T) {
	env := newTestEnv(t, pocketWatch)
	slug := "antique-pocket-watch-value"
	env.scriptPlan(t, pocketWatch, domain.ImageTypeFeatured, domain.ImageTypeContent)
	featuredURL := uploadURL(slug + "-featured-1")
	contentURL := uploadURL(slug + "-content-2")
	env.scriptContent(t, "Antique Pocket Watch Value", featuredURL, contentURL)

	res, err := env.coord.RunNext(context.Background())
	if err != nil {
		t.Fatalf("RunNext returned error: %v", err)
	}
	if res.Slug != slug {
		t.Fatalf("slug = %q, want %q", res.Slug, slug)
	}
	wantTransitions := []domain.RunState{
		domain.StateStarted, domain.StatePlanned, domain.StateImagesResolved,
		domain.StateBodyGenerated, domain.StatePublished, domain.StateCompleted,
	}
	if diff := cmp.Diff(wantTransitions, res.Transitions); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}
	if res.State != domain.StateCompleted || res.Post == nil || res.Post.RemoteID != "9001" {
		t.Fatalf("result = %+v", res)
	}
	if res.FeaturedMissing || res.ImageFailures != 0 {
		t.Fatalf("unexpected image outcome: %+v", res)
	}

	if row := env.src.row(0); row.status != domain.StatusSuccess {
		t.Fatalf("worklist status = %q, want success", row.status)
	}
	if got := env.pub.postCount(); got != 1 {
		t.Fatalf("CreatePost calls = %d, want 1", got)
	}
	pkg := env.pub.posts[0]
	for _, u := range []string{featuredURL, contentURL} {
		if !strings.Contains(pkg.HTML, `<img src="`+u+`" alt=`) {
			t.Fatalf("html missing image %s: %s", u, pkg.HTML)
		}
	}
	if strings.Contains(pkg.HTML, `class="old"`) || strings.Count(pkg.HTML, imageDisplayAttrs) != 2 {
		t.Fatalf("image tags not normalized: %s", pkg.HTML)
	}
	if pkg.Slug != slug || len(pkg.Images) != 2 || pkg.Excerpt == "" {
		t.Fatalf("package = %+v", pkg)
	}

	for _, name := range []string{
		artifact.StageStructure, artifact.StageImages, artifact.StageContentInput,
		artifact.StageRawContent, artifact.StageContent, artifact.StageComposed, artifact.StagePublished,
	} {
		if !env.exists(t, artifact.KeywordPath(slug, name)) {
			t.Fatalf("missing checkpoint %s", name)
		}
	}
	if env.exists(t, artifact.KeywordPath(slug, artifact.StageParseError)) {
		t.Fatalf("unexpected parse_error artifact")
	}
	if !env.exists(t, artifact.PostPath(testDate, artifact.PreCreation)) {
		t.Fatalf("missing pre_creation marker")
	}
	if got := env.list(t, artifact.ImageLogPrefix(testDate, "success")); len(got) != 2 {
		t.Fatalf("image success log entries = %d, want 2", len(got))
	}

	var stored domain.ContentPlan
	if err := env.store.Get(context.Background(), artifact.KeywordPath(slug, artifact.StageStructure), &stored); err != nil {
		t.Fatalf("get structure: %v", err)
	}
	if stored.Slug != slug || stored.Keyword != pocketWatch {
		t.Fatalf("stored plan slug/keyword = %q/%q", stored.Slug, stored.Keyword)
	}
}

func TestCoordinatorContentDecodeFailure(t *testing.T) {
	env := newTestEnv(t, pocketWatch)
	slug := "antique-pocket-watch-value"
	env.scriptPlan(t, pocketWatch, domain.ImageTypeFeatured, domain.ImageTypeContent)
	raw := "I'm sorry, here is the article: <h1>Pocket watches</h1> without any JSON"
	env.gen.responses["content"] = raw

	res, err := env.coord.RunNext(context.Background())
	if !errors.Is(err, domain.ErrDecodeFailure) {
		t.Fatalf("error = %v, want DecodeFailure", err)
	}
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != domain.StageBody {
		t.Fatalf("error = %#v, want body StageError", err)
	}
	if res.State != domain.StateFailed || res.FailedStage != domain.StageBody {
		t.Fatalf("result = %+v", res)
	}

	row := env.src.row(0)
	if row.status != domain.StatusError || !strings.Contains(row.message, "Decode") {
		t.Fatalf("worklist row = %+v, want error mentioning Decode", row)
	}

	var diag map[string]any
	if err := env.store.Get(context.Background(), artifact.KeywordPath(slug, artifact.StageParseError), &diag); err != nil {
		t.Fatalf("get parse_error: %v", err)
	}
	if diag["raw_content"] != raw {
		t.Fatalf("parse_error raw = %v", diag["raw_content"])
	}
	if env.exists(t, artifact.KeywordPath(slug, artifact.StageContent)) || env.exists(t, artifact.KeywordPath(slug, artifact.StageComposed)) {
		t.Fatalf("failed body must not be checkpointed")
	}
	if got := env.pub.postCount(); got != 0 {
		t.Fatalf("CreatePost calls = %d, want 0", got)
	}

	entries := env.list(t, artifact.ErrorLogPrefix(testDate))
	if len(entries) != 1 {
		t.Fatalf("error log entries = %d, want 1", len(entries))
	}
	var entry map[string]any
	if err := env.store.Get(context.Background(), entries[0], &entry); err != nil {
		t.Fatalf("get error entry: %v", err)
	}
	if entry["stage"] != string(domain.StageBody) || entry["keyword"] != pocketWatch || entry["payload"] != raw {
		t.Fatalf("error entry = %v", entry)
	}
}

func TestCoordinatorStageFailures(t *testing.T) {
	cases := []struct {
		name      string
		setup     func(t *testing.T, env *testEnv)
		wantStage domain.Stage
		wantErr   error
	}{
		{
			name: "plan_generation",
			setup: func(t *testing.T, env *testEnv) {
				env.gen.errs["structure"] = &domain.GenerationError{Provider: "openai", Status: 429, RateLimited: true}
			},
			wantStage: domain.StagePlan,
			wantErr:   domain.ErrGenerationFailure,
		},
		{
			name: "plan_without_images",
			setup: func(t *testing.T, env *testEnv) {
				env.scriptPlan(t, pocketWatch)
			},
			wantStage: domain.StagePlan,
			wantErr:   domain.ErrSchemaViolation,
		},
		{
			name: "body_missing_image",
			setup: func(t *testing.T, env *testEnv) {
				env.scriptPlan(t, pocketWatch, domain.ImageTypeFeatured)
				env.scriptContent(t, "Antique Pocket Watch Value")
			},
			wantStage: domain.StageBody,
			wantErr:   domain.ErrSchemaViolation,
		},
		{
			name: "publish_rejected",
			setup: func(t *testing.T, env *testEnv) {
				env.scriptPlan(t, pocketWatch, domain.ImageTypeFeatured)
				env.scriptContent(t, "Antique Pocket Watch Value", uploadURL("antique-pocket-watch-value-featured-1"))
				env.pub.createErr = &domain.UpstreamError{Kind: domain.ErrPublishFailure, Op: "create post", Status: 403, Body: "forbidden"}
			},
			wantStage: domain.StagePublish,
			wantErr:   domain.ErrPublishFailure,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, pocketWatch)
			tc.setup(t, env)

			_, err := env.coord.RunNext(context.Background())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
			var stageErr *domain.StageError
			if !errors.As(err, &stageErr) || stageErr.Stage != tc.wantStage {
				t.Fatalf("error = %v, want stage %s", err, tc.wantStage)
			}
			row := env.src.row(0)
			if row.status != domain.StatusError || !strings.Contains(row.message, string(tc.wantStage)) {
				t.Fatalf("worklist row = %+v", row)
			}
			if got := env.list(t, artifact.ErrorLogPrefix(testDate)); len(got) != 1 {
				t.Fatalf("error log entries = %d, want 1", len(got))
			}
			if env.exists(t, artifact.KeywordPath("antique-pocket-watch-value", artifact.StagePublished)) {
				t.Fatalf("failed run must not write published checkpoint")
			}
		})
	}
}

func TestCoordinatorDegradesWithoutImages(t *testing.T) {
	env := newTestEnv(t, pocketWatch)
	env.scriptPlan(t, pocketWatch, domain.ImageTypeFeatured, domain.ImageTypeContent)
	env.gen.imageErrs["image "] = errUpstream
	env.scriptContent(t, "Antique Pocket Watch Value")

	res, err := env.coord.RunNext(context.Background())
	if err != nil {
		t.Fatalf("RunNext returned error: %v", err)
	}
	if !res.FeaturedMissing || res.ImageFailures != 2 {
		t.Fatalf("result = %+v, want featured missing and 2 failures", res)
	}
	if !env.pub.posts[0].FeaturedMissing || len(env.pub.posts[0].Images) != 0 {
		t.Fatalf("package = %+v", env.pub.posts[0])
	}
	if got := env.pub.uploads; len(got) != 0 {
		t.Fatalf("uploads = %v, want none", got)
	}
}

func TestCoordinatorDoesNotRepublishAfterMarkFailure(t *testing.T) {
	env := newTestEnv(t, pocketWatch)
	slug := "antique-pocket-watch-value"
	env.src.failSuccess = 1
	env.scriptPlan(t, pocketWatch, domain.ImageTypeFeatured, domain.ImageTypeContent)
	env.scriptContent(t, "Antique Pocket Watch Value", uploadURL(slug+"-featured-1"), uploadURL(slug+"-content-2"))

	first, err := env.coord.RunNext(context.Background())
	if !errors.Is(err, errWorklistDown) {
		t.Fatalf("first run error = %v, want worklist failure", err)
	}
	if first.FailedStage != domain.StageSource {
		t.Fatalf("failed stage = %q, want source", first.FailedStage)
	}
	if row := env.src.row(0); row.status != "" {
		t.Fatalf("row should still be pending, got %+v", row)
	}
	uploads, structured := len(env.pub.uploads), env.gen.structuredCalls()

	second, err := env.coord.RunNext(context.Background())
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if got := env.pub.postCount(); got != 1 {
		t.Fatalf("CreatePost calls = %d, want 1", got)
	}
	if len(env.pub.uploads) != uploads || env.gen.structuredCalls() != structured {
		t.Fatalf("second run repeated stages: uploads %d -> %d, generations %d -> %d",
			uploads, len(env.pub.uploads), structured, env.gen.structuredCalls())
	}
	wantTransitions := []domain.RunState{domain.StateStarted, domain.StatePublished, domain.StateCompleted}
	if diff := cmp.Diff(wantTransitions, second.Transitions); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}
	if !second.Resumed || second.Post == nil || second.Post.RemoteID != first.Post.RemoteID {
		t.Fatalf("second result = %+v, want resumed post %+v", second, first.Post)
	}
	if row := env.src.row(0); row.status != domain.StatusSuccess {
		t.Fatalf("worklist status = %q, want success", row.status)
	}
}

func TestCoordinatorRunInProgress(t *testing.T) {
	env := newTestEnv(t, pocketWatch)
	release, err := env.locker.Acquire(context.Background(), "antique-pocket-watch-value")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release(context.Background())

	_, err = env.coord.RunNext(context.Background())
	if !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("error = %v, want ErrRunInProgress", err)
	}
	if row := env.src.row(0); row.status != "" {
		t.Fatalf("worklist row must stay pending, got %+v", row)
	}
	if env.gen.structuredCalls() != 0 {
		t.Fatalf("no generation expected while the slug is locked")
	}
}

func TestCoordinatorSourceExhausted(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.coord.RunNext(context.Background()); !errors.Is(err, domain.ErrSourceExhausted) {
		t.Fatalf("error = %v, want ErrSourceExhausted", err)
	}
}

func TestCoordinatorRejectsUnsluggableKeyword(t *testing.T) {
	env := newTestEnv(t, "!!!")
	res, err := env.coord.RunNext(context.Background())
	if err == nil || res.State != domain.StateFailed {
		t.Fatalf("expected failure, got %+v %v", res, err)
	}
	if row := env.src.row(0); row.status != domain.StatusError {
		t.Fatalf("worklist row = %+v", row)
	}
}

func TestRunAdvanceRejectsSkippedState(t *testing.T) {
	env := newTestEnv(t)
	r := env.coord.newRun(pocketWatch)
	if err := r.advance(domain.StateImagesResolved); err == nil {
		t.Fatal("expected illegal transition error")
	}
	if err := r.advance(domain.StatePlanned); err != nil {
		t.Fatalf("advance: %v", err)
	}
	r.fail(domain.StageImages, errUpstream)
	r.fail(domain.StageBody, errUpstream)
	if r.result.FailedStage != domain.StageImages || r.result.State != domain.StateFailed {
		t.Fatalf("result = %+v", r.result)
	}
}
