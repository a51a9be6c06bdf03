package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"seoforge/internal/domain"
	"seoforge/internal/infra"
	"seoforge/internal/pipeline"
)

type fakeRunner struct {
	res   *pipeline.RunResult
	err   error
	calls int
}

func (f *fakeRunner) RunNext(ctx context.Context) (*pipeline.RunResult, error) {
	f.calls++
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return f.res, f.err
}

type fakeRecoverer struct {
	date, keyword string
	res           *pipeline.RecoveryResult
	err           error
}

func (f *fakeRecoverer) Recover(_ context.Context, date, keyword string) (*pipeline.RecoveryResult, error) {
	f.date, f.keyword = date, keyword
	return f.res, f.err
}

type fakeImages struct {
	prompt, size string
	img          *domain.GeneratedImage
	err          error
}

func (f *fakeImages) GenerateStructured(context.Context, domain.PromptBundle) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt, size string) (*domain.GeneratedImage, error) {
	f.prompt, f.size = prompt, size
	return f.img, f.err
}

func newTestApp(runner Runner, recoverer Recoverer, images domain.GenerativeClient) (*App, http.Handler) {
	cfg := &infra.Config{MaxConcurrentRun: 1, ImageSize: "1024x1024"}
	app := NewApp(cfg, zerolog.Nop(), runner, recoverer, images)
	r := chi.NewRouter()
	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/process", app.Process)
	r.Post("/v1/recover/{date}/{keyword}", app.Recover)
	r.Post("/v1/debug/generate-image", app.DebugGenerateImage)
	return app, r
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	_, h := newTestApp(&fakeRunner{}, &fakeRecoverer{}, &fakeImages{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	body := decodeBody(t, rr)
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %s", rr.Code, rr.Body.String())
	}
	if _, leaked := body["api_token"]; leaked {
		t.Fatalf("health leaks config: %v", body)
	}
}

func TestProcessStatusMapping(t *testing.T) {
	stageErr := func(stage domain.Stage, err error) error {
		return &domain.StageError{Stage: stage, Keyword: "pocket watch", Err: err}
	}
	tests := []struct {
		name      string
		res       *pipeline.RunResult
		err       error
		wantCode  int
		wantError string
		wantStage string
	}{
		{name: "success", res: &pipeline.RunResult{Keyword: "pocket watch", State: domain.StateCompleted}, wantCode: http.StatusOK},
		{name: "exhausted", err: domain.ErrSourceExhausted, wantCode: http.StatusOK},
		{name: "in progress", err: fmt.Errorf("%w: pocket-watch", domain.ErrRunInProgress), wantCode: http.StatusConflict, wantError: "run_in_progress"},
		{
			name:      "generation",
			err:       stageErr(domain.StagePlan, &domain.GenerationError{Provider: "openai", Status: 500}),
			wantCode:  http.StatusBadGateway,
			wantError: "upstream_failed",
			wantStage: "plan",
		},
		{
			name:      "publish",
			err:       stageErr(domain.StagePublish, &domain.UpstreamError{Kind: domain.ErrPublishFailure, Op: "create post", Status: 401}),
			wantCode:  http.StatusBadGateway,
			wantError: "upstream_failed",
			wantStage: "publish",
		},
		{
			name:      "decode",
			err:       stageErr(domain.StageBody, &domain.DecodeError{Raw: "nope", Err: errors.New("bad json")}),
			wantCode:  http.StatusUnprocessableEntity,
			wantError: "invalid_model_output",
			wantStage: "body",
		},
		{
			name:      "other stage error",
			err:       stageErr(domain.StageSource, errors.New("sheet offline")),
			wantCode:  http.StatusInternalServerError,
			wantError: "pipeline_failed",
			wantStage: "source",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, h := newTestApp(&fakeRunner{res: tc.res, err: tc.err}, &fakeRecoverer{}, &fakeImages{})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/process", nil))
			if rr.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tc.wantCode, rr.Body.String())
			}
			body := decodeBody(t, rr)
			if tc.wantError == "" {
				if _, ok := body["processed"]; !ok {
					t.Fatalf("missing processed flag: %v", body)
				}
				return
			}
			if body["error"] != tc.wantError {
				t.Fatalf("error = %v, want %s", body["error"], tc.wantError)
			}
			if tc.wantStage != "" && body["stage"] != tc.wantStage {
				t.Fatalf("stage = %v, want %s", body["stage"], tc.wantStage)
			}
		})
	}
}

func TestProcessRejectsWhenBusy(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.RunResult{}}
	app, h := newTestApp(runner, &fakeRecoverer{}, &fakeImages{})
	if !app.runLimiter.TryAcquire(1) {
		t.Fatal("limiter should start empty")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/process", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if runner.calls != 0 {
		t.Fatalf("runner called %d times", runner.calls)
	}
	app.runLimiter.Release(1)
}

func TestProcessIgnoresClientCancel(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.RunResult{Keyword: "k"}}
	_, h := newTestApp(runner, &fakeRecoverer{}, &fakeImages{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/process", nil).WithContext(ctx))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
}

func TestRecoverHandler(t *testing.T) {
	rec := &fakeRecoverer{res: &pipeline.RecoveryResult{
		Keyword: "pocket watch",
		Slug:    "pocket-watch",
		From:    pipeline.RecoveredComposed,
		Post:    &domain.PublishedPost{RemoteID: "77"},
	}}
	_, h := newTestApp(&fakeRunner{}, rec, &fakeImages{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/recover/2026-03-14/pocket%20watch", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}
	if rec.date != "2026-03-14" || rec.keyword != "pocket watch" {
		t.Fatalf("Recover(%q, %q)", rec.date, rec.keyword)
	}
	body := decodeBody(t, rr)
	if body["recovered"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestRecoverHandlerDecodesKeywordOnce(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "space", path: "/v1/recover/2026-03-14/pocket%20watch", want: "pocket watch"},
		{name: "percent sign", path: "/v1/recover/2026-03-14/100%25%20cotton%20shirts", want: "100% cotton shirts"},
		{name: "escaped percent sequence", path: "/v1/recover/2026-03-14/a%2541", want: "a%41"},
		{name: "encoded slash", path: "/v1/recover/2026-03-14/sizes%2Fcolors", want: "sizes/colors"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := &fakeRecoverer{res: &pipeline.RecoveryResult{Post: &domain.PublishedPost{RemoteID: "1"}}}
			_, h := newTestApp(&fakeRunner{}, rec, &fakeImages{})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tc.path, nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
			}
			if rec.keyword != tc.want {
				t.Fatalf("keyword = %q, want %q", rec.keyword, tc.want)
			}
		})
	}
}

func TestProcessFailureOmitsMissingResult(t *testing.T) {
	tests := []struct {
		name       string
		res        *pipeline.RunResult
		wantResult bool
	}{
		{name: "no run", res: nil, wantResult: false},
		{name: "partial run", res: &pipeline.RunResult{Keyword: "pocket watch", State: domain.StateFailed}, wantResult: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{res: tc.res, err: errors.New("worklist offline")}
			_, h := newTestApp(runner, &fakeRecoverer{}, &fakeImages{})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/process", nil))
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
			}
			body := decodeBody(t, rr)
			if _, ok := body["result"]; ok != tc.wantResult {
				t.Fatalf("result present = %v, want %v: %v", ok, tc.wantResult, body)
			}
		})
	}
}

func TestRecoverHandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{name: "unsluggable", path: "/v1/recover/2026-03-14/%25%25", want: http.StatusBadRequest},
		{name: "bad date", path: "/v1/recover/14-03-2026/pocket", err: fmt.Errorf("%w: bad date", domain.ErrInvalidInput), want: http.StatusBadRequest},
		{name: "nothing to resume", path: "/v1/recover/2026-03-14/pocket", err: fmt.Errorf("%w: pocket: boom", domain.ErrArtifactNotFound), want: http.StatusInternalServerError},
		{name: "locked", path: "/v1/recover/2026-03-14/pocket", err: domain.ErrRunInProgress, want: http.StatusConflict},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, h := newTestApp(&fakeRunner{}, &fakeRecoverer{err: tc.err}, &fakeImages{})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tc.path, nil))
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestDebugGenerateImage(t *testing.T) {
	images := &fakeImages{img: &domain.GeneratedImage{Data: []byte("png"), MIMEType: "image/png"}}
	_, h := newTestApp(&fakeRunner{}, &fakeRecoverer{}, images)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/debug/generate-image", strings.NewReader(`{"prompt":"a brass pocket watch"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}
	if images.size != "1024x1024" {
		t.Fatalf("size = %q, want config default", images.size)
	}
	if got := decodeBody(t, rr)["data_base64"]; got != "cG5n" {
		t.Fatalf("data_base64 = %v", got)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/debug/generate-image", strings.NewReader(`{"prompt":" "}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty prompt status = %d", rr.Code)
	}

	images.err = &domain.GenerationError{Provider: "openai", Status: 429, RateLimited: true}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/debug/generate-image", strings.NewReader(`{"prompt":"x","size":"512x512"}`)))
	if rr.Code != http.StatusBadGateway || images.size != "512x512" {
		t.Fatalf("status = %d size = %q", rr.Code, images.size)
	}
}

func TestOpenAPIJSONAddsServer(t *testing.T) {
	app, _ := newTestApp(&fakeRunner{}, &fakeRecoverer{}, &fakeImages{})
	req := httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil)
	req.Host = "seo.internal:8080"
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	app.OpenAPIJSON(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	servers, ok := body["servers"].([]any)
	if !ok || len(servers) != 1 || servers[0].(map[string]any)["url"] != "https://seo.internal:8080" {
		t.Fatalf("servers = %v", body["servers"])
	}
	if _, ok := body["paths"].(map[string]any)["/v1/recover/{date}/{keyword}"]; !ok {
		t.Fatal("recover path missing from document")
	}
}
