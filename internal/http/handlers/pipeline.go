package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"seoforge/internal/domain"
	"seoforge/internal/middleware"
	"seoforge/internal/pipeline"
)

type stageFailure struct {
	Error   string       `json:"error"`
	Stage   domain.Stage `json:"stage,omitempty"`
	Keyword string       `json:"keyword,omitempty"`
	Message string       `json:"message"`
	Result  any          `json:"result,omitempty"`
}

// Process runs the next pending keyword to completion. The run is detached
// from the request context so a disconnecting client does not abort it.
func (a *App) Process(w http.ResponseWriter, r *http.Request) {
	if !a.runLimiter.TryAcquire(1) {
		a.error(w, http.StatusTooManyRequests, "busy", "too many pipeline runs in progress")
		return
	}
	defer a.runLimiter.Release(1)

	ctx := context.WithoutCancel(r.Context())
	res, err := a.Runner.RunNext(ctx)
	if errors.Is(err, domain.ErrSourceExhausted) {
		a.json(w, http.StatusOK, map[string]any{"processed": false, "message": "no pending keyword"})
		return
	}
	if err != nil {
		a.failure(w, r, err, res)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"processed": true, "result": res})
}

// Recover resumes {keyword} using the recovery log partition {date}.
func (a *App) Recover(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	keyword, err := pathParam(r, "keyword")
	if err != nil || strings.TrimSpace(keyword) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "keyword is required")
		return
	}
	if domain.Slug(keyword) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "keyword has no slug characters")
		return
	}
	if !a.runLimiter.TryAcquire(1) {
		a.error(w, http.StatusTooManyRequests, "busy", "too many pipeline runs in progress")
		return
	}
	defer a.runLimiter.Release(1)

	res, err := a.Recoverer.Recover(context.WithoutCancel(r.Context()), date, keyword)
	if err != nil {
		a.failure(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "recovered": true, "result": res})
}

// pathParam returns the decoded URL parameter. chi matches against RawPath
// when the request has one, leaving the segment escaped.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

// failure maps a pipeline error to a status code. Stage failures carry the
// stage name and message, plus the partial run when one exists.
func (a *App) failure(w http.ResponseWriter, r *http.Request, err error, result *pipeline.RunResult) {
	resp := stageFailure{Error: "pipeline_failed", Message: err.Error()}
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = stageErr.Stage
		resp.Keyword = stageErr.Keyword
	}
	if result != nil {
		resp.Result = result
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		code, resp.Error = http.StatusConflict, "run_in_progress"
	case errors.Is(err, domain.ErrGenerationFailure), errors.Is(err, domain.ErrAssetUploadFailure), errors.Is(err, domain.ErrPublishFailure):
		code, resp.Error = http.StatusBadGateway, "upstream_failed"
	case errors.Is(err, domain.ErrDecodeFailure), errors.Is(err, domain.ErrSchemaViolation):
		code, resp.Error = http.StatusUnprocessableEntity, "invalid_model_output"
	case errors.Is(err, domain.ErrInvalidInput):
		code, resp.Error = http.StatusBadRequest, "bad_request"
	}
	a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Str("stage", string(resp.Stage)).Msg("http: pipeline request failed")
	a.json(w, code, resp)
}
