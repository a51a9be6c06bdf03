package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"seoforge/internal/domain"
	"seoforge/internal/infra"
	"seoforge/internal/pipeline"
)

// Runner processes the next pending keyword.
type Runner interface {
	RunNext(ctx context.Context) (*pipeline.RunResult, error)
}

// Recoverer resumes an interrupted keyword.
type Recoverer interface {
	Recover(ctx context.Context, date, keyword string) (*pipeline.RecoveryResult, error)
}

type App struct {
	Config    *infra.Config
	Logger    zerolog.Logger
	Runner    Runner
	Recoverer Recoverer
	Images    domain.GenerativeClient

	runLimiter *semaphore.Weighted
}

// NewApp caps concurrent pipeline runs at cfg.MaxConcurrentRun.
func NewApp(cfg *infra.Config, logger zerolog.Logger, runner Runner, recoverer Recoverer, images domain.GenerativeClient) *App {
	limit := int64(1)
	if cfg != nil && cfg.MaxConcurrentRun > 0 {
		limit = int64(cfg.MaxConcurrentRun)
	}
	return &App{
		Config:     cfg,
		Logger:     logger,
		Runner:     runner,
		Recoverer:  recoverer,
		Images:     images,
		runLimiter: semaphore.NewWeighted(limit),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
