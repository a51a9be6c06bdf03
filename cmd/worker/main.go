package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"seoforge/internal/domain"
	"seoforge/internal/infra"
	"seoforge/internal/pipeline"
	"seoforge/internal/wiring"
)

type runner interface {
	RunNext(ctx context.Context) (*pipeline.RunResult, error)
}

// keywordWorker processes keywords back to back and sleeps for interval when
// the worklist is empty or a run fails.
type keywordWorker struct {
	runner   runner
	logger   zerolog.Logger
	interval time.Duration
	wait     func(ctx context.Context, d time.Duration) error
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	graph, err := wiring.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build pipeline")
	}
	defer graph.Close()

	w := &keywordWorker{runner: graph.Coordinator, logger: logger, interval: cfg.PollInterval, wait: sleep}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped")
	}
}

func (w *keywordWorker) Run(ctx context.Context) error {
	w.logger.Info().Dur("interval", w.interval).Msg("worker: started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.step(ctx) {
			continue
		}
		if err := w.wait(ctx, w.interval); err != nil {
			return err
		}
	}
}

// step runs one keyword and reports whether the next one should start
// immediately.
func (w *keywordWorker) step(ctx context.Context) bool {
	res, err := w.runner.RunNext(ctx)
	switch {
	case errors.Is(err, domain.ErrSourceExhausted):
		w.logger.Debug().Msg("worker: no pending keyword")
		return false
	case errors.Is(err, domain.ErrRunInProgress):
		w.logger.Info().Err(err).Msg("worker: keyword locked by another run")
		return false
	case err != nil:
		ev := w.logger.Error().Err(err)
		if res != nil {
			ev = ev.Str("run_id", res.RunID).Str("keyword", res.Keyword)
		}
		ev.Msg("worker: run failed")
		return false
	}
	w.logger.Info().Str("run_id", res.RunID).Str("keyword", res.Keyword).Str("remote_id", res.Post.RemoteID).Msg("worker: run completed")
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
