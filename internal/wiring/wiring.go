// Package wiring assembles the pipeline from configuration. Both the HTTP
// server and the CLI build their object graph here.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"seoforge/internal/artifact"
	"seoforge/internal/domain"
	"seoforge/internal/infra"
	"seoforge/internal/infra/credentials"
	"seoforge/internal/lock"
	"seoforge/internal/pipeline"
	"seoforge/internal/providers/anthropic"
	"seoforge/internal/providers/genai"
	"seoforge/internal/providers/llm"
	"seoforge/internal/providers/openai"
	"seoforge/internal/providers/qwen"
	"seoforge/internal/providers/wordpress"
	"seoforge/internal/worklist"
)

// Worklist is a keyword source that also accepts new keywords.
type Worklist interface {
	domain.KeywordSource
	Add(ctx context.Context, keyword string) error
}

// Graph holds every long-lived collaborator.
type Graph struct {
	Config      *infra.Config
	Logger      zerolog.Logger
	Pool        *pgxpool.Pool
	SQL         *infra.SQLRunner
	Redis       *redis.Client
	Credentials *credentials.Store
	Store       *artifact.Store
	Worklist    Worklist
	Generator   *llm.Router
	Publisher   *wordpress.Client
	Coordinator *pipeline.Coordinator
	Recovery    *pipeline.Recovery

	closers []func()
}

// Build connects the configured backends and constructs the pipeline. The
// caller owns the returned graph and must Close it.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Graph, error) {
	g := &Graph{Config: cfg, Logger: logger}
	if err := g.build(ctx); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func (g *Graph) build(ctx context.Context) error {
	cfg := g.Config
	if err := g.connectDB(ctx); err != nil {
		return err
	}

	store, err := g.artifactStore()
	if err != nil {
		return err
	}
	g.Store = store

	if g.Worklist, err = g.worklist(); err != nil {
		return err
	}

	if g.Generator, err = g.generator(ctx); err != nil {
		return err
	}

	password, err := g.Credentials.Resolve(ctx, credentials.ProviderWordPress, cfg.WordPressAppPassword)
	if err != nil {
		return err
	}
	g.Publisher, err = wordpress.NewClient(wordpress.Options{
		BaseURL:     cfg.WordPressAPIURL,
		Username:    cfg.WordPressUsername,
		AppPassword: password,
		PostStatus:  cfg.WordPressPostStatus,
		HTTPClient:  &http.Client{Timeout: cfg.WordPressTimeout},
		Recorder:    store,
		Logger:      g.Logger,
	})
	if err != nil {
		return err
	}

	locker, err := g.locker(ctx)
	if err != nil {
		return err
	}

	prompts, err := pipeline.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return err
	}

	g.Coordinator, err = pipeline.NewCoordinator(pipeline.Deps{
		Source:    g.Worklist,
		Generator: g.Generator,
		Publisher: g.Publisher,
		Store:     store,
		Locker:    locker,
		Prompts:   prompts,
		ImageSize: cfg.ImageSize,
		Logger:    g.Logger,
	})
	if err != nil {
		return err
	}
	g.Recovery = pipeline.NewRecovery(g.Coordinator)
	return nil
}

// connectDB opens the pool when DATABASE_URL is set. Credentials fall back to
// configuration only when there is no database.
func (g *Graph) connectDB(ctx context.Context) error {
	if g.Config.DatabaseURL == "" {
		g.Credentials = credentials.NewStore(nil)
		return nil
	}
	pool, err := infra.NewDBPool(ctx, g.Config)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	g.Pool = pool
	g.closers = append(g.closers, pool.Close)
	g.SQL = infra.NewSQLRunner(pool, g.Logger)
	g.Credentials = credentials.NewStore(g.SQL)
	return nil
}

func (g *Graph) artifactStore() (*artifact.Store, error) {
	switch g.Config.ArtifactBackend {
	case infra.BackendPostgres:
		return artifact.New(artifact.NewPGBackend(g.SQL), g.Logger), nil
	default:
		backend, err := artifact.NewFileBackend(g.Config.ArtifactPath)
		if err != nil {
			return nil, err
		}
		return artifact.New(backend, g.Logger), nil
	}
}

func (g *Graph) worklist() (Worklist, error) {
	switch g.Config.WorklistBackend {
	case infra.BackendPostgres:
		return worklist.NewPGSource(g.SQL, g.Logger), nil
	default:
		return worklist.NewFileSource(g.Config.WorklistPath, g.Logger)
	}
}

func (g *Graph) locker(ctx context.Context) (lock.Locker, error) {
	rdb, err := infra.NewRedisClient(ctx, g.Config)
	if err != nil {
		return nil, err
	}
	if rdb == nil {
		g.Logger.Info().Msg("wiring: REDIS_URL not set, using in-process slug locks")
		return lock.NewLocalLocker(), nil
	}
	g.Redis = rdb
	g.closers = append(g.closers, func() { _ = rdb.Close() })
	return lock.NewRedisLocker(rdb, g.Config.LockTTL), nil
}

// generator builds the configured text and image providers. A provider used
// for both is constructed once.
func (g *Graph) generator(ctx context.Context) (*llm.Router, error) {
	cfg := g.Config
	built := map[string]any{}
	build := func(name string) (any, error) {
		if p, ok := built[name]; ok {
			return p, nil
		}
		var (
			p   any
			err error
		)
		switch name {
		case credentials.ProviderOpenAI:
			p, err = g.openAI(ctx)
		case credentials.ProviderGemini:
			p, err = g.gemini(ctx)
		case credentials.ProviderAnthropic:
			p, err = g.anthropic(ctx)
		case credentials.ProviderQwen:
			p, err = g.qwen(ctx)
		default:
			err = fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			return nil, err
		}
		built[name] = p
		return p, nil
	}

	textProvider, err := build(cfg.TextProvider)
	if err != nil {
		return nil, err
	}
	text, ok := textProvider.(llm.TextGenerator)
	if !ok {
		return nil, fmt.Errorf("provider %q cannot generate text", cfg.TextProvider)
	}
	imageProvider, err := build(cfg.ImageProvider)
	if err != nil {
		return nil, err
	}
	image, ok := imageProvider.(llm.ImageGenerator)
	if !ok {
		return nil, fmt.Errorf("provider %q cannot generate images", cfg.ImageProvider)
	}
	return llm.NewRouter(text, image, g.Logger)
}

func (g *Graph) openAI(ctx context.Context) (*openai.Client, error) {
	key, err := g.Credentials.Resolve(ctx, credentials.ProviderOpenAI, g.Config.OpenAIAPIKey)
	if err != nil {
		return nil, err
	}
	return openai.NewClient(openai.Options{
		APIKey:       key,
		Model:        g.Config.OpenAIModel,
		ImageModel:   g.Config.OpenAIImageModel,
		BaseURL:      g.Config.OpenAIBaseURL,
		Organization: g.Config.OpenAIOrg,
		Logger:       g.Logger,
	})
}

func (g *Graph) gemini(ctx context.Context) (*genai.Client, error) {
	key, err := g.Credentials.Resolve(ctx, credentials.ProviderGemini, g.Config.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(genai.Options{
		APIKey:     key,
		BaseURL:    g.Config.GeminiBaseURL,
		Model:      g.Config.GeminiModel,
		ImageModel: g.Config.GeminiImageModel,
		Logger:     g.Logger,
	})
	if err != nil {
		return nil, err
	}
	if key == "" {
		g.Logger.Warn().Str("model", client.Model()).Msg("wiring: gemini api key missing, images will be synthetic")
	}
	return client, nil
}

func (g *Graph) anthropic(ctx context.Context) (*anthropic.Client, error) {
	key, err := g.Credentials.Resolve(ctx, credentials.ProviderAnthropic, g.Config.AnthropicAPIKey)
	if err != nil {
		return nil, err
	}
	return anthropic.NewClient(anthropic.Options{
		APIKey: key,
		Model:  g.Config.AnthropicModel,
		Logger: g.Logger,
	})
}

func (g *Graph) qwen(ctx context.Context) (*qwen.Client, error) {
	key, err := g.Credentials.Resolve(ctx, credentials.ProviderQwen, g.Config.QwenAPIKey)
	if err != nil {
		return nil, err
	}
	return qwen.NewClient(qwen.Options{
		APIKey:  key,
		BaseURL: g.Config.QwenBaseURL,
		Model:   g.Config.QwenModel,
		Logger:  g.Logger,
	})
}

// Close releases connections in reverse order of acquisition.
func (g *Graph) Close() {
	if g == nil {
		return
	}
	for i := len(g.closers) - 1; i >= 0; i-- {
		g.closers[i]()
	}
	g.closers = nil
}

// ErrNoDatabase is returned by operations that need DATABASE_URL.
var ErrNoDatabase = errors.New("DATABASE_URL is not configured")

// RequireDB returns ErrNoDatabase when the graph has no SQL connection.
func (g *Graph) RequireDB() error {
	if g.SQL == nil {
		return ErrNoDatabase
	}
	return nil
}
