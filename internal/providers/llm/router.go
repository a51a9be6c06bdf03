// Package llm combines a text provider and an image provider into a single
// generative client.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"seoforge/internal/domain"
)

type TextGenerator interface {
	GenerateStructured(ctx context.Context, bundle domain.PromptBundle) (string, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, size string) (*domain.GeneratedImage, error)
}

// Router sends text and image requests to independently configured providers.
type Router struct {
	text   TextGenerator
	image  ImageGenerator
	logger zerolog.Logger
}

func NewRouter(text TextGenerator, image ImageGenerator, logger zerolog.Logger) (*Router, error) {
	if text == nil {
		return nil, errors.New("llm: text provider is required")
	}
	if image == nil {
		return nil, errors.New("llm: image provider is required")
	}
	return &Router{text: text, image: image, logger: logger}, nil
}

func (r *Router) GenerateStructured(ctx context.Context, bundle domain.PromptBundle) (string, error) {
	start := time.Now()
	text, err := r.text.GenerateStructured(ctx, bundle)
	event := r.logger.Info()
	if err != nil {
		event = r.logger.Warn().Err(err)
	}
	event.Str("prompt", bundle.Name).Dur("took", time.Since(start)).Msg("llm: structured generation")
	return text, err
}

func (r *Router) GenerateImage(ctx context.Context, prompt, size string) (*domain.GeneratedImage, error) {
	start := time.Now()
	img, err := r.image.GenerateImage(ctx, prompt, size)
	event := r.logger.Info()
	if err != nil {
		event = r.logger.Warn().Err(err)
	}
	event.Str("size", size).Dur("took", time.Since(start)).Msg("llm: image generation")
	return img, err
}

var _ domain.GenerativeClient = (*Router)(nil)
