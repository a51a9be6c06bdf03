// Package anthropic generates structured text through Claude models using llmkit.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/rs/zerolog"

	"seoforge/internal/domain"
)

const (
	providerName     = "anthropic"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 8000
)

// promptFunc matches anthropic.PromptWithSettings without file attachments.
type promptFunc func(systemPrompt, userPrompt, schema, apiKey string, settings types.RequestSettings) (string, error)

type Options struct {
	APIKey      string
	Model       string
	Temperature float64
	Logger      zerolog.Logger
}

// Client implements text generation only; image requests are routed to a
// provider that supports them.
type Client struct {
	apiKey      string
	model       string
	temperature float64
	logger      zerolog.Logger
	prompt      promptFunc
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("anthropic api key is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		model:       model,
		temperature: opts.Temperature,
		logger:      opts.Logger,
		prompt:      llmkitPrompt,
	}, nil
}

func llmkitPrompt(systemPrompt, userPrompt, schema, apiKey string, settings types.RequestSettings) (string, error) {
	response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, schema, apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(response.Content) == 0 {
		return "", errors.New("no content in response")
	}
	return response.Content[0].Text, nil
}

// GenerateStructured runs the bundle as one message. llmkit calls are not
// cancellable, so ctx is only checked before the request starts.
func (c *Client) GenerateStructured(ctx context.Context, bundle domain.PromptBundle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	maxTokens := bundle.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	system := bundle.System
	if bundle.JSON {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}
	settings := types.RequestSettings{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	}
	text, err := c.prompt(system, bundle.User, "", c.apiKey, settings)
	if err != nil {
		return "", &domain.GenerationError{Provider: providerName, Err: fmt.Errorf("%s: %w", bundle.Name, err)}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &domain.GenerationError{Provider: providerName, Err: errors.New("empty response")}
	}
	c.logger.Debug().Str("prompt", bundle.Name).Str("model", c.model).Int("chars", len(text)).Msg("anthropic: completion received")
	return text, nil
}

// GenerateImage is not supported by this provider.
func (c *Client) GenerateImage(ctx context.Context, prompt, size string) (*domain.GeneratedImage, error) {
	return nil, &domain.GenerationError{Provider: providerName, Err: errors.New("image generation is not supported")}
}
