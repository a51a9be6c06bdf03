// Package openai implements text and image generation against the OpenAI
// REST API.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"seoforge/internal/domain"
)

const (
	providerName          = "openai"
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultModel          = "o3-mini"
	defaultImageModel     = "dall-e-3"
	defaultTimeout        = 5 * time.Minute
	maxErrorBodyBytes     = 4096
	finishReasonTruncated = "length"
)

type Options struct {
	APIKey       string
	Model        string
	ImageModel   string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

type Client struct {
	apiKey       string
	model        string
	imageModel   string
	baseURL      string
	organization string
	client       *http.Client
	logger       zerolog.Logger
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	Temperature         float64       `json:"temperature,omitempty"`
	MaxTokens           int           `json:"max_tokens,omitempty"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        coalesce(opts.Model, defaultModel),
		imageModel:   coalesce(opts.ImageModel, defaultImageModel),
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		logger:       opts.Logger,
	}, nil
}

// GenerateStructured sends one chat completion and returns the raw message text.
func (c *Client) GenerateStructured(ctx context.Context, bundle domain.PromptBundle) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: bundle.System},
			{Role: "user", Content: bundle.User},
		},
	}
	if bundle.JSON {
		payload.ResponseFormat = &chatFormat{Type: "json_object"}
	}
	// Reasoning models reject temperature and the legacy max_tokens field.
	if isReasoningModel(c.model) {
		payload.MaxCompletionTokens = bundle.MaxTokens
	} else {
		payload.MaxTokens = bundle.MaxTokens
		payload.Temperature = 0.7
	}

	var out chatResponse
	if err := c.post(ctx, "/chat/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &domain.GenerationError{Provider: providerName, Err: errors.New("no choices")}
	}
	choice := out.Choices[0]
	if choice.FinishReason == finishReasonTruncated {
		return "", &domain.GenerationError{Provider: providerName, Truncated: true, Body: choice.Message.Content}
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", &domain.GenerationError{Provider: providerName, Err: errors.New("empty response")}
	}
	c.logger.Debug().Str("prompt", bundle.Name).Str("model", c.model).Int("chars", len(text)).Msg("openai: completion received")
	return text, nil
}

// GenerateImage requests a single image and returns its hosted URL, or the
// decoded bytes when the API answers with base64.
func (c *Client) GenerateImage(ctx context.Context, prompt, size string) (*domain.GeneratedImage, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &domain.GenerationError{Provider: providerName, Err: errors.New("image prompt is empty")}
	}
	payload := imageRequest{Model: c.imageModel, Prompt: prompt, N: 1, Size: size}
	var out imageResponse
	if err := c.post(ctx, "/images/generations", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, &domain.GenerationError{Provider: providerName, Err: errors.New("no image returned")}
	}
	item := out.Data[0]
	switch {
	case item.URL != "":
		return &domain.GeneratedImage{URL: item.URL}, nil
	case item.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, &domain.GenerationError{Provider: providerName, Err: fmt.Errorf("decode image: %w", err)}
		}
		return &domain.GeneratedImage{MIMEType: "image/png", Data: data}, nil
	default:
		return nil, &domain.GenerationError{Provider: providerName, Err: errors.New("image without url or data")}
	}
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("openai: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.GenerationError{Provider: providerName, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		genErr := &domain.GenerationError{
			Provider:    providerName,
			Status:      resp.StatusCode,
			RateLimited: resp.StatusCode == http.StatusTooManyRequests,
			Body:        strings.TrimSpace(string(body)),
		}
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			genErr.Err = errors.New(apiErr.Error.Message)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("openai: request failed")
		return genErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.GenerationError{Provider: providerName, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4")
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
