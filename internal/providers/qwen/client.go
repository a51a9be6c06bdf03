// Package qwen generates images with the DashScope Qwen text-to-image API.
package qwen

import (
	"bytes"
	"context"
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
	providerName      = "qwen"
	defaultBaseURL    = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultModel      = "qwen-image-plus"
	defaultSize       = "1328*1328"
	maxErrorBodyBytes = 4 << 10
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	DefaultSize    string
	PromptExtend   bool
	Watermark      bool
	HTTPClient     *http.Client
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

// Client implements image generation only. The returned images point at
// DashScope's temporary storage and are downloaded by the publisher.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	defaultSize  string
	promptExtend bool
	watermark    bool
	httpClient   *http.Client
	logger       zerolog.Logger
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Text string `json:"text,omitempty"`
}

type generationParams struct {
	Size         string `json:"size,omitempty"`
	PromptExtend *bool  `json:"prompt_extend,omitempty"`
	Watermark    *bool  `json:"watermark,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	size := strings.TrimSpace(opts.DefaultSize)
	if size == "" {
		size = defaultSize
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		defaultSize:  size,
		promptExtend: opts.PromptExtend,
		watermark:    opts.Watermark,
		httpClient:   httpClient,
		logger:       opts.Logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateImage invokes the DashScope API once and returns the hosted image URL.
func (c *Client) GenerateImage(ctx context.Context, prompt, size string) (*domain.GeneratedImage, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, &domain.GenerationError{Provider: providerName, Err: errors.New("image prompt is empty")}
	}
	watermark := c.watermark
	payload := generationRequest{
		Model: c.model,
		Input: generationInput{
			Messages: []generationMessage{{
				Role:    "user",
				Content: []generationContent{{Text: prompt}},
			}},
		},
		Parameters: generationParams{
			Size:      c.size(size),
			Watermark: &watermark,
		},
	}
	if extend := c.promptExtend; extend {
		payload.Parameters.PromptExtend = &extend
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("qwen: encode request: %w", err)
	}
	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qwen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.GenerationError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		genErr := &domain.GenerationError{
			Provider:    providerName,
			Status:      resp.StatusCode,
			RateLimited: resp.StatusCode == http.StatusTooManyRequests,
			Body:        strings.TrimSpace(string(raw)),
		}
		var detail generationResponse
		if json.Unmarshal(raw, &detail) == nil && detail.Message != "" {
			genErr.Err = fmt.Errorf("%s (%s)", detail.Message, detail.Code)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Msg("qwen: request failed")
		return nil, genErr
	}

	var decoded generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &domain.GenerationError{Provider: providerName, Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Code != "" {
		return nil, &domain.GenerationError{Provider: providerName, Err: fmt.Errorf("%s (%s)", decoded.Message, decoded.Code)}
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return nil, &domain.GenerationError{Provider: providerName, Err: errors.New("empty image url")}
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("request_id", decoded.RequestID).
		Str("url", imageURL).
		Msg("qwen: generated image")
	return &domain.GeneratedImage{URL: imageURL}, nil
}

// GenerateStructured is not supported; text is routed to another provider.
func (c *Client) GenerateStructured(context.Context, domain.PromptBundle) (string, error) {
	return "", &domain.GenerationError{Provider: providerName, Err: errors.New("text generation is not supported")}
}

// size converts WIDTHxHEIGHT into DashScope's WIDTH*HEIGHT notation.
func (c *Client) size(size string) string {
	size = strings.TrimSpace(strings.ToLower(size))
	if size == "" {
		return c.defaultSize
	}
	return strings.Replace(size, "x", "*", 1)
}

func firstImageURL(resp generationResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if url := strings.TrimSpace(content.Image); url != "" {
				return url
			}
		}
	}
	return ""
}

var _ domain.GenerativeClient = (*Client)(nil)
